// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wallet

import (
	"errors"
	"sort"

	"github.com/xbridge-swap/xbridge-core/coin"
)

// ErrInsufficientFunds is returned by Select when no combination of the
// candidate UTXOs covers the required amount plus fees.
var ErrInsufficientFunds = errors.New("wallet: insufficient funds")

// FeeFunc mirrors a Connector's minTxFee1/minTxFee2 pair, abstracted so the
// selector can be tested without a live connector.
type FeeFunc func(nInputs, nOutputs int) int64

// Selection is the result of Select: the chosen UTXOs plus the fee
// breakdown required to build the transaction.
type Selection struct {
	UTXOs      []*coin.Unspent
	UTXOAmount int64
	Fee1       int64
	Fee2       int64
}

func feeAmount(fee1, fee2 FeeFunc, amount int64, nIn, nOut int) int64 {
	return amount + fee1(nIn, nOut) + fee2(1, 1)
}

// Select implements the fee-aware greedy UTXO selection algorithm of §4.10.
// candidates need not be pre-sorted; Select sorts its own working copy by
// amount descending, matching address if addrFilter is non-empty.
// required is in COIN-denominated integer units, same as amount.
func Select(candidates []*coin.Unspent, required int64, coinUnit int64, addrFilter string, fee1, fee2 FeeFunc) (*Selection, error) {
	pool := filterByAddress(candidates, addrFilter)
	sort.Slice(pool, func(i, j int) bool {
		return amountUnits(pool[i], coinUnit) > amountUnits(pool[j], coinUnit)
	})

	minAmount := feeAmount(fee1, fee2, required, 1, 3)

	// Step 2: a single UTXO within [minAmount, minAmount + delta).
	delta := 1000 * feeDelta(fee1, fee2)
	for _, u := range pool {
		amt := amountUnits(u, coinUnit)
		if amt >= minAmount && amt < minAmount+delta {
			return &Selection{
				UTXOs:      []*coin.Unspent{u},
				UTXOAmount: amt,
				Fee1:       fee1(1, 3),
				Fee2:       fee2(1, 1),
			}, nil
		}
	}

	// Step 3: partition and take the smallest UTXO that alone covers
	// minAmount.
	var gt []*coin.Unspent
	var lt []*coin.Unspent
	for _, u := range pool {
		if amountUnits(u, coinUnit) >= minAmount {
			gt = append(gt, u)
		} else {
			lt = append(lt, u)
		}
	}
	if len(gt) > 0 {
		smallest := gt[len(gt)-1] // pool is sorted descending
		for _, u := range gt {
			if amountUnits(u, coinUnit) < amountUnits(smallest, coinUnit) {
				smallest = u
			}
		}
		return &Selection{
			UTXOs:      []*coin.Unspent{smallest},
			UTXOAmount: amountUnits(smallest, coinUnit),
			Fee1:       fee1(1, 3),
			Fee2:       fee2(1, 1),
		}, nil
	}

	// Step 4: accumulate lt descending until it covers the fee-adjusted
	// requirement.
	sort.Slice(lt, func(i, j int) bool {
		return amountUnits(lt[i], coinUnit) > amountUnits(lt[j], coinUnit)
	})
	var sum int64
	var chosen []*coin.Unspent
	for _, u := range lt {
		chosen = append(chosen, u)
		sum += amountUnits(u, coinUnit)
		if sum-feeAmount(fee1, fee2, 0, len(chosen), 3)+fee2(1, 1) >= minAmount {
			return &Selection{
				UTXOs:      chosen,
				UTXOAmount: sum,
				Fee1:       fee1(len(chosen), 3),
				Fee2:       fee2(1, 1),
			}, nil
		}
	}

	return nil, ErrInsufficientFunds
}

func feeDelta(fee1, fee2 FeeFunc) int64 {
	return fee1(1, 3) - fee1(1, 1) + fee2(1, 1)
}

func amountUnits(u *coin.Unspent, coinUnit int64) int64 {
	return int64(u.Amount * float64(coinUnit))
}

func filterByAddress(candidates []*coin.Unspent, addrFilter string) []*coin.Unspent {
	if addrFilter == "" {
		out := make([]*coin.Unspent, len(candidates))
		copy(out, candidates)
		return out
	}
	var out []*coin.Unspent
	for _, u := range candidates {
		if u.Address == addrFilter {
			out = append(out, u)
		}
	}
	return out
}

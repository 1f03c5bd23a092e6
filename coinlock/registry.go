// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package coinlock implements the process-wide UTXO reservation table.
// A UTXO reserved by one order must not be selectable by another order of
// the same currency, and no UTXO may sit in both an order's set and the
// service-node fee set.
package coinlock

import (
	"sync"

	"github.com/xbridge-swap/xbridge-core/coin"
)

// Registry is a two-tiered reservation table keyed by currency ticker, plus
// a single fee-UTXO set reserved on the BLOCK fee chain. All operations are
// serialized under a single mutex; callers must not hold any other registry
// lock while invoking a Registry method.
type Registry struct {
	mtx      sync.Mutex
	fee      map[coin.ID]struct{}
	byTicker map[string]map[coin.ID]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		fee:      make(map[coin.ID]struct{}),
		byTicker: make(map[string]map[coin.ID]struct{}),
	}
}

func (r *Registry) setFor(ticker string) map[coin.ID]struct{} {
	s, ok := r.byTicker[ticker]
	if !ok {
		s = make(map[coin.ID]struct{})
		r.byTicker[ticker] = s
	}
	return s
}

// LockCoins reserves the given UTXOs for currency. It is atomic: if any of
// the requested UTXOs is already reserved (in the currency's own set or in
// the fee set), none of them are locked and false is returned.
func (r *Registry) LockCoins(ticker string, utxos []*coin.Unspent) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	set := r.setFor(ticker)
	for _, u := range utxos {
		id := u.ID()
		if _, locked := set[id]; locked {
			return false
		}
		if _, locked := r.fee[id]; locked {
			return false
		}
	}
	for _, u := range utxos {
		set[u.ID()] = struct{}{}
	}
	return true
}

// UnlockCoins releases the given UTXOs from currency's reservation set. It
// is a no-op for any UTXO not currently reserved.
func (r *Registry) UnlockCoins(ticker string, utxos []*coin.Unspent) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	set, ok := r.byTicker[ticker]
	if !ok {
		return
	}
	for _, u := range utxos {
		delete(set, u.ID())
	}
}

// LockFeeUtxos reserves the given UTXOs in the fee set. Atomic like
// LockCoins: it fails if any UTXO is already in the fee set or in any
// currency's reservation set.
func (r *Registry) LockFeeUtxos(utxos []*coin.Unspent) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, u := range utxos {
		id := u.ID()
		if _, locked := r.fee[id]; locked {
			return false
		}
		for _, set := range r.byTicker {
			if _, locked := set[id]; locked {
				return false
			}
		}
	}
	for _, u := range utxos {
		r.fee[u.ID()] = struct{}{}
	}
	return true
}

// UnlockFeeUtxos releases the given UTXOs from the fee set.
func (r *Registry) UnlockFeeUtxos(utxos []*coin.Unspent) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, u := range utxos {
		delete(r.fee, u.ID())
	}
}

// IsLocked reports whether a UTXO is reserved, either as an order coin for
// ticker or as a fee UTXO.
func (r *Registry) IsLocked(ticker string, id coin.ID) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, locked := r.fee[id]; locked {
		return true
	}
	if set, ok := r.byTicker[ticker]; ok {
		_, locked := set[id]
		return locked
	}
	return false
}

// AllLocked returns the union of currency's reserved UTXOs and the fee set,
// as required when filtering a wallet's getUnspent listing.
func (r *Registry) AllLocked(ticker string) map[coin.ID]struct{} {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make(map[coin.ID]struct{})
	for id := range r.fee {
		out[id] = struct{}{}
	}
	if set, ok := r.byTicker[ticker]; ok {
		for id := range set {
			out[id] = struct{}{}
		}
	}
	return out
}

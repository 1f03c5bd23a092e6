// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package snode

import (
	"errors"
	"sync"
	"time"

	"github.com/xbridge-swap/xbridge-core/swaporder"
)

// ErrDuplicateOrder is returned by AcceptPending for an order ID already
// tracked by the Exchange.
var ErrDuplicateOrder = errors.New("snode: order already accepted")

// ErrWalletCoolingDown is returned when a currency's wallet was recently
// marked unreachable and has not yet cleared its cooldown.
var ErrWalletCoolingDown = errors.New("snode: wallet is cooling down")

// Exchange is the service-node-side matchmaker state (C11): it accepts
// relayed pending orders into a read-only projection, expires the ones no
// local owner refreshed in time, and tracks which configured wallets are
// currently reachable. A service node never owns an order's authoritative
// state (§3: "the service node holds read-only projection") -- it only
// decides whether to keep relaying it.
type Exchange struct {
	table *swaporder.Table

	mtx               sync.Mutex
	activeWallets     map[string]bool
	badWalletCooldown map[string]time.Time
}

// NewExchange builds an empty Exchange.
func NewExchange() *Exchange {
	return &Exchange{
		table:             swaporder.NewTable(),
		activeWallets:     make(map[string]bool),
		badWalletCooldown: make(map[string]time.Time),
	}
}

// AcceptPending admits a relayed order into the projection. It fails if the
// order's ID is already tracked, mirroring the duplicate-announcement
// rejection the original accept path performs before any state change.
func (e *Exchange) AcceptPending(o *swaporder.Order) error {
	if _, ok := e.table.Get(o.ID); ok {
		return ErrDuplicateOrder
	}
	e.table.Put(o)
	return nil
}

// EraseExpired drops every tracked order whose Created timestamp is older
// than ttl and whose state has not reached a terminal state, returning the
// IDs removed. Called once per tick by the timer loop's
// checkAndEraseExpiredTransactions (§4.9).
func (e *Exchange) EraseExpired(now time.Time, ttl time.Duration) []swaporder.ID {
	var expired []swaporder.ID
	for _, o := range e.table.Snapshot() {
		if o.State().IsTerminal() {
			continue
		}
		if now.Sub(o.Created) < ttl {
			continue
		}
		expired = append(expired, o.ID)
		e.table.Erase(o.ID)
	}
	return expired
}

// SetWalletActive records the last-observed reachability of ticker's
// backing wallet, as refreshed by the timer loop's wallet-refresh cycle
// (§4.9: "refresh active wallets (reachability probe)").
func (e *Exchange) SetWalletActive(ticker string, reachable bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.activeWallets[ticker] = reachable
	if reachable {
		delete(e.badWalletCooldown, ticker)
	} else {
		e.badWalletCooldown[ticker] = time.Now()
	}
}

// IsWalletActive reports the last-observed reachability of ticker's
// wallet. An unknown ticker is reported inactive.
func (e *Exchange) IsWalletActive(ticker string) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.activeWallets[ticker]
}

// CheckCooldown returns ErrWalletCoolingDown if ticker was marked
// unreachable within cooldown of now, guarding against hammering a wallet
// that just failed a reachability probe.
func (e *Exchange) CheckCooldown(ticker string, now time.Time, cooldown time.Duration) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	badSince, down := e.badWalletCooldown[ticker]
	if down && now.Sub(badSince) < cooldown {
		return ErrWalletCoolingDown
	}
	return nil
}

// Orders exposes the underlying projection table for read-only inspection
// (e.g. a status RPC).
func (e *Exchange) Orders() *swaporder.Table {
	return e.table
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"context"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/snode"
	"github.com/xbridge-swap/xbridge-core/swaporder"
)

// FailedReassignments counts trPending rebroadcasts where the current
// service node had gone stale but no replacement was available; per the
// preserved quirk below, the order is still resent on its stale node in
// that case rather than being held back.
var FailedReassignments atomic.Int64

// Rebroadcast thresholds, per §4.11.
const (
	newRebroadcastAge     = 15 * time.Second
	pendingRebroadcastAge = 240 * time.Second
)

// rebroadcastPendingOrders is the Maker-side retry sweep: an order stuck in
// trNew past newRebroadcastAge, or in trPending past pendingRebroadcastAge,
// is re-sent, reassigning its service node first when the current one has
// gone stale.
func rebroadcastPendingOrders(ctx context.Context, a *App, orders []*swaporder.Order) {
	now := time.Now()
	for _, o := range orders {
		if o.Role != swaporder.RoleMaker {
			continue
		}
		if !o.TryLock() {
			continue
		}
		rebroadcastOne(ctx, a, o, now)
		o.Unlock()
	}
}

func rebroadcastOne(ctx context.Context, a *App, o *swaporder.Order, now time.Time) {
	state := o.StateLocked()
	age := now.Sub(o.TxTime)

	switch {
	case state == swaporder.StateNew && age >= newRebroadcastAge:
		reassignIfStale(a, o, true)
		o.TxTime = now
		resend(ctx, a, o)

	case state == swaporder.StatePending && age >= pendingRebroadcastAge:
		// Preserved from the source this was adapted from: the timestamp is
		// refreshed and the order resent even when reassignment below finds
		// no replacement service node.
		if !reassignIfStale(a, o, false) {
			FailedReassignments.Add(1)
		}
		o.TxTime = now
		resend(ctx, a, o)
	}
}

// reassignIfStale moves the order's current service node into its
// exclude-set and picks a replacement, when force is true or the current
// node no longer advertises both of the order's currencies. It reports
// false when a replacement was needed but none was available, leaving the
// order on its existing (stale) node.
func reassignIfStale(a *App, o *swaporder.Order, force bool) bool {
	var currentKey [snode.PubKeySize]byte
	copy(currentKey[:], o.SPubKey)
	current, ok := a.cfg.Directory.Get(currentKey)
	stillGood := ok && current.Advertises(o.FromCurrency, o.ToCurrency)
	if !force && stillGood {
		return true
	}

	o.ExcludedNodes[hex.EncodeToString(o.SPubKey)] = struct{}{}

	node, ok := a.cfg.Directory.SelectRandom(o.FromCurrency, o.ToCurrency, a.cfg.ProtocolVersion, excludeSetFor(o))
	if !ok {
		return false
	}
	o.SPubKey = node.PubKey[:]
	copy(o.HubAddress[:], node.CollateralAddr[:])
	return true
}

// resend re-dispatches the order's transaction payload under its existing
// m-key, identically to the initial send in CreateOrder.
func resend(ctx context.Context, a *App, o *swaporder.Order) {
	payload := encodeTransactionPayload(o)
	key, _ := btcec.PrivKeyFromBytes(o.MPrivKey)
	pkt, err := session.Sign(key, session.CmdTransaction, uint64(time.Now().UnixMicro()), payload)
	if err != nil || a.cfg.Send == nil {
		return
	}
	_ = a.cfg.Send(ctx, o.SPubKey, pkt)
}

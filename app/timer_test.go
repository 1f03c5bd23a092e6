package app

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/xbridge-swap/xbridge-core/coin"
	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/swaporder"
)

func newOrder(id string, role swaporder.Role, state swaporder.State) *swaporder.Order {
	o := swaporder.New(role)
	o.ID = swaporder.CalcID(swaporder.IDInput{FromAddr: id})
	o.FromCurrency, o.ToCurrency = "LTC", "BLOCK"
	o.FromAmount, o.ToAmount = 50000000, 50000000
	if state != swaporder.StateNew {
		if err := o.SetState(swaporder.StatePending); err != nil {
			panic(err)
		}
	}
	if state == swaporder.StateAccepting {
		if err := o.SetState(swaporder.StateAccepting); err != nil {
			panic(err)
		}
	}
	return o
}

// Test_Timer_CheckFinishedTransaction_ErasesTerminalOrders covers the tick's
// first job: a terminal order is dropped from the table and its
// reservations released.
func Test_Timer_CheckFinishedTransaction_ErasesTerminalOrders(t *testing.T) {
	cfg := testConfig()
	o := newOrder("finished", swaporder.RoleMaker, swaporder.StateNew)
	o.SetState(swaporder.StatePending)
	o.SetState(swaporder.StateAccepting)
	o.SetState(swaporder.StateRollback)
	o.FromCurrency = "LTC"
	o.UsedCoins = []*coin.Unspent{utxo("locked-input", 1, "fromAddr")}
	cfg.Locks.LockCoins("LTC", o.UsedCoins)
	cfg.Orders.Put(o)

	a := New(cfg)
	timer := NewTimer(a)
	o.TryLock()
	timer.checkFinishedTransaction(o)
	o.Unlock()

	if _, ok := cfg.Orders.Get(o.ID); ok {
		t.Fatal("expected the terminal order to be erased")
	}
	if cfg.Locks.IsLocked("LTC", o.UsedCoins[0].ID()) {
		t.Fatal("expected the order's UTXO reservation to be released")
	}
}

// Test_Timer_CheckAndEraseExpiredTransactions_AgesStates covers §4.5's
// timeout-driven transitions: trNew past pendingTTL goes offline, and an
// offline order past TTL is erased outright.
func Test_Timer_CheckAndEraseExpiredTransactions_AgesStates(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)
	timer := NewTimer(a)

	stale := newOrder("stale-new", swaporder.RoleMaker, swaporder.StateNew)
	stale.TxTime = time.Now().Add(-(pendingTTLSeconds + 1) * time.Second)
	cfg.Orders.Put(stale)

	timer.checkAndEraseExpiredTransactions([]*swaporder.Order{stale})
	if got := stale.State(); got != swaporder.StateOffline {
		t.Fatalf("expected trOffline, got %s", got)
	}

	stale.TxTime = time.Now().Add(-(ttlSeconds + 1) * time.Second)
	timer.checkAndEraseExpiredTransactions([]*swaporder.Order{stale})
	if _, ok := cfg.Orders.Get(stale.ID); ok {
		t.Fatal("expected the long-offline order to be erased")
	}
}

// Test_Timer_CheckAndEraseExpiredTransactions_RevivesOnRenewedActivity
// covers the oscillation edge: a trOffline order whose TxTime has been
// refreshed (a rebroadcast succeeded) returns to trPending.
func Test_Timer_CheckAndEraseExpiredTransactions_RevivesOnRenewedActivity(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)
	timer := NewTimer(a)

	o := newOrder("offline", swaporder.RoleMaker, swaporder.StateNew)
	o.TxTime = time.Now().Add(-(pendingTTLSeconds + 1) * time.Second)
	timer.checkAndEraseExpiredTransactions([]*swaporder.Order{o})
	if o.State() != swaporder.StateOffline {
		t.Fatalf("expected trOffline, got %s", o.State())
	}

	o.TxTime = time.Now()
	timer.checkAndEraseExpiredTransactions([]*swaporder.Order{o})
	if o.State() != swaporder.StatePending {
		t.Fatalf("expected revival to trPending, got %s", o.State())
	}
}

// Test_RebroadcastPendingOrders_ReassignsStaleNewOrder covers §4.11's forced
// reassignment branch: a trNew order past 15s moves its current service
// node into the exclude set and picks the next available one.
func Test_RebroadcastPendingOrders_ReassignsStaleNewOrder(t *testing.T) {
	cfg := testConfig()
	other := testNode()
	other.PubKey[0] = 0x03
	cfg.Directory.Put(other)

	var sent []byte
	cfg.Send = func(ctx context.Context, peerPubKey []byte, pkt *session.Packet) error {
		sent = peerPubKey
		return nil
	}
	a := New(cfg)

	o := newOrder("rebroadcast-new", swaporder.RoleMaker, swaporder.StateNew)
	o.SPubKey = testNode().PubKey[:]
	o.MPrivKey = make([]byte, 32)
	o.MPrivKey[31] = 7
	o.TxTime = time.Now().Add(-(newRebroadcastAge + time.Second))
	cfg.Orders.Put(o)

	rebroadcastPendingOrders(context.Background(), a, []*swaporder.Order{o})

	if _, excluded := o.ExcludedNodes[hex.EncodeToString(testNode().PubKey[:])]; !excluded {
		t.Fatal("expected the original service node to be excluded")
	}
	if sent == nil {
		t.Fatal("expected a resend dispatch")
	}
}

// Test_RebroadcastPendingOrders_KeepsHealthyPendingNode covers the
// non-reassignment branch: a trPending order whose current node still
// advertises both currencies is resent without reassignment.
func Test_RebroadcastPendingOrders_KeepsHealthyPendingNode(t *testing.T) {
	cfg := testConfig()
	var sent int
	cfg.Send = func(ctx context.Context, peerPubKey []byte, pkt *session.Packet) error {
		sent++
		return nil
	}
	a := New(cfg)

	node := testNode()
	o := newOrder("rebroadcast-pending", swaporder.RoleMaker, swaporder.StatePending)
	o.SPubKey = node.PubKey[:]
	o.MPrivKey = make([]byte, 32)
	o.MPrivKey[31] = 9
	o.TxTime = time.Now().Add(-(pendingRebroadcastAge + time.Second))
	cfg.Orders.Put(o)

	before := FailedReassignments.Load()
	rebroadcastPendingOrders(context.Background(), a, []*swaporder.Order{o})

	if sent != 1 {
		t.Fatalf("expected exactly one resend, got %d", sent)
	}
	if FailedReassignments.Load() != before {
		t.Fatal("did not expect a failed-reassignment count when the node is still healthy")
	}
	if string(o.SPubKey) != string(node.PubKey[:]) {
		t.Fatal("expected the order to keep its still-advertising service node")
	}
}


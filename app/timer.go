// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/xbridge-swap/xbridge-core/dex/wait"
	"github.com/xbridge-swap/xbridge-core/swaporder"
)

// neverExpires is used as a Waiter's Expiration for work that should repeat
// for the lifetime of the process rather than give up after some duration;
// wait.TickerQueue has no "forever" sentinel of its own.
const neverExpires = 100 * 365 * 24 * time.Hour

// timerInterval is the single maintenance tick every running node keeps,
// per §4.9.
const timerInterval = 15 * time.Second

// Multiples of timerInterval at which the coarser maintenance jobs run.
const (
	walletRefreshEveryNTicks    = 2  // ~30s
	deferredQueueEveryNTicks    = 2  // ~30s
	servicePingEveryNTicks      = 12 // ~180s
	traderDepositWatchEveryTick = 40 // ~600s
)

// Expiration timeouts, in seconds, driven by the timer. The source this
// was ported from never surfaced these as configuration; no concrete
// values were available to carry over, so these are a judgment call
// rather than a grounded constant.
const (
	pendingTTLSeconds  = 15 * 60     // trNew/trPending age past this: trOffline/trExpired
	ttlSeconds         = 60 * 60     // trExpired/trOffline age past this: erased
	deadlineTTLSeconds = 2 * 60 * 60 // trPending hard-erased past this age regardless of TTL
)

// Timer runs the periodic maintenance sweep: finished-transaction cleanup,
// wallet reachability refresh, pending-order relay, expiration, and (for a
// service node) trader deposit watching and service pings.
type Timer struct {
	app *App

	tickCount uint64

	// deferred holds inbound packets that arrived for an order this
	// process doesn't know about yet (the counterpart may be relayed before
	// the order announcement is). Drained every deferredQueueEveryNTicks.
	deferredMtx sync.Mutex
	deferred    []*deferredPacket
}

type deferredPacket struct {
	orderID string
	handle  func() bool // returns true if it should be retried later
}

// NewTimer builds a Timer bound to app.
func NewTimer(app *App) *Timer {
	return &Timer{app: app}
}

// Run blocks, ticking every timerInterval until ctx is canceled. Built on
// dex/wait.TickerQueue, a "run a function on a fixed recheck interval
// until told to stop" primitive, rather than a hand-rolled ticker loop.
func (t *Timer) Run(ctx context.Context) {
	q := wait.NewTickerQueue(timerInterval)
	q.Wait(&wait.Waiter{
		Expiration: time.Now().Add(neverExpires),
		TryFunc: func() wait.TryDirective {
			t.tickCount++
			t.tick(ctx)
			return wait.TryAgain
		},
		ExpireFunc: func() {},
	})
	q.Run(ctx)
}

func (t *Timer) tick(ctx context.Context) {
	orders := t.app.cfg.Orders.Snapshot()

	t.forEachOrder(orders, func(o *swaporder.Order) {
		t.checkFinishedTransaction(o)
	})

	if t.tickCount%walletRefreshEveryNTicks == 0 {
		t.refreshWalletReachability(ctx)
	}

	t.checkAndRelayPendingOrders(ctx, orders)
	t.checkAndEraseExpiredTransactions(orders)

	if !t.app.cfg.IsServiceNode {
		t.forEachOrder(orders, func(o *swaporder.Order) {
			checkWatchesOnDepositSpends(ctx, t.app, o)
		})
	} else {
		if t.tickCount%traderDepositWatchEveryTick == 0 {
			t.forEachOrder(orders, func(o *swaporder.Order) {
				watchTraderDeposits(ctx, t.app, o)
			})
		}
		if t.tickCount%servicePingEveryNTicks == 0 {
			t.pingService(ctx)
		}
	}

	if t.tickCount%deferredQueueEveryNTicks == 0 {
		t.drainDeferred()
	}
}

// forEachOrder dispatches fn across orders on a worker pool sized to
// hardware concurrency, so one slow order (a wallet RPC stall) never
// serializes the rest of the sweep behind it.
func (t *Timer) forEachOrder(orders []*swaporder.Order, fn func(*swaporder.Order)) {
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for _, o := range orders {
		if !o.TryLock() {
			continue // another mutator already owns this order this tick
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(o *swaporder.Order) {
			defer wg.Done()
			defer func() { <-sem }()
			defer o.Unlock()
			fn(o)
		}(o)
	}
	wg.Wait()
}

// checkFinishedTransaction erases an order that has reached a terminal
// state, releasing whatever reservations it still holds.
func (t *Timer) checkFinishedTransaction(o *swaporder.Order) {
	if !o.StateLocked().IsTerminal() {
		return
	}
	t.app.cfg.Locks.UnlockCoins(o.FromCurrency, o.UsedCoins)
	t.app.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
	t.app.cfg.Orders.Erase(o.ID)
}

// refreshWalletReachability pings every configured wallet's Init and
// records the result, feeding snode.Exchange.SetWalletActive for the
// service-node side of §4.7 Create step 1's advertised-services filter.
func (t *Timer) refreshWalletReachability(ctx context.Context) {
	for ticker, w := range t.app.cfg.Wallets {
		reachable := w.Init(ctx)
		if t.app.cfg.OnWalletReachability != nil {
			t.app.cfg.OnWalletReachability(ticker, reachable)
		}
	}
}

// checkAndRelayPendingOrders is the Maker-side rebroadcast entry point,
// implemented in rebroadcast.go.
func (t *Timer) checkAndRelayPendingOrders(ctx context.Context, orders []*swaporder.Order) {
	rebroadcastPendingOrders(ctx, t.app, orders)
}

// checkAndEraseExpiredTransactions ages every non-terminal order against
// pendingTTL/TTL/deadlineTTL: trNew goes offline, trPending expires, an
// offline order that's been relayed again returns to trPending, and
// anything stuck past TTL (or trPending past deadlineTTL) is erased and its
// reservations released. trExpired is terminal, so the state machine
// refuses its trPending edge, and checkFinishedTransaction erases an
// expired order on the next tick.
func (t *Timer) checkAndEraseExpiredTransactions(orders []*swaporder.Order) {
	now := time.Now()
	var toErase []*swaporder.Order

	for _, o := range orders {
		if !o.TryLock() {
			continue
		}
		state := o.StateLocked()
		sinceTx := now.Sub(o.TxTime)
		sinceCreated := now.Sub(o.Created)

		switch {
		case state == swaporder.StateNew && sinceTx > pendingTTLSeconds*time.Second:
			o.SetStateLocked(swaporder.StateOffline)
		case state == swaporder.StatePending && sinceTx > pendingTTLSeconds*time.Second:
			o.SetStateLocked(swaporder.StateExpired)
		case (state == swaporder.StateOffline || state == swaporder.StateExpired) && sinceTx < pendingTTLSeconds*time.Second:
			o.SetStateLocked(swaporder.StatePending)
		case (state == swaporder.StateOffline || state == swaporder.StateExpired) && sinceTx > ttlSeconds*time.Second:
			toErase = append(toErase, o)
		case state == swaporder.StatePending && sinceCreated > deadlineTTLSeconds*time.Second:
			toErase = append(toErase, o)
		}
		o.Unlock()
	}

	for _, o := range toErase {
		t.app.cfg.Locks.UnlockCoins(o.FromCurrency, o.UsedCoins)
		t.app.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
		t.app.cfg.Orders.Erase(o.ID)
	}
}

// pingService announces this node's continued availability to the
// directory it participates in, when running as a service node.
func (t *Timer) pingService(ctx context.Context) {
	if t.app.cfg.PingService != nil {
		t.app.cfg.PingService(ctx)
	}
}

// DeferPacket queues handle for retry on the next deferred-queue drain,
// used when a relayed packet names an order this process hasn't recorded
// yet.
func (t *Timer) DeferPacket(orderID string, handle func() bool) {
	t.deferredMtx.Lock()
	defer t.deferredMtx.Unlock()
	t.deferred = append(t.deferred, &deferredPacket{orderID: orderID, handle: handle})
}

func (t *Timer) drainDeferred() {
	t.deferredMtx.Lock()
	pending := t.deferred
	t.deferred = nil
	t.deferredMtx.Unlock()

	var retry []*deferredPacket
	for _, p := range pending {
		if p.handle() {
			retry = append(retry, p)
		}
	}
	if len(retry) > 0 {
		t.deferredMtx.Lock()
		t.deferred = append(retry, t.deferred...)
		t.deferredMtx.Unlock()
	}
}

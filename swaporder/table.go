// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package swaporder

import "sync"

// Table is the process-wide live-order map, guarded by a single mutex
// (txLocker in the concurrency model). History is not persisted past
// process lifetime; Erase is the only way an order leaves the table.
type Table struct {
	mtx  sync.RWMutex
	live map[ID]*Order
}

// NewTable creates an empty order table.
func NewTable() *Table {
	return &Table{live: make(map[ID]*Order)}
}

// Put inserts or replaces an order.
func (t *Table) Put(o *Order) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.live[o.ID] = o
}

// Get looks up an order by ID.
func (t *Table) Get(id ID) (*Order, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	o, ok := t.live[id]
	return o, ok
}

// Erase removes an order from the live table. Callers must have already
// released the order's UTXO reservations.
func (t *Table) Erase(id ID) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delete(t.live, id)
}

// Snapshot returns a shallow copy of the live order pointers, safe to
// range over without holding the table lock (never hold txLocker while
// performing wallet RPCs -- copy out the snapshot first).
func (t *Table) Snapshot() []*Order {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	out := make([]*Order, 0, len(t.live))
	for _, o := range t.live {
		out = append(out, o)
	}
	return out
}

// Len reports the number of live orders.
func (t *Table) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.live)
}

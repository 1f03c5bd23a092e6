// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// hashBudgetBytes is the estimated per-entry cost of the dedup set, per
// §4.6: "estimated 64 B per hash".
const hashBudgetBytes = 64

// Dedup is the process-wide set of recently-processed packet hashes (§4.6).
// A packet whose hash is already present is silently dropped by the
// caller; Dedup itself only tracks membership and evicts once the set
// would exceed its configured byte budget. Grounded on coinlock.Registry's
// single-mutex, single-purpose table shape.
type Dedup struct {
	mtx     sync.Mutex
	order   []chainhash.Hash // insertion order, oldest first
	present map[chainhash.Hash]struct{}
	maxSize int // maximum number of entries, derived from the MB budget
}

// NewDedup builds a Dedup that evicts oldest-first once it would exceed
// maxMempoolMB megabytes at hashBudgetBytes per entry.
func NewDedup(maxMempoolMB int) *Dedup {
	maxSize := (maxMempoolMB * 1024 * 1024) / hashBudgetBytes
	if maxSize < 1 {
		maxSize = 1
	}
	return &Dedup{
		present: make(map[chainhash.Hash]struct{}),
		maxSize: maxSize,
	}
}

// SeenOrRecord reports whether hash was already present; if it was not, it
// is recorded and false is returned, so a single call both checks and
// inserts atomically (testable property 8).
func (d *Dedup) SeenOrRecord(hash chainhash.Hash) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if _, ok := d.present[hash]; ok {
		return true
	}
	d.present[hash] = struct{}{}
	d.order = append(d.order, hash)
	d.evictLocked()
	return false
}

func (d *Dedup) evictLocked() {
	for len(d.order) > d.maxSize {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.present, oldest)
	}
}

// Len reports the current number of tracked hashes.
func (d *Dedup) Len() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.order)
}

// HashPacket computes the dedup key for a wire-encoded packet: a double
// SHA-256 over its encoded bytes, matching the hashing primitive already
// used for order IDs and sighash preimages throughout this module.
func HashPacket(encoded []byte) chainhash.Hash {
	return chainhash.DoubleHashH(encoded)
}

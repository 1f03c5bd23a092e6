// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package snode implements the service-node directory client (C10) and the
// service node's own matchmaker state (C11): the registry an App
// coordinator consults to pick a relay for a new order, and the
// accept/expire/active-wallet bookkeeping a service node itself performs
// over the orders it relays. Grounded on server/account/account.go's
// keyed-registry shape and server/asset/btc/rpcclient.go's use of
// math/rand for uniform selection.
package snode

import (
	"math/rand"
	"sync"
)

// PubKeySize is the length of a service node's identifying compressed
// pubkey.
const PubKeySize = 33

// Entry is one service node's advertised capabilities, per §3's "Service
// node entry" type.
type Entry struct {
	PubKey          [PubKeySize]byte
	Services        map[string]struct{} // advertised currency tickers
	ProtocolVersion uint32
	CollateralAddr  [20]byte
	Running         bool
}

// Advertises reports whether the entry advertises both currencies.
func (e *Entry) Advertises(fromCurrency, toCurrency string) bool {
	_, from := e.Services[fromCurrency]
	_, to := e.Services[toCurrency]
	return from && to
}

// Directory is the process-wide view of known service nodes, consulted as
// a read-mostly lookup table (§3: "Service-node registry ... consumed as a
// directory").
type Directory struct {
	mtx   sync.RWMutex
	nodes map[[PubKeySize]byte]*Entry
}

// NewDirectory builds an empty Directory.
func NewDirectory() *Directory {
	return &Directory{nodes: make(map[[PubKeySize]byte]*Entry)}
}

// Put inserts or replaces a node's directory entry, as would happen on
// receipt of a fresh service-node announcement.
func (d *Directory) Put(e *Entry) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.nodes[e.PubKey] = e
}

// Remove drops a node from the directory.
func (d *Directory) Remove(pubKey [PubKeySize]byte) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	delete(d.nodes, pubKey)
}

// Get looks up a single node by pubkey.
func (d *Directory) Get(pubKey [PubKeySize]byte) (*Entry, bool) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	e, ok := d.nodes[pubKey]
	return e, ok
}

// Filter returns every running node that advertises both currencies at
// protocolVersion or above and is not present in exclude.
func (d *Directory) Filter(fromCurrency, toCurrency string, minProtocolVersion uint32, exclude map[[PubKeySize]byte]struct{}) []*Entry {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	var out []*Entry
	for key, e := range d.nodes {
		if !e.Running {
			continue
		}
		if _, excluded := exclude[key]; excluded {
			continue
		}
		if e.ProtocolVersion < minProtocolVersion {
			continue
		}
		if !e.Advertises(fromCurrency, toCurrency) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Ping refreshes this node's own directory entry, the local half of the
// service ping §4.9 drives every 12th timer tick: the node always knows its
// own latest reachable-wallet set, so Ping just re-Puts it as Running
// rather than waiting on a round trip. Propagating this entry to peers
// would need a wire command outside session.Command's Create/Accept scope
// (no ServiceNodeAnnounce exists), so Ping only updates the local view.
func (d *Directory) Ping(pubKey [PubKeySize]byte, services []string, protocolVersion uint32, collateralAddr [20]byte) {
	svc := make(map[string]struct{}, len(services))
	for _, s := range services {
		svc[s] = struct{}{}
	}
	d.Put(&Entry{
		PubKey:          pubKey,
		Services:        svc,
		ProtocolVersion: protocolVersion,
		CollateralAddr:  collateralAddr,
		Running:         true,
	})
}

// SelectRandom picks uniformly at random among nodes advertising both
// currencies at protocolVersion or above, excluding exclude (§4.7 Create
// step 1: "Selection is uniform-random over the filtered set").
func (d *Directory) SelectRandom(fromCurrency, toCurrency string, minProtocolVersion uint32, exclude map[[PubKeySize]byte]struct{}) (*Entry, bool) {
	candidates := d.Filter(fromCurrency, toCurrency, minProtocolVersion, exclude)
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

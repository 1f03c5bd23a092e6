// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is the gossip network's connection manager: it accepts inbound peer
// connections, dials outbound ones, and keeps a registry of live Links
// keyed by peer ID so a packet addressed to a pubkey can be routed to the
// right connection. Grounded on server/comms/server.go's listener/client
// registry shape, adapted from its JSON-RPC client pool to session.Link's
// binary Envelope framing.
type Hub struct {
	mtx   sync.RWMutex
	links map[[PeerIDSize]byte]*Link

	dedup      *Dedup
	receive    func(*Envelope)
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
}

// NewHub builds a Hub. receive is invoked for every well-formed,
// signature-valid, non-duplicate packet from any connected peer.
func NewHub(dedup *Dedup, pingPeriod time.Duration, receive func(*Envelope)) *Hub {
	return &Hub{
		links:      make(map[[PeerIDSize]byte]*Link),
		dedup:      dedup,
		receive:    receive,
		pingPeriod: pingPeriod,
	}
}

func (h *Hub) addLink(id [PeerIDSize]byte, l *Link) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if old, ok := h.links[id]; ok {
		old.Disconnect()
	}
	h.links[id] = l
}

func (h *Hub) removeLink(id [PeerIDSize]byte, l *Link) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.links[id] == l {
		delete(h.links, id)
	}
}

// LinkCount reports the number of currently connected peers.
func (h *Hub) LinkCount() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.links)
}

// ServeHTTP upgrades an inbound request to a websocket connection and runs
// its Link until disconnect, blocking the calling goroutine (one per
// connection, per net/http's handler model).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.serve(r.Context(), conn)
}

// serve registers the peer under the ID carried by its first packet -- an
// inbound connection doesn't announce its identity until it sends one --
// then relays to Hub.receive for the life of the connection.
func (h *Hub) serve(ctx context.Context, conn Conn) {
	var l *Link
	var registered bool
	l = NewLink([PeerIDSize]byte{}, conn, h.dedup, h.pingPeriod, func(env *Envelope) {
		if !registered {
			l.peerID = PeerID(env.Packet.PubKey)
			h.addLink(l.peerID, l)
			registered = true
		}
		if h.receive != nil {
			h.receive(env)
		}
	})
	if err := l.Connect(ctx); err != nil {
		return
	}
	l.Wait()
	if registered {
		h.removeLink(l.peerID, l)
	}
}

// Dial opens an outbound connection to addr and registers it under
// PeerID(peerPubKey), so Send can reach that peer once connected.
func (h *Hub) Dial(ctx context.Context, addr string, peerPubKey []byte) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("session: dial %s: %w", addr, err)
	}
	id := PeerID(peerPubKey)
	l := NewLink(id, conn, h.dedup, h.pingPeriod, h.receive)
	if err := l.Connect(ctx); err != nil {
		conn.Close()
		return err
	}
	h.addLink(id, l)
	go func() {
		l.Wait()
		h.removeLink(id, l)
	}()
	return nil
}

// Send resolves peerPubKey to a peer ID and queues pkt for delivery on
// that peer's Link. Matches the signature app.Config.Send expects.
func (h *Hub) Send(ctx context.Context, peerPubKey []byte, pkt *Packet) error {
	id := PeerID(peerPubKey)
	h.mtx.RLock()
	l, ok := h.links[id]
	h.mtx.RUnlock()
	if !ok {
		return fmt.Errorf("session: no connection to peer %x", id)
	}
	return l.Send(&Envelope{PeerID: id, Timestamp: uint64(time.Now().UnixMicro()), Packet: pkt})
}

// ListenAndServe runs the Hub's inbound websocket listener until ctx is
// canceled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const outBufferSize = 128

const writeWait = 5 * time.Second

// Conn is the minimal transport a Link needs; *websocket.Conn satisfies it,
// and tests substitute a stub. Mirrors dex/ws/wslink.go's Connection
// interface.
type Conn interface {
	Close() error
	SetReadDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

// ErrPeerDisconnected is returned by Send when called on a stopped Link.
type ErrPeerDisconnected struct{}

func (ErrPeerDisconnected) Error() string { return "session: peer disconnected" }

// Link is the per-connection transport for one gossip peer: it frames
// outbound envelopes, dedups and dispatches inbound ones. Grounded on
// dex/ws/wslink.go's WSLink -- same on/stopped/outChan shape, generalized
// from a JSON-RPC message to a binary Envelope.
type Link struct {
	peerID  [PeerIDSize]byte
	conn    Conn
	on      uint32
	quit    context.CancelFunc
	stopped chan struct{}
	outChan chan []byte
	wg      sync.WaitGroup

	dedup   *Dedup
	receive func(*Envelope)

	pingPeriod time.Duration
}

// NewLink builds a Link for one peer connection. receive is invoked for
// every envelope whose packet is well-formed, signature-valid, and not a
// duplicate already seen by dedup.
func NewLink(peerID [PeerIDSize]byte, conn Conn, dedup *Dedup, pingPeriod time.Duration, receive func(*Envelope)) *Link {
	return &Link{
		peerID:     peerID,
		conn:       conn,
		outChan:    make(chan []byte, outBufferSize),
		dedup:      dedup,
		receive:    receive,
		pingPeriod: pingPeriod,
	}
}

// Connect starts the read and write pumps.
func (l *Link) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&l.on, 0, 1) {
		return fmt.Errorf("session: link already running")
	}
	linkCtx, cancel := context.WithCancel(ctx)
	l.quit = cancel
	l.stopped = make(chan struct{})

	if err := l.conn.SetReadDeadline(time.Now().Add(l.pingPeriod * 2)); err != nil {
		return fmt.Errorf("session: setting initial read deadline: %w", err)
	}

	l.wg.Add(2)
	go l.inHandler(linkCtx)
	go l.outHandler(linkCtx)
	return nil
}

func (l *Link) stop() bool {
	if !atomic.CompareAndSwapUint32(&l.on, 1, 0) {
		return false
	}
	close(l.stopped)
	l.quit()
	return true
}

// Disconnect stops the pumps and closes the underlying connection.
func (l *Link) Disconnect() {
	l.stop()
}

// Wait blocks until both pumps have exited.
func (l *Link) Wait() {
	l.wg.Wait()
}

// Send queues env for delivery. A nil error only means the envelope was
// encoded and queued, not that it was written to the wire.
func (l *Link) Send(env *Envelope) error {
	if atomic.LoadUint32(&l.on) == 0 {
		return ErrPeerDisconnected{}
	}
	b, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case l.outChan <- b:
	case <-l.stopped:
		return ErrPeerDisconnected{}
	}
	return nil
}

func (l *Link) inHandler(ctx context.Context) {
	defer l.wg.Done()
	defer l.stop()
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			continue
		}
		if !env.Packet.Verify() {
			continue
		}
		if l.dedup != nil && l.dedup.SeenOrRecord(HashPacket(mustEncode(env.Packet))) {
			continue
		}
		if l.receive != nil {
			l.receive(env)
		}
	}
}

func (l *Link) outHandler(ctx context.Context) {
	defer l.wg.Done()
	defer l.conn.Close()
	defer l.stop()
	for {
		select {
		case b := <-l.outChan:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func mustEncode(p *Packet) []byte {
	b, err := p.Encode()
	if err != nil {
		return nil
	}
	return b
}

// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package session implements the wire codec, signing, and transport for
// the gossip packets the core exchanges with its peers (C6): sign/verify
// of an XBridgePacket, the peerId/timestamp envelope it travels in, and
// dedup of already-seen packets. Grounded on the packet layout and command
// set of §4.6/§6, and on dex/ws/wslink.go for the connection abstraction
// and read/write-pump shape.
package session

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Command identifies the payload layout carried by a Packet. The core
// dispatches on this value; it never conflates it with an application
// error code.
type Command uint32

const (
	CmdInvalid Command = iota
	// CmdTransaction is the Maker's initial pending-order announcement
	// (§4.7 Create step 6).
	CmdTransaction
	// CmdTransactionAccepting is the Taker's accept announcement (§4.7
	// Accept step 6).
	CmdTransactionAccepting
	CmdTransactionHold
	CmdTransactionInit
	CmdTransactionInitialized
	CmdTransactionCreate
	CmdTransactionCreated
	CmdTransactionSign
	CmdTransactionCommit
	CmdTransactionConfirm
	CmdTransactionCancel
	CmdTransactionRollback
	CmdTransactionFinished
	CmdTransactionDropped
)

// PubKeySize and SignatureSize are the fixed-width fields of a Packet, per
// §6's wire layout.
const (
	PubKeySize    = 33
	SignatureSize = 64
)

const headerSize = 4 + 4 + 4 + 8 // version, command, bodySize, timestamp

// ProtocolVersion is the version field every Packet this build produces
// carries.
const ProtocolVersion uint32 = 1

// ErrMalformedPacket is returned by Decode/Verify for any structurally
// invalid packet: short buffers, a bodySize that doesn't match the
// remaining bytes, or a signature that fails to verify.
var ErrMalformedPacket = errors.New("session: malformed packet")

// Packet is a single signed gossip message.
type Packet struct {
	Version   uint32
	Command   Command
	Timestamp uint64 // microseconds since epoch
	PubKey    []byte // 33-byte compressed ephemeral pubkey
	Signature []byte // 64-byte raw (R||S) ECDSA signature, not DER
	Payload   []byte
}

// signedPreimage returns the exact byte sequence sign/verify operate over:
// (version, command, bodySize, timestamp, payload), per §4.6.
func signedPreimage(version uint32, command Command, timestamp uint64, payload []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, version)
	binary.Write(&buf, binary.LittleEndian, uint32(command))
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&buf, binary.LittleEndian, timestamp)
	buf.Write(payload)
	return buf.Bytes()
}

// Sign builds a Packet for command/payload, signed by priv, whose
// corresponding compressed pubkey is carried alongside the signature. The
// signature is the raw 64-byte (R||S) form: SignCompact's 65-byte
// recoverable output with the leading recovery-id byte stripped, since
// packet verification here always has the pubkey in hand and never needs
// to recover it.
func Sign(priv *btcec.PrivateKey, command Command, timestamp uint64, payload []byte) (*Packet, error) {
	pub := priv.PubKey().SerializeCompressed()
	preimage := signedPreimage(ProtocolVersion, command, timestamp, payload)
	h := chainhash.DoubleHashB(preimage)

	compact := ecdsa.SignCompact(priv, h, true)
	if len(compact) != 65 {
		return nil, errors.New("session: unexpected compact signature length")
	}
	raw := compact[1:]

	return &Packet{
		Version:   ProtocolVersion,
		Command:   command,
		Timestamp: timestamp,
		PubKey:    pub,
		Signature: raw,
		Payload:   payload,
	}, nil
}

// Verify reports whether p carries a well-formed 64-byte signature over its
// own header fields and payload, valid under its own embedded pubkey.
func (p *Packet) Verify() bool {
	if len(p.PubKey) != PubKeySize || len(p.Signature) != SignatureSize {
		return false
	}
	pub, err := btcec.ParsePubKey(p.PubKey)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(p.Signature[:32]) {
		return false // overflow: not a valid scalar
	}
	if s.SetByteSlice(p.Signature[32:]) {
		return false
	}
	sig := ecdsa.NewSignature(&r, &s)

	preimage := signedPreimage(p.Version, p.Command, p.Timestamp, p.Payload)
	h := chainhash.DoubleHashB(preimage)
	return sig.Verify(h, pub)
}

// Encode serializes p to its wire form: u32 version | u32 command | u32
// bodySize | u64 timestamp | 33B pubkey | 64B signature | payload.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.PubKey) != PubKeySize || len(p.Signature) != SignatureSize {
		return nil, ErrMalformedPacket
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, p.Version)
	binary.Write(&buf, binary.LittleEndian, uint32(p.Command))
	binary.Write(&buf, binary.LittleEndian, uint32(len(p.Payload)))
	binary.Write(&buf, binary.LittleEndian, p.Timestamp)
	buf.Write(p.PubKey)
	buf.Write(p.Signature)
	buf.Write(p.Payload)
	return buf.Bytes(), nil
}

// Decode parses a wire-form Packet. It does not verify the signature;
// callers that need an authenticated packet should call Verify explicitly.
func Decode(b []byte) (*Packet, error) {
	if len(b) < headerSize+PubKeySize+SignatureSize {
		return nil, ErrMalformedPacket
	}
	r := bytes.NewReader(b)
	var p Packet
	var command, bodySize uint32
	binary.Read(r, binary.LittleEndian, &p.Version)
	binary.Read(r, binary.LittleEndian, &command)
	binary.Read(r, binary.LittleEndian, &bodySize)
	binary.Read(r, binary.LittleEndian, &p.Timestamp)
	p.Command = Command(command)

	p.PubKey = make([]byte, PubKeySize)
	if _, err := r.Read(p.PubKey); err != nil {
		return nil, ErrMalformedPacket
	}
	p.Signature = make([]byte, SignatureSize)
	if _, err := r.Read(p.Signature); err != nil {
		return nil, ErrMalformedPacket
	}
	if uint32(r.Len()) != bodySize {
		return nil, ErrMalformedPacket
	}
	p.Payload = make([]byte, bodySize)
	if bodySize > 0 {
		if _, err := r.Read(p.Payload); err != nil {
			return nil, ErrMalformedPacket
		}
	}
	return &p, nil
}

// PeerIDSize and envelope layout, per §6: 20B peerId | 8B timestamp |
// packet.
const PeerIDSize = 20

// Envelope wraps a Packet with the destination/origin peer identifier and
// the send timestamp the P2P layer attaches before relaying.
type Envelope struct {
	PeerID    [PeerIDSize]byte
	Timestamp uint64
	Packet    *Packet
}

// Encode serializes the envelope: 20B peerId | 8B timestamp | packet.
func (e *Envelope) Encode() ([]byte, error) {
	packetBytes, err := e.Packet.Encode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(e.PeerID[:])
	binary.Write(&buf, binary.LittleEndian, e.Timestamp)
	buf.Write(packetBytes)
	return buf.Bytes(), nil
}

// DecodeEnvelope parses an Envelope from its wire form.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	if len(b) < PeerIDSize+8 {
		return nil, ErrMalformedPacket
	}
	var e Envelope
	copy(e.PeerID[:], b[:PeerIDSize])
	e.Timestamp = binary.LittleEndian.Uint64(b[PeerIDSize : PeerIDSize+8])
	p, err := Decode(b[PeerIDSize+8:])
	if err != nil {
		return nil, err
	}
	e.Packet = p
	return &e, nil
}

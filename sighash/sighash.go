// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package sighash computes BIP143-style, fork-aware signature hashes for
// HTLC spends on BCH-derived chains that advertise SIGHASH_FORKID together
// with a chain-specific replay-protection transform. It is a pure function
// over a *wire.MsgTx view, with no hidden cache -- the source's cache_t
// pointer is always nil, so there is nothing to thread through here.
package sighash

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Base sighash types.
const (
	BaseAll    uint32 = 1
	BaseNone   uint32 = 2
	BaseSingle uint32 = 3
)

// Sighash type modifiers.
const (
	AnyoneCanPay uint32 = 0x80
	ForkID       uint32 = 0x40
)

// replayProtectionXOR serves SCRIPT_ENABLE_REPLAY_PROTECTION: the forkId
// is always replaced, regardless of whether the caller asked for it, because
// the core only ever calls this engine for BCH-style chains that require it.
const replayProtectionXOR uint32 = 0xdead

// Type is a BCH-style sighash type: a base type, optional ANYONECANPAY, and
// a 24-bit fork value packed above the low byte, exactly mirroring the
// source's SigHashType bit layout (forkValue<<8 | rawByte).
type Type uint32

// New builds a Type from a base type and flags.
func New(base uint32, anyoneCanPay bool) Type {
	raw := base
	if anyoneCanPay {
		raw |= AnyoneCanPay
	}
	raw |= ForkID
	return Type(raw)
}

// BaseType returns the base sighash type, stripping fork id / anyonecanpay.
func (t Type) BaseType() uint32 {
	return uint32(t) & 0x1f
}

// HasAnyoneCanPay reports the ANYONECANPAY modifier.
func (t Type) HasAnyoneCanPay() bool {
	return uint32(t)&AnyoneCanPay != 0
}

// HasForkID reports the FORKID modifier.
func (t Type) HasForkID() bool {
	return uint32(t)&ForkID != 0
}

// ForkValue extracts the 24-bit fork value packed above the low byte.
func (t Type) ForkValue() uint32 {
	return uint32(t) >> 8
}

// WithForkValue replaces the 24-bit fork value, keeping the low byte as-is.
func (t Type) WithForkValue(forkValue uint32) Type {
	return Type((forkValue << 8) | (uint32(t) & 0xff))
}

// Byte returns the single byte appended to a DER signature on the stack:
// the raw sighash type truncated to its low byte.
func (t Type) Byte() byte {
	return byte(uint32(t) & 0xff)
}

// replayProtected returns t with the XBridge-style replay-protection
// transform applied: the fork value is replaced with 0xff0000 | (fork value
// XOR 0xdead), guaranteeing a hash that can never collide with a standard,
// non-replay-protected signature over the same inputs (testable property 5).
func (t Type) replayProtected() Type {
	newForkValue := t.ForkValue() ^ replayProtectionXOR
	return t.WithForkValue(0xff0000 | newForkValue)
}

func doubleSHA256(b []byte) chainhash.Hash {
	return chainhash.DoubleHashH(b)
}

func hashPrevouts(tx *wire.MsgTx) chainhash.Hash {
	var buf bytes.Buffer
	for _, in := range tx.TxIn {
		buf.Write(in.PreviousOutPoint.Hash[:])
		binary.Write(&buf, binary.LittleEndian, in.PreviousOutPoint.Index)
	}
	return doubleSHA256(buf.Bytes())
}

func hashSequence(tx *wire.MsgTx) chainhash.Hash {
	var buf bytes.Buffer
	for _, in := range tx.TxIn {
		binary.Write(&buf, binary.LittleEndian, in.Sequence)
	}
	return doubleSHA256(buf.Bytes())
}

func writeTxOut(buf *bytes.Buffer, out *wire.TxOut) {
	binary.Write(buf, binary.LittleEndian, out.Value)
	writeVarBytes(buf, out.PkScript)
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	wire.WriteVarInt(buf, 0, uint64(len(b)))
	buf.Write(b)
}

func hashOutputs(tx *wire.MsgTx) chainhash.Hash {
	var buf bytes.Buffer
	for _, out := range tx.TxOut {
		writeTxOut(&buf, out)
	}
	return doubleSHA256(buf.Bytes())
}

func hashSingleOutput(tx *wire.MsgTx, idx int) chainhash.Hash {
	var buf bytes.Buffer
	writeTxOut(&buf, tx.TxOut[idx])
	return doubleSHA256(buf.Bytes())
}

// Calc computes the fork-aware signature hash for input index n of tx,
// spending amount satoshis locked by scriptCode, per hashType. The
// replay-protection transform is always applied, matching the source's
// hard-coded SCRIPT_ENABLE_REPLAY_PROTECTION flag.
func Calc(tx *wire.MsgTx, n int, scriptCode []byte, hashType Type, amount int64) (chainhash.Hash, error) {
	return calcRaw(tx, n, scriptCode, hashType.replayProtected(), amount)
}

// calcRaw computes the preimage hash for hashType exactly as given, with no
// replay-protection transform applied. Calc is the public entry point and
// always routes through the transform; calcRaw exists so tests can verify
// that the transform actually changes the hash (testable property 5).
func calcRaw(tx *wire.MsgTx, n int, scriptCode []byte, hashType Type, amount int64) (chainhash.Hash, error) {
	if n < 0 || n >= len(tx.TxIn) {
		return chainhash.Hash{}, errors.New("sighash: input index out of range")
	}

	if !hashType.HasForkID() {
		return chainhash.Hash{}, errors.New("sighash: fork id required")
	}

	var hPrevouts, hSequence, hOutputs chainhash.Hash

	if !hashType.HasAnyoneCanPay() {
		hPrevouts = hashPrevouts(tx)
	}

	base := hashType.BaseType()
	if !hashType.HasAnyoneCanPay() && base != BaseSingle && base != BaseNone {
		hSequence = hashSequence(tx)
	}

	switch {
	case base != BaseSingle && base != BaseNone:
		hOutputs = hashOutputs(tx)
	case base == BaseSingle && n < len(tx.TxOut):
		hOutputs = hashSingleOutput(tx, n)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, tx.Version)
	buf.Write(hPrevouts[:])
	buf.Write(hSequence[:])
	buf.Write(tx.TxIn[n].PreviousOutPoint.Hash[:])
	binary.Write(&buf, binary.LittleEndian, tx.TxIn[n].PreviousOutPoint.Index)
	writeVarBytes(&buf, scriptCode)
	binary.Write(&buf, binary.LittleEndian, amount)
	binary.Write(&buf, binary.LittleEndian, tx.TxIn[n].Sequence)
	buf.Write(hOutputs[:])
	binary.Write(&buf, binary.LittleEndian, tx.LockTime)
	binary.Write(&buf, binary.LittleEndian, uint32(hashType))

	return doubleSHA256(buf.Bytes()), nil
}

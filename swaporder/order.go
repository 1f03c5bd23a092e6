// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package swaporder holds the per-order record (the "TransactionDescr" of
// an atomic swap) and its state machine. An Order is created by a Maker or
// accepted by a Taker, and lives in the coordinator's in-memory order table
// until it reaches a terminal state, at which point its UTXO reservations
// are released and it is moved to a history projection by the caller.
package swaporder

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/xbridge-swap/xbridge-core/coin"
)

// IDSize is the length in bytes of an order ID.
const IDSize = chainhash.HashSize // 32

// ID uniquely identifies an order. It is derived from a hash over the
// order's defining fields plus a recent block hash and the signature of
// the first reserved input, making replay of an identical-looking order
// practically impossible (testable property 3).
type ID [IDSize]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Role is the local party's side of the swap.
type Role uint8

const (
	// RoleMaker (A) creates and broadcasts the order.
	RoleMaker Role = iota
	// RoleTaker (B) accepts an existing order.
	RoleTaker
)

func (r Role) String() string {
	if r == RoleTaker {
		return "B"
	}
	return "A"
}

// CancelReason is a closed set of reasons an order can be driven to a
// terminal cancelled/rollback state.
type CancelReason string

// The recognized cancellation reasons.
const (
	ReasonBadSettings     CancelReason = "bad-settings"
	ReasonUserRequest     CancelReason = "user-request"
	ReasonNoMoney         CancelReason = "no-money"
	ReasonBadUTXO         CancelReason = "bad-utxo"
	ReasonDust            CancelReason = "dust"
	ReasonRPCError        CancelReason = "rpc-error"
	ReasonNotSigned       CancelReason = "not-signed"
	ReasonNotAccepted     CancelReason = "not-accepted"
	ReasonRollback        CancelReason = "rollback"
	ReasonRPCRequest      CancelReason = "rpc-request"
	ReasonRejected        CancelReason = "xbridge-rejected"
	ReasonInvalidAddress  CancelReason = "invalid-address"
	ReasonBlocknetError   CancelReason = "blocknet-error"
	ReasonBadADepositTx   CancelReason = "bad-a-deposit-tx"
	ReasonBadBDepositTx   CancelReason = "bad-b-deposit-tx"
	ReasonTimeout         CancelReason = "timeout"
	ReasonBadLockTime     CancelReason = "bad-lock-time"
	ReasonBadALockTime    CancelReason = "bad-a-lock-time"
	ReasonBadBLockTime    CancelReason = "bad-b-lock-time"
	ReasonBadAUTXO        CancelReason = "bad-a-utxo"
	ReasonBadBUTXO        CancelReason = "bad-b-utxo"
	ReasonBadARefundTx    CancelReason = "bad-a-refund-tx"
	ReasonBadBRefundTx    CancelReason = "bad-b-refund-tx"
	ReasonBadFeeTx        CancelReason = "bad-fee-tx"
	ReasonUnknown         CancelReason = "unknown"
)

// Order is the central per-swap record. Field names mirror the data model's
// TransactionDescr attributes; unexported mu guards State transitions via
// TryLock so that at most one mutator ever touches an order concurrently
// (see (*Order).TryLock).
type Order struct {
	mu sync.Mutex

	ID   ID
	Role Role

	From, To         [20]byte
	FromAddr, ToAddr string

	FromCurrency, ToCurrency string
	FromAmount, ToAmount     int64

	MPrivKey, MPubKey []byte
	XPrivKey, XPubKey []byte

	UsedCoins []*coin.Unspent
	FeeUtxos  []*coin.Unspent

	BinTxID   string
	BinTxVout uint32

	// RedeemScript is the HTLC script locking BinTxID:BinTxVout; OtherPubKey
	// is the counterparty identity pubkey compiled into its refund/verify
	// branches (see package script). Both are known once the deposit has
	// been observed on-chain.
	RedeemScript []byte
	OtherPubKey  []byte

	// WatchStartBlock/LastScannedBlock track the Taker-side deposit-spend
	// watch's scan progress (§4.12); Preimage and Redeemed/RefundSent record
	// its outcome once the counterparty's spend is observed.
	WatchStartBlock  uint32
	LastScannedBlock uint32
	Preimage         []byte
	Redeemed         bool
	RefundSent       bool

	HubAddress    [20]byte
	SPubKey       []byte
	ExcludedNodes map[string]struct{}

	Created   time.Time
	TxTime    time.Time
	LockTime  int64
	BlockHash string
	Reason    CancelReason

	state State
}

// New builds an Order in StateNew with empty tracking sets.
func New(role Role) *Order {
	return &Order{
		Role:          role,
		ExcludedNodes: make(map[string]struct{}),
		Created:       time.Now(),
		TxTime:        time.Now(),
		state:         StateNew,
	}
}

// State returns the order's current state.
func (o *Order) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetState attempts the transition to next, returning an error if it is not
// permitted by the state machine. Callers that need to guard a larger
// critical section spanning the transition should use TryLock/Unlock
// directly and call setStateLocked.
func (o *Order) SetState(next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setStateLocked(next)
}

func (o *Order) setStateLocked(next State) error {
	if !CanTransition(o.state, next) {
		return fmt.Errorf("swaporder: illegal transition %s -> %s", o.state, next)
	}
	o.state = next
	return nil
}

// TryLock attempts to acquire the order's mutator lock without blocking. It
// is the mechanism by which the timer sweep (C8) and incoming-packet
// handlers (C7) achieve at-most-one concurrent mutator per order: callers
// that fail to acquire it skip the order this tick rather than blocking the
// worker.
func (o *Order) TryLock() bool {
	return o.mu.TryLock()
}

// Unlock releases a lock acquired by TryLock.
func (o *Order) Unlock() {
	o.mu.Unlock()
}

// SetStateLocked transitions the order's state; the caller must already
// hold the lock via a successful TryLock.
func (o *Order) SetStateLocked(next State) error {
	return o.setStateLocked(next)
}

// StateLocked reads the order's state without acquiring mu; the caller
// must already hold the lock via a successful TryLock. Calling State
// instead here would self-deadlock, since mu is not reentrant.
func (o *Order) StateLocked() State {
	return o.state
}

// IDInput carries the fields hashed to derive an order's ID.
type IDInput struct {
	FromAddr, ToAddr         string
	FromCurrency, ToCurrency string
	FromAmount, ToAmount     int64
	CreatedUnixMicro         int64
	BlockHash                string
	FirstInputSignature      []byte
}

// CalcID derives the 32-byte order identifier as the double-SHA256 hash of
// the serialized IDInput tuple. Any change to from/to address, currency,
// amount, creation timestamp, the anchoring block hash, or the signature
// over the order's first reserved input produces a different ID, making two
// legitimately distinct orders collide only with negligible probability
// (testable property 3).
func CalcID(in IDInput) ID {
	var buf bytes.Buffer
	buf.WriteString(in.FromAddr)
	buf.WriteString(in.FromCurrency)
	binary.Write(&buf, binary.LittleEndian, in.FromAmount)
	buf.WriteString(in.ToAddr)
	buf.WriteString(in.ToCurrency)
	binary.Write(&buf, binary.LittleEndian, in.ToAmount)
	binary.Write(&buf, binary.LittleEndian, in.CreatedUnixMicro)
	buf.WriteString(in.BlockHash)
	buf.Write(in.FirstInputSignature)
	return ID(chainhash.DoubleHashB(buf.Bytes()))
}

// ErrNotFound is returned by a table lookup for an unknown order ID.
var ErrNotFound = errors.New("swaporder: order not found")

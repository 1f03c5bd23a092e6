// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package coin defines the chain-agnostic representation of an unspent
// transaction output used throughout order creation, UTXO locking, and
// HTLC construction.
package coin

import "fmt"

// ID identifies a UTXO by its outpoint and is used as a comparable map key
// by the coin lock registry. Equality is defined purely by (txid, vout),
// matching the data model's UTXO entry equality rule.
type ID string

// NewID builds the canonical ID for an outpoint.
func NewID(txID string, vout uint32) ID {
	return ID(fmt.Sprintf("%s:%d", txID, vout))
}

// Unspent is a single UTXO entry as tracked by an order, carrying the
// ownership signature produced by WalletConnector.signMessage over the
// UTXO's string form.
type Unspent struct {
	TxID      string
	Vout      uint32
	Amount    float64
	Address   string
	RawAddr   [20]byte
	Signature []byte // 65-byte recoverable signature over String()
}

// ID returns the comparable identifier for this UTXO.
func (u *Unspent) ID() ID {
	return NewID(u.TxID, u.Vout)
}

// String renders the UTXO the same way WalletConnector.signMessage signs
// it: "txid:vout:amount:address".
func (u *Unspent) String() string {
	return fmt.Sprintf("%s:%d:%.8f:%s", u.TxID, u.Vout, u.Amount, u.Address)
}

// Equal reports whether two UTXOs reference the same outpoint.
func (u *Unspent) Equal(other *Unspent) bool {
	return u.TxID == other.TxID && u.Vout == other.Vout
}

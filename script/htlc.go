// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package script builds and spends the two-path HTLC redeem script used to
// lock a trader's deposit: a timelocked refund path for the depositor's
// counterparty (the "other" side relative to whoever created the output),
// and an immediate redeem path gated on presenting a 33-byte value whose
// HASH160 matches the order's ephemeral xPubKey. Grounded on
// dex/dcr/script.go's MakeContract/RedeemP2SHContract/RefundP2SHContract
// shape, generalized from a SHA256-secret scheme to the pubkey-preimage
// scheme this protocol uses.
package script

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for HASH160
)

// PubKeySize is the length of a compressed secp256k1 public key, and also
// the exact size the OP_SIZE check in the redeem branch enforces on the
// disclosed value.
const PubKeySize = 33

// SequenceFinal and the one-less variant used for CLTV-eligible refunds,
// mirroring xbridge::SEQUENCE_FINAL / SEQUENCE_FINAL-1.
const (
	SequenceFinal         uint32 = 0xFFFFFFFF
	SequenceFinalMinusOne uint32 = 0xFFFFFFFE
)

// Hash160 computes RIPEMD160(SHA256(b)), the standard Bitcoin pubkey/script
// hash used throughout the redeem script.
func Hash160(b []byte) []byte {
	h := ripemd160.New()
	sum := sha256.Sum256(b)
	h.Write(sum[:])
	return h.Sum(nil)
}

// HTLCScript builds the two-path redeem script:
//
//	OP_IF
//	    <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <HASH160(otherPub)> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ELSE
//	    OP_DUP OP_HASH160 <HASH160(otherPub)> OP_EQUALVERIFY OP_CHECKSIGVERIFY
//	    OP_SIZE <33> OP_EQUALVERIFY OP_HASH160 <HASH160(xPub)> OP_EQUAL
//	OP_ENDIF
//
// otherPub is the compressed pubkey of whichever party is entitled to spend
// this output (by refund after lockTime, or by redeem with the xPub preimage
// before then); xPub is the order's ephemeral redeem pubkey.
func HTLCScript(lockTime int64, otherPub, xPub []byte) ([]byte, error) {
	if len(otherPub) != PubKeySize {
		return nil, errors.New("script: otherPub must be 33 bytes")
	}
	if len(xPub) != PubKeySize {
		return nil, errors.New("script: xPub must be 33 bytes")
	}

	otherPubHash := Hash160(otherPub)
	xPubHash := Hash160(xPub)

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddInt64(lockTime).
		AddOps([]byte{txscript.OP_CHECKLOCKTIMEVERIFY, txscript.OP_DROP,
			txscript.OP_DUP, txscript.OP_HASH160}).
		AddData(otherPubHash).
		AddOps([]byte{txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG}).
		AddOp(txscript.OP_ELSE).
		AddOps([]byte{txscript.OP_DUP, txscript.OP_HASH160}).
		AddData(otherPubHash).
		AddOps([]byte{txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIGVERIFY, txscript.OP_SIZE}).
		AddInt64(PubKeySize).
		AddOps([]byte{txscript.OP_EQUALVERIFY, txscript.OP_HASH160}).
		AddData(xPubHash).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_ENDIF).
		Script()
}

// RefundSequence returns the nSequence value required for the CLTV refund
// path: one less than final when lockTime is set (required for
// OP_CHECKLOCKTIMEVERIFY to be evaluated at all), else final.
func RefundSequence(lockTime int64) uint32 {
	if lockTime > 0 {
		return SequenceFinalMinusOne
	}
	return SequenceFinal
}

// RefundSigScript builds the refund spend script:
// <sig> <pubkey> OP_TRUE <redeemScript>.
func RefundSigScript(sig, pubKey, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddOp(txscript.OP_TRUE).
		AddData(redeemScript).
		Script()
}

// PaymentSigScript builds the redeem (payment) spend script:
// <xPub(preimage)> <sig> <pubkey> OP_FALSE <redeemScript>.
func PaymentSigScript(xPubPreimage, sig, pubKey, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(xPubPreimage).
		AddData(sig).
		AddData(pubKey).
		AddOp(txscript.OP_FALSE).
		AddData(redeemScript).
		Script()
}

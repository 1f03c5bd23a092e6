package sighash

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func testTx(t *testing.T) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(2)
	prevHash := chainhash.Hash{} // 32 zero bytes, matches OutPoint(0000...00, 0)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0},
		Sequence:         0xFFFFFFFF,
	})
	pkScript, err := hex.DecodeString("76a914000000000000000000000000000000000000000088ac")
	if err != nil {
		t.Fatal(err)
	}
	tx.AddTxOut(&wire.TxOut{Value: 12000, PkScript: pkScript})
	return tx
}

// Test_Determinism covers scenario S1 and property 4: computing the sighash
// twice for identical inputs must yield the identical 32-byte hash.
func Test_Determinism(t *testing.T) {
	tx := testTx(t)
	scriptCode := []byte{0x51} // OP_TRUE stand-in redeem script for this test
	ht := New(BaseAll, false)

	h1, err := Calc(tx, 0, scriptCode, ht, 12000)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Calc(tx, 0, scriptCode, ht, 12000)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("sighash is not deterministic: %v != %v", h1, h2)
	}
	var zero chainhash.Hash
	if h1 == zero {
		t.Fatal("sighash must not be the zero hash")
	}
}

// Test_ReplayProtectionChangesHash covers property 5: the replay-protection
// transform must change the resulting hash relative to a hand-computed
// preimage that skips the transform.
func Test_ReplayProtectionChangesHash(t *testing.T) {
	tx := testTx(t)
	scriptCode := []byte{0x51}
	ht := New(BaseAll, false)

	protected, err := Calc(tx, 0, scriptCode, ht, 12000)
	if err != nil {
		t.Fatal(err)
	}

	unprotected := calcWithoutReplayProtection(t, tx, 0, scriptCode, ht, 12000)

	if protected == unprotected {
		t.Fatal("replay-protected sighash must differ from the unprotected preimage")
	}
}

// calcWithoutReplayProtection re-derives the preimage the same way Calc
// does but skips the XOR-0xdead transform, standing in for "the standard
// path" referenced by testable property 5.
func calcWithoutReplayProtection(t *testing.T, tx *wire.MsgTx, n int, scriptCode []byte, hashType Type, amount int64) chainhash.Hash {
	t.Helper()
	h, err := calcRaw(tx, n, scriptCode, hashType, amount)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// Test_RoundTrip covers property 4 applied to the sighash type byte: the
// type appended to a signature must decode back to the original value.
func Test_RoundTrip(t *testing.T) {
	ht := New(BaseSingle, true)
	b := ht.Byte()
	roundTripped := Type(b) | ForkID // low-byte reconstruction as done on parse
	if roundTripped.BaseType() != ht.BaseType() {
		t.Fatalf("base type mismatch after round-trip: got %d want %d", roundTripped.BaseType(), ht.BaseType())
	}
	if roundTripped.HasAnyoneCanPay() != ht.HasAnyoneCanPay() {
		t.Fatal("anyonecanpay flag lost in round-trip")
	}
}

func Test_SingleWithoutMatchingOutput(t *testing.T) {
	tx := testTx(t)
	// Add a second input with no corresponding output, forcing base=SINGLE
	// with nIn >= len(outputs) at index 1.
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0},
		Sequence:         0xFFFFFFFF,
	})
	ht := New(BaseSingle, false)
	if _, err := Calc(tx, 1, []byte{0x51}, ht, 1000); err != nil {
		t.Fatalf("SINGLE with out-of-range output must not error: %v", err)
	}
}

package btc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/xbridge-swap/xbridge-core/coin"
	"github.com/xbridge-swap/xbridge-core/script"
	"github.com/xbridge-swap/xbridge-core/wallet"
)

const testPrevTxHash = "0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a"

type stubRequester struct{}

func (stubRequester) RawRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

func testWallet() *Wallet {
	cfg := wallet.ChainConfig{Ticker: "BLOCK", COIN: 100000000, CreateTxMethod: "BTC"}
	params := Params{PubKeyHashAddrID: 0x1a, ScriptHashAddrID: 0x1b}
	return New(cfg, params, stubRequester{})
}

func testKeyPair(t *testing.T) ([]byte, []byte) {
	t.Helper()
	priv, err := hex.DecodeString("2a369b62ff5ba6ba2d0977a69bd1ffabf590ea0f99d6394a38402741b4a1d79")
	if err != nil {
		t.Fatal(err)
	}
	w := testWallet()
	_, pub, err := w.NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return priv, pub
}

// Test_CreateRefundTransaction_RoundTrips covers scenario S1's structure
// for a plain BTC-style chain: a refund spend must decode cleanly.
func Test_CreateRefundTransaction_RoundTrips(t *testing.T) {
	w := testWallet()
	priv, pub := testKeyPair(t)

	redeem, err := script.HTLCScript(600000, pub, pub)
	if err != nil {
		t.Fatal(err)
	}

	var toAddr [20]byte
	copy(toAddr[:], script.Hash160(pub))

	txID, raw, err := w.CreateRefundTransaction(context.Background(), wallet.RefundParams{
		PrevTxHash:   testPrevTxHash,
		PrevVout:     0,
		Amount:       12000,
		LockTime:     600000,
		RedeemScript: redeem,
		MPrivKey:     priv,
		MPubKey:      pub,
		ToAddr:       toAddr,
	})
	if err != nil {
		t.Fatalf("unexpected error building refund tx: %v", err)
	}
	if txID == "" {
		t.Fatal("expected non-empty txID")
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty raw tx")
	}
}

func Test_CreatePaymentTransaction_RoundTrips(t *testing.T) {
	w := testWallet()
	priv, pub := testKeyPair(t)

	redeem, err := script.HTLCScript(600000, pub, pub)
	if err != nil {
		t.Fatal(err)
	}

	var toAddr [20]byte
	copy(toAddr[:], script.Hash160(pub))

	txID, _, err := w.CreatePaymentTransaction(context.Background(), wallet.PaymentParams{
		PrevTxHash:   testPrevTxHash,
		PrevVout:     0,
		Amount:       12000,
		RedeemScript: redeem,
		MPrivKey:     priv,
		MPubKey:      pub,
		XPubKey:      pub,
		ToAddr:       toAddr,
	})
	if err != nil {
		t.Fatalf("unexpected error building payment tx: %v", err)
	}
	if txID == "" {
		t.Fatal("expected non-empty txID")
	}
}

func Test_RefundSequence_FinalForZeroLockTime(t *testing.T) {
	if got := script.RefundSequence(0); got != script.SequenceFinal {
		t.Fatalf("expected SequenceFinal for zero lockTime, got %x", got)
	}
}

func Test_CreateFeeTransaction_RejectsNoInputs(t *testing.T) {
	w := testWallet()
	_, _, err := w.CreateFeeTransaction(context.Background(), wallet.FeeParams{})
	if err == nil {
		t.Fatal("expected an error when no fee inputs are supplied")
	}
}

type incompleteSignRequester struct{}

func (incompleteSignRequester) RawRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "createrawtransaction":
		return json.Marshal("deadbeef")
	case "signrawtransactionwithwallet":
		return json.Marshal(signRawTxResult{Hex: "deadbeef", Complete: false})
	default:
		return nil, nil
	}
}

func Test_CreateFeeTransaction_RejectsIncompleteWalletSignature(t *testing.T) {
	cfg := wallet.ChainConfig{Ticker: "BLOCK", COIN: 100000000, CreateTxMethod: "BTC"}
	params := Params{PubKeyHashAddrID: 0x1a, ScriptHashAddrID: 0x1b}
	w := New(cfg, params, incompleteSignRequester{})

	_, pub := testKeyPair(t)
	var collateral [20]byte
	copy(collateral[:], script.Hash160(pub))

	_, _, err := w.CreateFeeTransaction(context.Background(), wallet.FeeParams{
		Inputs:         []*coin.Unspent{{TxID: testPrevTxHash, Vout: 0, Amount: 1, Address: "addr"}},
		FeeAmount:      1000,
		CollateralAddr: collateral,
		OPReturnData:   []byte("payload"),
	})
	if err == nil {
		t.Fatal("expected an error when the wallet reports an incomplete signature")
	}
}

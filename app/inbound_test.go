package app

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/swaporder"
)

func signedEnvelope(t *testing.T, cmd session.Command, payload []byte) *session.Envelope {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := session.Sign(key, cmd, uint64(time.Now().UnixMicro()), payload)
	if err != nil {
		t.Fatal(err)
	}
	return &session.Envelope{Packet: pkt}
}

// Test_HandleEnvelope_TransactionAnnounceRegistersTakerOrder covers the
// Taker-side receipt of a Maker's xbcTransaction announcement: a new order
// is registered under the announced ID, with no order already present.
func Test_HandleEnvelope_TransactionAnnounceRegistersTakerOrder(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)

	id := swaporder.CalcID(swaporder.IDInput{FromAddr: "maker-addr"})
	payload, err := json.Marshal(map[string]interface{}{
		"id":           id.String(),
		"from":         "maker-addr",
		"fromCurrency": "LTC",
		"fromAmount":   50000000,
		"to":           "taker-addr",
		"toCurrency":   "BLOCK",
		"toAmount":     50000000,
		"blockHash":    "00aa",
		"inputs":       []interface{}{},
	})
	if err != nil {
		t.Fatal(err)
	}
	env := signedEnvelope(t, session.CmdTransaction, payload)

	a.HandleEnvelope(env)

	o, ok := cfg.Orders.Get(id)
	if !ok {
		t.Fatal("expected the order to be registered")
	}
	if o.Role != swaporder.RoleTaker {
		t.Fatalf("expected role Taker, got %v", o.Role)
	}
	if o.FromCurrency != "LTC" || o.ToCurrency != "BLOCK" {
		t.Fatalf("unexpected currencies: %s/%s", o.FromCurrency, o.ToCurrency)
	}
	if hex.EncodeToString(o.SPubKey) != hex.EncodeToString(env.Packet.PubKey) {
		t.Fatal("expected SPubKey to be set from the announcing packet's pubkey")
	}
}

// Test_HandleEnvelope_TransactionAnnounceIgnoresKnownOrder covers the
// idempotency guard: an announcement for an order this process already has
// must not clobber its existing state.
func Test_HandleEnvelope_TransactionAnnounceIgnoresKnownOrder(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)

	o := newOrder("already-known", swaporder.RoleTaker, swaporder.StatePending)
	cfg.Orders.Put(o)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":           o.ID.String(),
		"fromCurrency": "LTC",
		"toCurrency":   "BLOCK",
	})
	env := signedEnvelope(t, session.CmdTransaction, payload)
	a.HandleEnvelope(env)

	got, _ := cfg.Orders.Get(o.ID)
	if got.StateLocked() != swaporder.StatePending {
		t.Fatalf("expected state to remain unchanged, got %v", got.StateLocked())
	}
}

// Test_HandleEnvelope_TransactionAcceptingAdvancesKnownOrder covers the
// Maker-side receipt of a Taker's xbcTransactionAccepting: a known trNew
// order advances to trPending.
func Test_HandleEnvelope_TransactionAcceptingAdvancesKnownOrder(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)

	o := newOrder("maker-order", swaporder.RoleMaker, swaporder.StateNew)
	cfg.Orders.Put(o)

	payload, _ := json.Marshal(map[string]interface{}{"id": o.ID.String()})
	env := signedEnvelope(t, session.CmdTransactionAccepting, payload)
	a.HandleEnvelope(env)

	if o.StateLocked() != swaporder.StatePending {
		t.Fatalf("expected order to advance to trPending, got %v", o.StateLocked())
	}
}

// Test_HandleEnvelope_TransactionAcceptingIgnoresUnknownOrder covers the
// no-op guard: an acceptance for an order this process never created is
// dropped rather than fabricating one.
func Test_HandleEnvelope_TransactionAcceptingIgnoresUnknownOrder(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)

	unknownID := swaporder.CalcID(swaporder.IDInput{FromAddr: "nobody"})
	payload, _ := json.Marshal(map[string]interface{}{"id": unknownID.String()})
	env := signedEnvelope(t, session.CmdTransactionAccepting, payload)

	a.HandleEnvelope(env)

	if _, ok := cfg.Orders.Get(unknownID); ok {
		t.Fatal("expected no order to be fabricated for an unknown acceptance")
	}
}

// Test_HandleEnvelope_IgnoresUnrecognizedCommand covers the default-drop
// branch for wire commands outside C7's Create/Accept scope.
func Test_HandleEnvelope_IgnoresUnrecognizedCommand(t *testing.T) {
	cfg := testConfig()
	a := New(cfg)
	env := signedEnvelope(t, session.CmdTransactionHold, []byte("whatever"))
	a.HandleEnvelope(env) // must not panic or register anything
	if cfg.Orders.Len() != 0 {
		t.Fatalf("expected no orders to be registered, got %d", cfg.Orders.Len())
	}
}

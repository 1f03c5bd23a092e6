package coinlock

import (
	"testing"

	"github.com/xbridge-swap/xbridge-core/coin"
)

func utxo(txid string, vout uint32) *coin.Unspent {
	return &coin.Unspent{TxID: txid, Vout: vout, Amount: 1, Address: "addr"}
}

// Test_LockCoins_Atomic covers property 2: lockCoins is atomic.
func Test_LockCoins_Atomic(t *testing.T) {
	r := New()
	first := []*coin.Unspent{utxo("a", 0), utxo("b", 0)}
	if !r.LockCoins("BLOCK", first) {
		t.Fatal("expected first lock to succeed")
	}

	overlapping := []*coin.Unspent{utxo("b", 0), utxo("c", 0)}
	if r.LockCoins("BLOCK", overlapping) {
		t.Fatal("expected overlapping lock to fail")
	}

	// c must not have been locked despite being non-overlapping, since the
	// whole batch must fail atomically.
	if r.IsLocked("BLOCK", coin.NewID("c", 0)) {
		t.Fatal("partial lock leaked through a failed LockCoins call")
	}

	// a and b (first order's reservations) must remain intact.
	if !r.IsLocked("BLOCK", coin.NewID("a", 0)) || !r.IsLocked("BLOCK", coin.NewID("b", 0)) {
		t.Fatal("first order's reservations were disturbed by the failed second lock")
	}
}

// Test_LockCoins_CrossOrderDisjoint covers property 1: usedCoins of two
// non-terminal orders never intersect.
func Test_LockCoins_CrossOrderDisjoint(t *testing.T) {
	r := New()
	order1 := []*coin.Unspent{utxo("x", 0)}
	order2 := []*coin.Unspent{utxo("x", 0)}

	if !r.LockCoins("SYS", order1) {
		t.Fatal("order1 should have locked its coin")
	}
	if r.LockCoins("SYS", order2) {
		t.Fatal("order2 must not be able to lock a coin already used by order1")
	}
}

func Test_FeeAndOrderSetsCombine(t *testing.T) {
	r := New()
	r.LockFeeUtxos([]*coin.Unspent{utxo("fee", 0)})
	r.LockCoins("BLOCK", []*coin.Unspent{utxo("order", 0)})

	all := r.AllLocked("BLOCK")
	if len(all) != 2 {
		t.Fatalf("expected 2 locked coins, got %d", len(all))
	}

	// A currency's own reservation must not bleed into a fee lock attempt.
	if !r.LockFeeUtxos([]*coin.Unspent{utxo("another-fee", 0)}) {
		t.Fatal("unrelated fee UTXO should have locked")
	}
	if r.LockFeeUtxos([]*coin.Unspent{utxo("order", 0)}) {
		t.Fatal("fee lock must fail against a coin already reserved for an order")
	}
}

func Test_UnlockThenRelock(t *testing.T) {
	r := New()
	u := []*coin.Unspent{utxo("z", 0)}
	if !r.LockCoins("LTC", u) {
		t.Fatal("expected lock")
	}
	r.UnlockCoins("LTC", u)
	if r.IsLocked("LTC", coin.NewID("z", 0)) {
		t.Fatal("expected unlock to clear reservation")
	}
	if !r.LockCoins("LTC", u) {
		t.Fatal("expected re-lock to succeed after unlock")
	}
}

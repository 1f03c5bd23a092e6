package swaporder

import (
	"testing"
	"time"
)

// Test_CalcID_Distinct covers property 3: distinct creation inputs must not
// collide.
func Test_CalcID_Distinct(t *testing.T) {
	base := IDInput{
		FromAddr: "1abc", ToAddr: "1def",
		FromCurrency: "BLOCK", ToCurrency: "LTC",
		FromAmount: 100000000, ToAmount: 200000000,
		CreatedUnixMicro:    1700000000000000,
		BlockHash:           "00" + "00",
		FirstInputSignature: []byte{1, 2, 3},
	}
	id1 := CalcID(base)

	variant := base
	variant.ToAmount = 200000001
	id2 := CalcID(variant)

	if id1 == id2 {
		t.Fatal("distinct order inputs produced the same ID")
	}

	repeat := CalcID(base)
	if id1 != repeat {
		t.Fatal("identical inputs must produce the same ID")
	}
}

// Test_StateMachine_RejectsIllegalTransitions covers property 7: the
// transition set is a strict subset of all (from,to) pairs, and no
// terminal state transitions out.
func Test_StateMachine_RejectsIllegalTransitions(t *testing.T) {
	o := New(RoleMaker)
	if o.State() != StateNew {
		t.Fatalf("expected StateNew, got %s", o.State())
	}

	if err := o.SetState(StateFinished); err == nil {
		t.Fatal("expected error jumping straight from New to Finished")
	}

	if err := o.SetState(StatePending); err != nil {
		t.Fatalf("unexpected error on legal transition: %v", err)
	}

	if err := o.SetState(StateCancelled); err != nil {
		t.Fatalf("unexpected error cancelling a pending order: %v", err)
	}

	if err := o.SetState(StatePending); err == nil {
		t.Fatal("terminal state must not permit any further transition")
	}
}

// Test_TryLock_ExcludesConcurrentMutators covers the at-most-one-mutator
// concurrency guarantee from the resource model.
func Test_TryLock_ExcludesConcurrentMutators(t *testing.T) {
	o := New(RoleTaker)
	if !o.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if o.TryLock() {
		t.Fatal("expected second concurrent TryLock to fail while held")
	}
	o.Unlock()
	if !o.TryLock() {
		t.Fatal("expected TryLock to succeed again after Unlock")
	}
	o.Unlock()
}

// Test_Table_EraseRemovesOrder exercises the live-order table used by the
// expiration sweep (scenario S5).
func Test_Table_EraseRemovesOrder(t *testing.T) {
	tbl := NewTable()
	o := New(RoleMaker)
	o.Created = time.Now().Add(-1 * time.Hour)
	tbl.Put(o)

	if _, ok := tbl.Get(o.ID); !ok {
		t.Fatal("expected order to be found after Put")
	}
	tbl.Erase(o.ID)
	if _, ok := tbl.Get(o.ID); ok {
		t.Fatal("expected order to be gone after Erase")
	}
}

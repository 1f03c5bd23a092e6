package snode

import "testing"

func entry(id byte, running bool, protocolVersion uint32, services ...string) *Entry {
	e := &Entry{Running: running, ProtocolVersion: protocolVersion, Services: make(map[string]struct{})}
	e.PubKey[0] = id
	for _, s := range services {
		e.Services[s] = struct{}{}
	}
	return e
}

func Test_Filter_RequiresBothCurrenciesAndRunning(t *testing.T) {
	d := NewDirectory()
	d.Put(entry(1, true, 1, "BTC", "LTC"))
	d.Put(entry(2, false, 1, "BTC", "LTC")) // not running
	d.Put(entry(3, true, 1, "BTC"))         // missing LTC

	got := d.Filter("BTC", "LTC", 1, nil)
	if len(got) != 1 || got[0].PubKey[0] != 1 {
		t.Fatalf("expected exactly node 1, got %d entries", len(got))
	}
}

func Test_Filter_RespectsProtocolVersionFloor(t *testing.T) {
	d := NewDirectory()
	d.Put(entry(1, true, 1, "BTC", "LTC"))

	if got := d.Filter("BTC", "LTC", 2, nil); len(got) != 0 {
		t.Fatalf("expected node below protocol floor to be excluded, got %d", len(got))
	}
}

func Test_Filter_ExcludesListedNodes(t *testing.T) {
	d := NewDirectory()
	e1 := entry(1, true, 1, "BTC", "LTC")
	d.Put(e1)

	exclude := map[[PubKeySize]byte]struct{}{e1.PubKey: {}}
	if got := d.Filter("BTC", "LTC", 1, exclude); len(got) != 0 {
		t.Fatalf("expected excluded node to be filtered out, got %d", len(got))
	}
}

func Test_SelectRandom_FailsOnEmptyCandidateSet(t *testing.T) {
	d := NewDirectory()
	if _, ok := d.SelectRandom("BTC", "LTC", 1, nil); ok {
		t.Fatal("expected selection to fail with no candidates")
	}
}

func Test_SelectRandom_PicksFromFilteredSet(t *testing.T) {
	d := NewDirectory()
	d.Put(entry(1, true, 1, "BTC", "LTC"))
	d.Put(entry(2, true, 1, "BTC", "LTC"))

	picked, ok := d.SelectRandom("BTC", "LTC", 1, nil)
	if !ok {
		t.Fatal("expected a selection to succeed")
	}
	if picked.PubKey[0] != 1 && picked.PubKey[0] != 2 {
		t.Fatalf("unexpected pick: %v", picked.PubKey)
	}
}

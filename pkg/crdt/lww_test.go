package crdt

import "testing"

func TestLWWRegister_MergeHigherTimestampWins(t *testing.T) {
	a := NewLWWRegister("node-a", "first", 10)
	b := NewLWWRegister("node-b", "second", 20)

	merged := a.Merge(b)
	if merged.Value() != "second" {
		t.Fatalf("expected higher-timestamp value to win, got %v", merged.Value())
	}

	merged = b.Merge(a)
	if merged.Value() != "second" {
		t.Fatalf("merge must be commutative, got %v", merged.Value())
	}
}

func TestLWWRegister_TieBrokenByNodeID(t *testing.T) {
	a := NewLWWRegister("aaa", "from-a", 5)
	b := NewLWWRegister("bbb", "from-b", 5)

	if got := a.Merge(b).Value(); got != "from-b" {
		t.Fatalf("expected higher node id to win tie, got %v", got)
	}
	if got := b.Merge(a).Value(); got != "from-b" {
		t.Fatalf("expected higher node id to win tie regardless of order, got %v", got)
	}
}

func TestLWWRegister_MergeIsIdempotent(t *testing.T) {
	a := NewLWWRegister("node-a", "value", 1)
	merged := a.Merge(a)
	if merged.Value() != a.Value() {
		t.Fatalf("merging with self changed the value")
	}
}

func TestLWWRegister_MergeNilOther(t *testing.T) {
	a := NewLWWRegister("node-a", "value", 1)
	merged := a.Merge(nil)
	if merged.Value() != "value" {
		t.Fatalf("merge with nil should return a clone of the receiver")
	}
}

func TestLWWRegister_SnapshotRoundTrip(t *testing.T) {
	a := NewLWWRegister("node-a", 42, 7)
	snap := a.ToSnapshot()
	restored := LWWRegisterFromSnapshot(snap)

	if restored.Value() != a.Value() {
		t.Fatalf("snapshot round trip changed value: got %v want %v", restored.Value(), a.Value())
	}
	if restored.Merge(a).Value() != a.Value() {
		t.Fatalf("restored register should merge identically to the original")
	}
}

func TestLWWRegister_Set(t *testing.T) {
	a := NewLWWRegister("node-a", "old", 1)
	a.Set("new", 2)
	if a.Value() != "new" {
		t.Fatalf("Set did not update value")
	}
}

func TestLWWRegister_GeneratesNodeIDWhenEmpty(t *testing.T) {
	a := NewLWWRegister("", "value", 1)
	snap := a.ToSnapshot()
	if snap.NodeID == "" {
		t.Fatalf("expected a generated node id when none is supplied")
	}
}

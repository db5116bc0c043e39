package broadphase_test

import (
	"testing"

	"github.com/ByteArena/broadphase"
)

func TestMoveBuffer(t *testing.T) {
	mb := broadphase.NewMoveBuffer()
	a := &broadphase.FixtureProxy{}
	b := &broadphase.FixtureProxy{}
	c := &broadphase.FixtureProxy{}

	box := func(x float64) broadphase.AABB {
		return broadphase.MakeAABBFromCenter(broadphase.Vec2{x, 0}, 0.5, 0.5)
	}

	mb.RecordMove(a, box(1))
	mb.RecordMove(b, box(2))
	mb.RecordMove(c, box(3))
	mb.RecordMove(a, box(4))

	if mb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", mb.Len())
	}

	if !mb.Remove(b) || mb.Remove(b) {
		t.Fatalf("Remove() should succeed exactly once")
	}
	if mb.Contains(b) || mb.Len() != 2 {
		t.Fatalf("removed proxy still pending")
	}

	entries := mb.Drain()
	if len(entries) != 2 {
		t.Fatalf("Drain() returned %d entries", len(entries))
	}
	if entries[0].Proxy != a || entries[1].Proxy != c {
		t.Fatalf("Drain() lost first-move order")
	}
	if entries[0].WorldAABB != box(4) {
		t.Fatalf("latest AABB not kept: %v", entries[0].WorldAABB)
	}

	if mb.Len() != 0 || mb.Contains(a) || len(mb.Drain()) != 0 {
		t.Fatalf("buffer not empty after Drain()")
	}

	// A removed proxy can be recorded again.
	mb.RecordMove(b, box(5))
	if entries := mb.Drain(); len(entries) != 1 || entries[0].Proxy != b {
		t.Fatalf("re-recorded proxy missing")
	}
}

package broadphase_test

import (
	"math"
	"testing"

	"github.com/ByteArena/broadphase"
	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
)

func TestEntityStoreWorldTransform(t *testing.T) {
	store := broadphase.NewEntityStore()

	root, _ := store.NewEntity(ecs.Entity{}, broadphase.MakeTransformFromAngle(broadphase.Vec2{10, 0}, 0.5*math.Pi))
	child, _ := store.NewEntity(root, broadphase.MakeTransformFromAngle(broadphase.Vec2{2, 0}, 0))
	leaf, _ := store.NewEntity(child, broadphase.MakeTransformFromAngle(broadphase.Vec2{0, 1}, 0.5*math.Pi))

	xf, ok := store.WorldTransform(leaf)
	if !ok {
		t.Fatalf("leaf is not alive")
	}
	want := broadphase.MakeTransformFromAngle(broadphase.Vec2{9, 2}, math.Pi)
	if !broadphase.TransformApproxEqual(xf, want, 1e-9) {
		t.Fatalf("WorldTransform() = %v, want %v", xf, want)
	}

	if parent, ok := store.Parent(leaf); !ok || parent != child {
		t.Fatalf("Parent(leaf) = %v, %v", parent, ok)
	}
	if _, ok := store.Parent(root); ok {
		t.Fatalf("root has a parent")
	}
}

func TestEntityStoreSetParentKeepsPose(t *testing.T) {
	store := broadphase.NewEntityStore()

	a, _ := store.NewEntity(ecs.Entity{}, broadphase.MakeTransformFromAngle(broadphase.Vec2{5, 5}, 0.3))
	b, _ := store.NewEntity(ecs.Entity{}, broadphase.MakeTransformFromAngle(broadphase.Vec2{-2, 1}, -1.1))
	e, _ := store.NewEntity(a, broadphase.MakeTransformFromAngle(broadphase.Vec2{1, 2}, 0.7))

	before, _ := store.WorldTransform(e)
	if err := store.SetParent(e, b); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	after, _ := store.WorldTransform(e)
	if !broadphase.TransformApproxEqual(before, after, 1e-9) {
		t.Fatalf("pose changed from %v to %v", before, after)
	}

	if err := store.SetParent(e, ecs.Entity{}); err != nil {
		t.Fatalf("SetParent(root): %v", err)
	}
	local, _ := store.GetLocalTransform(e)
	if !broadphase.TransformApproxEqual(before, local, 1e-9) {
		t.Fatalf("root local transform %v, want %v", local, before)
	}
}

func TestEntityStoreRemove(t *testing.T) {
	store := broadphase.NewEntityStore()

	parent, _ := store.NewEntity(ecs.Entity{}, broadphase.MakeTransformFromAngle(broadphase.Vec2{3, 0}, 0))
	child, _ := store.NewEntity(parent, broadphase.MakeTransformFromAngle(broadphase.Vec2{1, 0}, 0))

	if err := store.Remove(parent); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if store.Alive(parent) {
		t.Fatalf("removed entity alive")
	}
	if errors.Cause(store.Remove(parent)) != broadphase.ErrDeadEntity {
		t.Fatalf("second Remove did not fail")
	}

	// The child is now a root at its local pose.
	if _, ok := store.Parent(child); ok {
		t.Fatalf("orphan still has a parent")
	}
	xf, _ := store.WorldTransform(child)
	if xf.P != (broadphase.Vec2{1, 0}) {
		t.Fatalf("orphan world position %v", xf.P)
	}

	if _, err := store.NewEntity(parent, broadphase.MakeTransform()); errors.Cause(err) != broadphase.ErrDeadEntity {
		t.Fatalf("NewEntity under a dead parent = %v", err)
	}
	if err := store.SetLocalTransform(parent, broadphase.MakeTransform()); errors.Cause(err) != broadphase.ErrDeadEntity {
		t.Fatalf("SetLocalTransform on a dead entity = %v", err)
	}
	if err := store.SetParent(child, parent); errors.Cause(err) != broadphase.ErrDeadEntity {
		t.Fatalf("SetParent to a dead entity = %v", err)
	}
	if _, ok := store.WorldTransform(parent); ok {
		t.Fatalf("dead entity has a world transform")
	}
}

package broadphase_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/ByteArena/broadphase"
	"github.com/davecgh/go-spew/spew"
	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

func diffText(t *testing.T, expected, output string) {
	t.Helper()
	if output == expected {
		return
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(output),
		FromFile: "Expected",
		ToFile:   "Current",
		Context:  0,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	t.Fatalf("trace mismatch:\n%s", text)
}

const approachingBoxTrace = `01: -
02: -
03: -
04: -
05: -
06: -
07: -
08: -
09: 1-2 flags=0
10: 1-2 flags=0
11: 1-2 flags=0
12: -
`

// A dynamic unit box moves left one unit per step towards a static unit box
// at the origin. Their boxes first touch when the mover reaches x = 1.
func TestApproachingBoxFirstPairAtStepNine(t *testing.T) {
	tw := newTestWorld(t)

	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	mover := tw.box(t, tw.mapE, broadphase.DynamicBody, 10, 0, 0.5, 0.5)

	var sb strings.Builder
	for step := 1; step <= 12; step++ {
		tw.moveTo(t, mover, 10-float64(step), 0, 0)

		pairs := tw.step(t)
		if len(pairs) == 0 {
			fmt.Fprintf(&sb, "%02d: -\n", step)
			continue
		}
		for _, p := range pairs {
			fmt.Fprintf(&sb, "%02d: %d-%d flags=%d\n", step, p.a, p.b, p.flags)
		}
	}

	diffText(t, approachingBoxTrace, sb.String())
}

func TestMoveBufferCollapsesRepeatedMoves(t *testing.T) {
	tw := newTestWorld(t)
	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	mover := tw.box(t, tw.mapE, broadphase.DynamicBody, 5, 0, 0.5, 0.5)
	tw.step(t)

	for i := 0; i < 3; i++ {
		tw.moveTo(t, mover, 3, 0, 0)
		tw.moveTo(t, mover, 0.5, 0, 0)
	}
	if got := tw.world.MoveBufferLen(tw.mapE); got != 1 {
		t.Fatalf("move buffer holds %d entries, want 1", got)
	}

	// Moving to the same place again records nothing new.
	tw.moveTo(t, mover, 0.5, 0, 0)
	if got := tw.world.MoveBufferLen(tw.mapE); got != 1 {
		t.Fatalf("move buffer holds %d entries, want 1", got)
	}

	pairs := tw.step(t)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1\n%s", len(pairs), spew.Sdump(pairs))
	}
	if tw.world.MoveBufferLen(tw.mapE) != 0 {
		t.Fatalf("move buffer not cleared by the pass")
	}
}

func TestPairsAreUniqueAndOrdered(t *testing.T) {
	tw := newTestWorld(t)

	const n = 6
	var bodies []*broadphase.Body
	for i := 0; i < n; i++ {
		bodies = append(bodies, tw.circle(t, tw.mapE, broadphase.DynamicBody, 0.1*float64(i), 0, 1.0))
	}
	// A static body far away, and a static body overlapping only another static body.
	tw.box(t, tw.mapE, broadphase.StaticBody, 50, 50, 1, 1)
	tw.box(t, tw.mapE, broadphase.StaticBody, 50.5, 50, 1, 1)

	pairs := tw.step(t)
	if len(pairs) != n*(n-1)/2 {
		t.Fatalf("got %d pairs, want %d\n%s", len(pairs), n*(n-1)/2, spew.Sdump(pairs))
	}

	seen := make(map[[2]uint64]bool)
	for i, p := range pairs {
		if p.a >= p.b {
			t.Fatalf("pair %d not ordered: %d-%d", i, p.a, p.b)
		}
		if seen[[2]uint64{p.a, p.b}] || seen[[2]uint64{p.b, p.a}] {
			t.Fatalf("pair %d-%d reported twice", p.a, p.b)
		}
		seen[[2]uint64{p.a, p.b}] = true
		if i > 0 {
			prev := pairs[i-1]
			if prev.a > p.a || (prev.a == p.a && prev.b > p.b) {
				t.Fatalf("pairs not sorted at %d", i)
			}
		}
	}

	// Moving every body again finds the same pairs, once each.
	for i, body := range bodies {
		tw.moveTo(t, body, 0.1*float64(i), 0.05, 0)
	}
	if again := tw.step(t); len(again) != len(pairs) {
		t.Fatalf("second pass found %d pairs, want %d", len(again), len(pairs))
	}
}

func TestFilteringRejectsPairs(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(a, b *broadphase.Fixture)
		typeB  broadphase.BodyType
		expect int
	}{
		{"default", func(a, b *broadphase.Fixture) {}, broadphase.DynamicBody, 1},
		{"static and dynamic", func(a, b *broadphase.Fixture) {}, broadphase.StaticBody, 1},
		{"negative group", func(a, b *broadphase.Fixture) {
			f := broadphase.MakeFilter()
			f.GroupIndex = -1
			a.SetFilterData(f)
			b.SetFilterData(f)
		}, broadphase.DynamicBody, 0},
		{"positive group beats mask", func(a, b *broadphase.Fixture) {
			f := broadphase.MakeFilter()
			f.GroupIndex = 2
			f.MaskBits = 0
			a.SetFilterData(f)
			b.SetFilterData(f)
		}, broadphase.DynamicBody, 1},
		{"mask", func(a, b *broadphase.Fixture) {
			f := broadphase.MakeFilter()
			f.CategoryBits = 0x0002
			f.MaskBits = 0x0004
			a.SetFilterData(f)
		}, broadphase.DynamicBody, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := newTestWorld(t)
			a := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0, 0, 1)
			b := tw.circle(t, tw.mapE, tt.typeB, 0.5, 0, 1)
			tt.setup(a.GetFixtureList()[0], b.GetFixtureList()[0])

			if got := len(tw.step(t)); got != tt.expect {
				t.Fatalf("got %d pairs, want %d", got, tt.expect)
			}
		})
	}

	t.Run("same body", func(t *testing.T) {
		tw := newTestWorld(t)
		body := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0, 0, 1)
		if _, err := body.CreateFixture(broadphase.MakeFixtureDef(broadphase.NewBoxShape(1, 1))); err != nil {
			t.Fatalf("create fixture: %v", err)
		}
		if got := len(tw.step(t)); got != 0 {
			t.Fatalf("fixtures of one body paired %d times", got)
		}
	})
}

func TestRefilterTouchesProxies(t *testing.T) {
	tw := newTestWorld(t)
	a := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0, 0, 1)
	b := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0.5, 0, 1)

	f := broadphase.MakeFilter()
	f.GroupIndex = -3
	a.GetFixtureList()[0].SetFilterData(f)
	b.GetFixtureList()[0].SetFilterData(f)
	if got := len(tw.step(t)); got != 0 {
		t.Fatalf("filtered pair reported")
	}

	b.GetFixtureList()[0].SetFilterData(broadphase.MakeFilter())
	if !tw.world.IsProxyBuffered(proxyOf(b)) {
		t.Fatalf("SetFilterData did not buffer the proxy")
	}
	if got := len(tw.step(t)); got != 1 {
		t.Fatalf("got %d pairs after refilter, want 1", got)
	}
}

func TestDestroyFixturePurgesMoveBuffer(t *testing.T) {
	tw := newTestWorld(t)
	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	mover := tw.box(t, tw.mapE, broadphase.DynamicBody, 5, 0, 0.5, 0.5)
	tw.step(t)

	tw.moveTo(t, mover, 0.25, 0, 0)
	fixture := mover.GetFixtureList()[0]
	proxy := fixture.GetProxies()[0]
	if !tw.world.IsProxyBuffered(proxy) {
		t.Fatalf("moved proxy is not buffered")
	}

	mover.DestroyFixture(fixture)

	if tw.world.IsProxyBuffered(proxy) {
		t.Fatalf("destroyed proxy still buffered")
	}
	if got := tw.world.MoveBufferLen(tw.mapE); got != 0 {
		t.Fatalf("move buffer holds %d entries", got)
	}
	if proxy.ProxyID != broadphase.NullNode || proxy.Partition.IsValid() {
		t.Fatalf("destroyed proxy still registered\n%s", spew.Sdump(proxy.ProxyID, proxy.Partition))
	}
	if len(tw.recorder.destroyed) != 1 || tw.recorder.destroyed[0] != proxy.GetSeq() {
		t.Fatalf("contacts of the proxy were not destroyed: %v", tw.recorder.destroyed)
	}
	if pairs := tw.step(t); len(pairs) != 0 {
		t.Fatalf("drain referenced a removed proxy\n%s", spew.Sdump(pairs))
	}
}

func TestDestroyBody(t *testing.T) {
	tw := newTestWorld(t)
	body := tw.box(t, tw.mapE, broadphase.DynamicBody, 0, 0, 0.5, 0.5)
	if _, err := body.CreateFixture(broadphase.MakeFixtureDef(broadphase.NewCircleShape(broadphase.Vec2{}, 1))); err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	map0, _ := tw.world.GetPartition(tw.mapE)
	if map0.GetProxyCount() != 2 {
		t.Fatalf("proxy count = %d", map0.GetProxyCount())
	}

	tw.world.DestroyBody(body)

	if !body.IsDestroyed() || tw.world.GetBodyCount() != 0 {
		t.Fatalf("body not destroyed")
	}
	if map0.GetProxyCount() != 0 || tw.world.MoveBufferLen(tw.mapE) != 0 {
		t.Fatalf("proxies left behind: tree %d, buffer %d", map0.GetProxyCount(), tw.world.MoveBufferLen(tw.mapE))
	}
	if _, ok := tw.world.GetBody(body.GetEntity()); ok {
		t.Fatalf("destroyed body still registered")
	}
}

func TestInvariantViolationPanicsInDebug(t *testing.T) {
	tw := newTestWorld(t, withDebug())
	body := tw.box(t, tw.mapE, broadphase.DynamicBody, 0, 0, 0.5, 0.5)
	tw.world.DestroyBody(body)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("destroying a body twice did not panic")
		}
		err, ok := r.(error)
		if !ok || errors.Cause(err) != broadphase.ErrBodyDestroyed {
			t.Fatalf("panic value %v", r)
		}
	}()
	tw.world.DestroyBody(body)
}

func TestInvariantViolationLogsInRelease(t *testing.T) {
	var buf bytes.Buffer
	tw := newTestWorld(t, withLogger(&buf))
	body := tw.box(t, tw.mapE, broadphase.DynamicBody, 0, 0, 0.5, 0.5)
	tw.world.DestroyBody(body)
	tw.world.DestroyBody(body)

	if !strings.Contains(buf.String(), "destroy body") {
		t.Fatalf("violation not logged:\n%s", buf.String())
	}
}

func TestDeletedEntityIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	tw := newTestWorld(t, withLogger(&buf))

	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	tw.step(t)

	doomed := tw.box(t, tw.mapE, broadphase.DynamicBody, 0.25, 0, 0.5, 0.5)
	if err := tw.store.Remove(doomed.GetEntity()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if pairs := tw.step(t); len(pairs) != 0 {
		t.Fatalf("deleted body paired\n%s", spew.Sdump(pairs))
	}
	if !strings.Contains(buf.String(), "skipping moved proxy of deleted body") {
		t.Fatalf("skip not logged:\n%s", buf.String())
	}
	if tw.world.MoveBufferLen(tw.mapE) != 0 {
		t.Fatalf("move buffer not cleared")
	}
}

func TestFreeFloatingBodyHasNoProxies(t *testing.T) {
	tw := newTestWorld(t)
	body := tw.box(t, ecs.Entity{}, broadphase.DynamicBody, 0, 0, 0.5, 0.5)

	if body.GetPartition().IsValid() {
		t.Fatalf("body outside of every map got %v", body.GetPartition())
	}
	if body.GetFixtureList()[0].GetProxyCount() != 0 {
		t.Fatalf("body outside of every map has proxies")
	}

	// Synchronizing is harmless.
	tw.moveTo(t, body, 3, 3, 0)
	if body.GetPartition().IsValid() {
		t.Fatalf("partition appeared after synchronization")
	}
}

func TestSetEnabled(t *testing.T) {
	tw := newTestWorld(t)
	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	body := tw.box(t, tw.mapE, broadphase.DynamicBody, 0.5, 0, 0.5, 0.5)
	if len(tw.step(t)) != 1 {
		t.Fatalf("expected the initial pair")
	}

	old := proxyOf(body)
	body.SetEnabled(false)
	if body.GetPartition().IsValid() || body.GetFixtureList()[0].GetProxyCount() != 0 {
		t.Fatalf("disabled body kept its proxies")
	}
	if len(tw.recorder.destroyed) != 1 || tw.recorder.destroyed[0] != old.GetSeq() {
		t.Fatalf("contacts not destroyed: %v", tw.recorder.destroyed)
	}
	if len(tw.step(t)) != 0 {
		t.Fatalf("disabled body paired")
	}

	body.SetEnabled(true)
	if !tw.world.IsProxyBuffered(proxyOf(body)) {
		t.Fatalf("re-enabled proxy not buffered")
	}
	if len(tw.step(t)) != 1 {
		t.Fatalf("re-enabled body did not pair")
	}
}

func TestSetTypeReexaminesPairs(t *testing.T) {
	tw := newTestWorld(t)
	tw.box(t, tw.mapE, broadphase.StaticBody, 0, 0, 0.5, 0.5)
	body := tw.box(t, tw.mapE, broadphase.StaticBody, 0.5, 0, 0.5, 0.5)
	if len(tw.step(t)) != 0 {
		t.Fatalf("two static bodies paired")
	}

	body.SetType(broadphase.DynamicBody)
	if !body.IsAwake() {
		t.Fatalf("dynamic body is asleep after SetType")
	}
	if len(tw.step(t)) != 1 {
		t.Fatalf("no pair after SetType")
	}
}

func TestBodyChangesPartition(t *testing.T) {
	tw := newTestWorld(t)
	gridBody := tw.grid(t, tw.mapE, 10, 0, true)
	gridE := gridBody.GetEntity()
	gridPartition, _ := tw.world.GetPartition(gridE)
	mapPartition, _ := tw.world.GetPartition(tw.mapE)

	rider := tw.circle(t, tw.mapE, broadphase.DynamicBody, 10.5, 0.5, 0.25)
	if rider.GetPartition() != mapPartition.GetID() {
		t.Fatalf("rider starts in %v", rider.GetPartition())
	}
	old := proxyOf(rider)
	worldBefore, _ := tw.world.ProxyWorldAABB(old)
	tw.step(t)

	if err := tw.store.SetParent(rider.GetEntity(), gridE); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	tw.world.SynchronizeBody(rider)

	if rider.GetPartition() != gridPartition.GetID() {
		t.Fatalf("rider is in %v, want %v", rider.GetPartition(), gridPartition.GetID())
	}
	if old.ProxyID != broadphase.NullNode || tw.world.IsProxyBuffered(old) {
		t.Fatalf("old proxy left registered")
	}
	if mapPartition.GetProxyCount() != 0 || gridPartition.GetProxyCount() != 1 {
		t.Fatalf("proxy counts: map %d, grid %d", mapPartition.GetProxyCount(), gridPartition.GetProxyCount())
	}

	proxy := proxyOf(rider)
	if !tw.world.IsProxyBuffered(proxy) {
		t.Fatalf("recreated proxy not buffered")
	}
	local := broadphase.MakeAABB(broadphase.Vec2{0.25, 0.25}, broadphase.Vec2{0.75, 0.75})
	if !aabbApproxEqual(proxy.AABB, local, 1e-9) {
		t.Fatalf("proxy AABB %v is not in the grid frame", proxy.AABB)
	}
	worldAfter, _ := tw.world.ProxyWorldAABB(proxy)
	if !aabbApproxEqual(worldBefore, worldAfter, 1e-9) {
		t.Fatalf("world AABB changed from %v to %v", worldBefore, worldAfter)
	}
	tw.step(t)

	// Riding the grid changes the world AABB without re-buffering the proxy.
	tw.moveTo(t, gridBody, 20, 0, 0)
	tw.world.SynchronizeBody(rider)
	if got := tw.world.MoveBufferLen(tw.mapE); got != 0 {
		t.Fatalf("riding the grid buffered %d proxies", got)
	}
	moved, _ := tw.world.ProxyWorldAABB(proxy)
	if moved.GetCenter()[0] < 19 {
		t.Fatalf("world AABB %v did not follow the grid", moved)
	}
}

func TestDestroyPartition(t *testing.T) {
	tw := newTestWorld(t)
	gridBody := tw.grid(t, tw.mapE, 10, 0, true)
	if _, err := tw.grids.SetTile(gridBody.GetEntity(), 0, 0); err != nil {
		t.Fatalf("set tile: %v", err)
	}
	body := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0, 0, 1)

	if tw.world.GetRegistry().Len() != 2 {
		t.Fatalf("registry holds %d partitions", tw.world.GetRegistry().Len())
	}

	if err := tw.world.DestroyPartition(tw.mapE); err != nil {
		t.Fatalf("destroy map: %v", err)
	}

	if tw.world.GetMapCount() != 0 || tw.world.GetRegistry().Len() != 0 {
		t.Fatalf("partitions left: maps %d, registry %d", tw.world.GetMapCount(), tw.world.GetRegistry().Len())
	}
	if body.GetPartition().IsValid() || gridBody.GetPartition().IsValid() {
		t.Fatalf("bodies still reference destroyed partitions")
	}
	if err := tw.world.FindNewContacts(tw.mapE); errors.Cause(err) != broadphase.ErrUnknownMap {
		t.Fatalf("FindNewContacts() = %v, want ErrUnknownMap", err)
	}
	if err := tw.world.DestroyPartition(tw.mapE); errors.Cause(err) != broadphase.ErrNoPartition {
		t.Fatalf("second destroy = %v, want ErrNoPartition", err)
	}
}

func TestCreatePartitionErrors(t *testing.T) {
	tw := newTestWorld(t)

	if _, err := tw.world.CreateMap(tw.mapE); errors.Cause(err) != broadphase.ErrDuplicatePartition {
		t.Fatalf("duplicate map = %v", err)
	}

	orphan := tw.entity(t, ecs.Entity{}, 0, 0)
	if _, err := tw.world.CreateGrid(orphan); errors.Cause(err) != broadphase.ErrUnknownMap {
		t.Fatalf("grid outside a map = %v", err)
	}

	body := tw.circle(t, tw.mapE, broadphase.DynamicBody, 0, 0, 1)
	if _, err := tw.world.CreateBody(body.GetEntity(), broadphase.MakeBodyDef()); errors.Cause(err) != broadphase.ErrDuplicateBody {
		t.Fatalf("duplicate body = %v", err)
	}
	if _, err := body.CreateFixture(broadphase.FixtureDef{}); errors.Cause(err) != broadphase.ErrInvalidFixture {
		t.Fatalf("fixture without shape = %v", err)
	}
	if err := tw.world.GridMoved(body.GetEntity()); errors.Cause(err) != broadphase.ErrUnknownGrid {
		t.Fatalf("GridMoved on a body = %v", err)
	}
}

func TestQueryAABBAcrossPartitions(t *testing.T) {
	tw := newTestWorld(t)
	gridBody := tw.grid(t, tw.mapE, 10, 0, true)
	tile, err := tw.grids.SetTile(gridBody.GetEntity(), 0, 0)
	if err != nil {
		t.Fatalf("set tile: %v", err)
	}
	body := tw.circle(t, tw.mapE, broadphase.DynamicBody, 9, 0.5, 0.5)
	tw.circle(t, tw.mapE, broadphase.DynamicBody, -20, 0, 0.5)

	var found []*broadphase.Fixture
	err = tw.world.QueryAABB(tw.mapE, broadphase.MakeAABB(broadphase.Vec2{8, 0}, broadphase.Vec2{11, 1}), func(proxy *broadphase.FixtureProxy) bool {
		found = append(found, proxy.Fixture)
		return true
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(found) != 2 || found[0] != body.GetFixtureList()[0] || found[1] != tile {
		t.Fatalf("query found %d fixtures", len(found))
	}

	calls := 0
	tw.world.QueryAABB(tw.mapE, broadphase.MakeAABB(broadphase.Vec2{8, 0}, broadphase.Vec2{11, 1}), func(proxy *broadphase.FixtureProxy) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Fatalf("query did not stop: %d calls", calls)
	}
}

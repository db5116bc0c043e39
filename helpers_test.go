package broadphase_test

import (
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/ByteArena/broadphase"
	"github.com/charmbracelet/log"
	"github.com/mlange-42/ark/ecs"
)

// pairRecorder is a ContactManager that keeps every delivered pair.
type pairRecorder struct {
	pairs     []recordedPair
	destroyed []uint64
}

type recordedPair struct {
	a, b  uint64
	flags broadphase.PairFlags
}

func (r *pairRecorder) AddPair(proxyA, proxyB *broadphase.FixtureProxy, flags broadphase.PairFlags) {
	r.pairs = append(r.pairs, recordedPair{a: proxyA.GetSeq(), b: proxyB.GetSeq(), flags: flags})
}

func (r *pairRecorder) DestroyContacts(proxy *broadphase.FixtureProxy) {
	r.destroyed = append(r.destroyed, proxy.GetSeq())
}

func (r *pairRecorder) take() []recordedPair {
	res := r.pairs
	r.pairs = nil
	return res
}

func (r *pairRecorder) trace() string {
	var sb strings.Builder
	for _, p := range r.pairs {
		fmt.Fprintf(&sb, "%d-%d %02b\n", p.a, p.b, p.flags)
	}
	return sb.String()
}

type testWorld struct {
	store    *broadphase.EntityStore
	grids    *broadphase.GridStore
	recorder *pairRecorder
	world    *broadphase.World
	mapE     ecs.Entity
}

type worldOption func(def *broadphase.WorldDef)

func withLogger(w io.Writer) worldOption {
	return func(def *broadphase.WorldDef) {
		def.Logger = broadphase.NewLogger(w, log.DebugLevel)
	}
}

func withDebug() worldOption {
	return func(def *broadphase.WorldDef) {
		def.Settings.Debug = true
	}
}

func withWorkers(n int) worldOption {
	return func(def *broadphase.WorldDef) {
		def.Settings.Workers = n
	}
}

func withContacts(contacts broadphase.ContactManager) worldOption {
	return func(def *broadphase.WorldDef) {
		def.Contacts = contacts
	}
}

// newTestWorld builds a world with one map at the origin.
func newTestWorld(t *testing.T, options ...worldOption) *testWorld {
	t.Helper()

	tw := &testWorld{
		store:    broadphase.NewEntityStore(),
		recorder: &pairRecorder{},
	}

	var err error
	tw.grids, err = broadphase.NewGridStore(broadphase.MakeGridStoreDef(), tw.store)
	if err != nil {
		t.Fatalf("grid store: %v", err)
	}

	def := broadphase.MakeWorldDef()
	def.Logger = broadphase.NewLogger(io.Discard, log.DebugLevel)
	def.Transforms = tw.store
	def.Grids = tw.grids
	def.Contacts = tw.recorder
	for _, option := range options {
		option(&def)
	}

	tw.world, err = broadphase.NewWorld(def)
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	tw.mapE = tw.addMap(t)
	return tw
}

func (tw *testWorld) addMap(t *testing.T) ecs.Entity {
	t.Helper()
	mapE, err := tw.store.NewEntity(ecs.Entity{}, broadphase.MakeTransform())
	if err != nil {
		t.Fatalf("map entity: %v", err)
	}
	if _, err := tw.world.CreateMap(mapE); err != nil {
		t.Fatalf("create map: %v", err)
	}
	return mapE
}

func (tw *testWorld) entity(t *testing.T, parent ecs.Entity, x, y float64) ecs.Entity {
	t.Helper()
	e, err := tw.store.NewEntity(parent, broadphase.MakeTransformFromAngle(broadphase.Vec2{x, y}, 0.0))
	if err != nil {
		t.Fatalf("entity: %v", err)
	}
	return e
}

// box creates a body with a single box fixture on a new entity.
func (tw *testWorld) box(t *testing.T, parent ecs.Entity, bodyType broadphase.BodyType, x, y, hx, hy float64) *broadphase.Body {
	t.Helper()
	return tw.shape(t, parent, bodyType, x, y, broadphase.NewBoxShape(hx, hy))
}

func (tw *testWorld) circle(t *testing.T, parent ecs.Entity, bodyType broadphase.BodyType, x, y, radius float64) *broadphase.Body {
	t.Helper()
	return tw.shape(t, parent, bodyType, x, y, broadphase.NewCircleShape(broadphase.Vec2{}, radius))
}

func (tw *testWorld) shape(t *testing.T, parent ecs.Entity, bodyType broadphase.BodyType, x, y float64, shape broadphase.Shape) *broadphase.Body {
	t.Helper()
	def := broadphase.MakeBodyDef()
	def.Type = bodyType
	body, err := tw.world.CreateBody(tw.entity(t, parent, x, y), def)
	if err != nil {
		t.Fatalf("create body: %v", err)
	}
	if _, err := body.CreateFixture(broadphase.MakeFixtureDef(shape)); err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	return body
}

// grid creates a grid partition in the map parent with a dynamic grid body.
func (tw *testWorld) grid(t *testing.T, parent ecs.Entity, x, y float64, awake bool) *broadphase.Body {
	t.Helper()
	gridE := tw.entity(t, parent, x, y)
	if _, err := tw.world.CreateGrid(gridE); err != nil {
		t.Fatalf("create grid: %v", err)
	}
	def := broadphase.MakeBodyDef()
	def.Type = broadphase.DynamicBody
	def.Awake = awake
	body, err := tw.world.CreateBody(gridE, def)
	if err != nil {
		t.Fatalf("grid body: %v", err)
	}
	if err := tw.grids.AddGrid(parent, body); err != nil {
		t.Fatalf("add grid: %v", err)
	}
	return body
}

// moveTo places the entity of body at (x, y) and synchronizes it.
func (tw *testWorld) moveTo(t *testing.T, body *broadphase.Body, x, y, angle float64) {
	t.Helper()
	xf := broadphase.MakeTransformFromAngle(broadphase.Vec2{x, y}, angle)
	if err := tw.store.SetLocalTransform(body.GetEntity(), xf); err != nil {
		t.Fatalf("move: %v", err)
	}
	tw.world.SynchronizeBody(body)
}

func (tw *testWorld) step(t *testing.T) []recordedPair {
	t.Helper()
	if err := tw.world.FindNewContacts(tw.mapE); err != nil {
		t.Fatalf("find new contacts: %v", err)
	}
	return tw.recorder.take()
}

func floatEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func proxyOf(body *broadphase.Body) *broadphase.FixtureProxy {
	return body.GetFixtureList()[0].GetProxies()[0]
}

package broadphase

import (
	"github.com/mlange-42/ark/ecs"
)

/// EntityTransforms is the view of the entity system the broad-phase needs.
/// Implementations must allow concurrent reads while contacts are found in
/// parallel.
type EntityTransforms interface {
	/// World position and rotation of an entity. ok is false for dead entities.
	WorldTransform(entity ecs.Entity) (xf Transform, ok bool)

	/// The container of entity. ok is false for root entities.
	Parent(entity ecs.Entity) (parent ecs.Entity, ok bool)

	Alive(entity ecs.Entity) bool
}

/// A chunk is a fixed-size block of grid tiles.
type Chunk struct {
	Grid  ecs.Entity
	Index [2]int

	/// Bounds of the tile fixtures in grid-local coordinates.
	LocalBounds AABB

	Fixtures []*Fixture
}

/// GridIndex is the tile system: grid lookup and chunk enumeration.
/// Callbacks return false to stop the enumeration.
type GridIndex interface {
	/// Enumerate the grids of mapEntity whose world AABB overlaps worldAABB.
	FindGridsIntersecting(mapEntity ecs.Entity, worldAABB AABB, fn func(grid ecs.Entity) bool)

	/// Bounds of all tiles of grid in its local frame.
	GridLocalBounds(grid ecs.Entity) (AABB, bool)

	/// Enumerate the chunks of grid whose local bounds overlap localAABB.
	FindChunksIntersecting(grid ecs.Entity, localAABB AABB, fn func(chunk *Chunk) bool)
}

type PairFlags uint8

const (
	/// Found by the grid-vs-grid pass.
	PairGridOrigin PairFlags = 1 << iota

	/// One side was re-examined only because a grid moved over it.
	PairGridDriven
)

func (f PairFlags) Has(flag PairFlags) bool {
	return f&flag != 0
}

/// ContactManager receives candidate pairs. Pairs are delivered from the
/// thread that calls FindNewContacts, in a deterministic order.
type ContactManager interface {
	/// Register a candidate pair. Called again for pairs that are already
	/// known; implementations keep their own set of contacts.
	AddPair(proxyA, proxyB *FixtureProxy, flags PairFlags)

	/// Destroy every contact that references proxy. Called before the proxy
	/// leaves its tree.
	DestroyContacts(proxy *FixtureProxy)
}

/// Implement this class to provide collision filtering. In other words, you can implement
/// this class if you want finer control over contact creation.
type ContactFilter interface {
	/// Return true if contact calculations should be performed between these two shapes.
	/// @warning for performance reasons this is only called when the AABBs begin to overlap.
	ShouldCollide(fixtureA, fixtureB *Fixture) bool
}

/// Joints and fixtures are destroyed when their associated
/// body is destroyed. Implement this listener so that you
/// may nullify references to these fixtures.
type DestructionListener interface {
	/// Called when any fixture is about to be destroyed due
	/// to the destruction of its parent body.
	SayGoodbyeToFixture(fixture *Fixture)
}

/// Callback for World.QueryAABB. Return false to terminate the query.
type QueryCallback func(proxy *FixtureProxy) bool

type DefaultContactFilter struct{}

// Return true if contact calculations should be performed between these two shapes.
// If you implement your own collision filter you may want to build from this implementation.
func (DefaultContactFilter) ShouldCollide(fixtureA, fixtureB *Fixture) bool {
	filterA := fixtureA.GetFilterData()
	filterB := fixtureB.GetFilterData()

	if filterA.GroupIndex == filterB.GroupIndex && filterA.GroupIndex != 0 {
		return filterA.GroupIndex > 0
	}

	return (filterA.MaskBits&filterB.CategoryBits) != 0 && (filterA.CategoryBits&filterB.MaskBits) != 0
}

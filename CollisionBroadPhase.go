package broadphase

import (
	"slices"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
)

type foundPair struct {
	proxyA *FixtureProxy
	proxyB *FixtureProxy
	flags  PairFlags
}

/// This is used to sort pairs.
type pairsBySeq []foundPair

func (a pairsBySeq) Len() int      { return len(a) }
func (a pairsBySeq) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a pairsBySeq) Less(i, j int) bool {
	if a[i].proxyA.seq != a[j].proxyA.seq {
		return a[i].proxyA.seq < a[j].proxyA.seq
	}
	return a[i].proxyB.seq < a[j].proxyB.seq
}

// Candidate pairs of one pass, keyed by the proxy that found them.
type pairBuffer struct {
	seen  map[*FixtureProxy]map[*FixtureProxy]int
	pairs []foundPair
}

func newPairBuffer() *pairBuffer {
	return &pairBuffer{seen: make(map[*FixtureProxy]map[*FixtureProxy]int)}
}

// add records (origin, other) unless it or its reverse is already known.
// Flags of duplicates are merged into the recorded pair.
func (pb *pairBuffer) add(origin, other *FixtureProxy, flags PairFlags) bool {
	if index, ok := pb.seen[other][origin]; ok {
		pb.pairs[index].flags |= flags
		return false
	}

	found, ok := pb.seen[origin]
	if !ok {
		found = make(map[*FixtureProxy]int)
		pb.seen[origin] = found
	}
	if index, ok := found[other]; ok {
		pb.pairs[index].flags |= flags
		return false
	}

	found[other] = len(pb.pairs)
	pb.pairs = append(pb.pairs, foundPair{proxyA: origin, proxyB: other, flags: flags})
	return true
}

func (pb *pairBuffer) reset() {
	clear(pb.seen)
	pb.pairs = pb.pairs[:0]
}

// shouldPair is the cheap rejection test applied to every tree hit.
func (w *World) shouldPair(proxyA, proxyB *FixtureProxy) bool {
	// A proxy cannot form a pair with itself.
	if proxyA == proxyB {
		return false
	}

	fixtureA := proxyA.Fixture
	fixtureB := proxyB.Fixture
	bodyA := fixtureA.body
	bodyB := fixtureB.body

	// Are the fixtures on the same body?
	if bodyA == bodyB {
		return false
	}

	if !bodyA.ShouldCollide(bodyB) {
		return false
	}

	return w.filter.ShouldCollide(fixtureA, fixtureB)
}

// findPairs runs one discovery pass over a map and leaves the sorted pairs in
// ms.found. It touches only the state of this map.
func (w *World) findPairs(ms *mapState) {
	defer ms.reset()

	mapPartition, err := w.registry.Get(ms.partition)
	if err != nil {
		w.logger.Warn("skipping pair pass", "map", ms.entity, "err", err)
		return
	}
	mapXf, ok := w.partitionTransform(mapPartition)
	if !ok {
		w.logger.Warn("skipping pair pass", "map", ms.entity, "err", errors.Wrap(ErrStalePartition, "map entity is dead"))
		return
	}

	// Grids that moved re-examine what they now cover.
	for _, grid := range ms.movedGrids {
		w.injectGridDriven(ms, mapPartition, mapXf, grid)
	}

	w.collideGrids(ms)

	moved := ms.moves.Drain()
	for _, entry := range moved {
		w.queryMove(ms, mapPartition, mapXf, entry)
	}

	pairs := ms.pairs.pairs
	for i := range pairs {
		pair := &pairs[i]

		if pair.proxyB.seq < pair.proxyA.seq {
			pair.proxyA, pair.proxyB = pair.proxyB, pair.proxyA
		}

		if pair.flags.Has(PairGridDriven) && pair.proxyA.Fixture.IsHard() && pair.proxyB.Fixture.IsHard() {
			pair.proxyA.Fixture.body.SetAwake(true)
			pair.proxyB.Fixture.body.SetAwake(true)
		}
	}

	sort.Sort(pairsBySeq(pairs))
	ms.found = append(ms.found, pairs...)

	w.logger.Debug("pair pass", "map", ms.entity, "moved", len(moved), "pairs", len(pairs))
}

// injectGridDriven re-examines what a moved grid now covers: the map proxies
// under it, the riders of the grids it overlaps, and its own riders that
// overlap those grids. Tiles against tiles go through collideGrids.
func (w *World) injectGridDriven(ms *mapState, mapPartition *Partition, mapXf Transform, grid ecs.Entity) {
	p, ok := w.registry.ByOwner(grid)
	if !ok || p.kind != PartitionGrid {
		return
	}
	xf, ok := w.partitionTransform(p)
	if !ok {
		return
	}
	local, ok := w.gridPartitionBounds(p)
	if !ok {
		return
	}

	expand := w.settings.BroadphaseExpand
	worldAABB := TransformAABB(xf, local).Enlarged(expand)

	w.injectCovered(ms, mapPartition, mapXf, worldAABB, false)

	w.forEachGrid(ms, worldAABB, func(other *Partition, otherXf Transform) bool {
		if other == p {
			return true
		}
		if otherLocal, ok := w.gridPartitionBounds(other); ok {
			w.injectCovered(ms, other, otherXf, worldAABB, true)
			w.injectCovered(ms, p, xf, TransformAABB(otherXf, otherLocal).Enlarged(expand), true)
		}
		return true
	})
}

// injectCovered adds the proxies of p overlapping worldAABB to the move
// buffer. With ridersOnly the tiles of a grid partition are left out.
func (w *World) injectCovered(ms *mapState, p *Partition, xf Transform, worldAABB AABB, ridersOnly bool) {
	tree := p.Tree
	tree.Query(func(proxyID int) bool {
		proxy := tree.GetUserData(proxyID)
		if ridersOnly && proxy.Fixture.body.entity == p.owner {
			return true
		}
		if !ms.moves.Contains(proxy) {
			ms.moves.RecordMove(proxy, TransformAABB(xf, proxy.AABB))
			ms.gridDriven[proxy] = struct{}{}
		}
		return true
	}, InvTransformAABB(xf, worldAABB))
}

// gridPartitionBounds is the local bounds of everything a grid partition
// holds: its tiles and the bodies riding it, wherever they are.
func (w *World) gridPartitionBounds(p *Partition) (AABB, bool) {
	bounds, ok := p.Tree.GetRootAABB()
	if tiles, hasTiles := w.grids.GridLocalBounds(p.owner); hasTiles {
		if ok {
			bounds.CombineInPlace(tiles)
		} else {
			bounds, ok = tiles, true
		}
	}
	return bounds, ok
}

// forEachGrid visits the grid partitions of ms whose world bounds overlap
// worldAABB. The grid index answers for tiles; grids it does not report are
// tested against the bounds of their trees, which hold the riders. fn returns
// false to stop.
func (w *World) forEachGrid(ms *mapState, worldAABB AABB, fn func(p *Partition, xf Transform) bool) {
	seen := ms.gridScratch[:0]
	ms.gridScratch = nil
	defer func() { ms.gridScratch = seen[:0] }()

	proceed := true

	w.grids.FindGridsIntersecting(ms.entity, worldAABB, func(grid ecs.Entity) bool {
		p, ok := w.registry.ByOwner(grid)
		if !ok || p.kind != PartitionGrid || p.mapEntity != ms.entity {
			w.logger.Warn("grid without partition", "map", ms.entity, "grid", grid)
			return true
		}
		xf, ok := w.partitionTransform(p)
		if !ok {
			return true
		}
		seen = append(seen, grid)
		proceed = fn(p, xf)
		return proceed
	})

	for _, grid := range ms.grids {
		if !proceed {
			return
		}
		if slices.Contains(seen, grid) {
			continue
		}
		p, ok := w.registry.ByOwner(grid)
		if !ok {
			continue
		}
		local, ok := p.Tree.GetRootAABB()
		if !ok {
			continue
		}
		xf, ok := w.partitionTransform(p)
		if !ok || !TransformAABB(xf, local).Overlaps(worldAABB) {
			continue
		}
		proceed = fn(p, xf)
	}
}

func (w *World) queryMove(ms *mapState, mapPartition *Partition, mapXf Transform, entry MoveEntry) {
	proxy := entry.Proxy
	body := proxy.Fixture.body

	// The entity may have been deleted after the move was recorded.
	if body == nil || body.IsDestroyed() || !w.transforms.Alive(body.entity) {
		w.logger.Warn("skipping moved proxy of deleted body", "map", ms.entity, "proxy", proxy.seq)
		return
	}

	own, err := w.registry.Get(proxy.Partition)
	if err != nil || proxy.ProxyID == NullNode {
		w.logger.Warn("skipping moved proxy without partition", "map", ms.entity, "proxy", proxy.seq, "err", err)
		return
	}

	_, driven := ms.gridDriven[proxy]

	query := func(p *Partition, local AABB) {
		tree := p.Tree
		tree.Query(func(proxyID int) bool {
			other := tree.GetUserData(proxyID)
			if !w.shouldPair(proxy, other) {
				return true
			}

			var flags PairFlags
			if _, otherDriven := ms.gridDriven[other]; driven || otherDriven {
				flags |= PairGridDriven
			}
			ms.pairs.add(proxy, other, flags)
			return true
		}, local)
	}

	visit := func(p *Partition, xf Transform) {
		if p == own {
			// Same frame, no reprojection.
			query(p, proxy.AABB)
			return
		}
		query(p, InvTransformAABB(xf, entry.WorldAABB))
	}

	visit(mapPartition, mapXf)

	w.forEachGrid(ms, entry.WorldAABB.Enlarged(w.settings.BroadphaseExpand), func(p *Partition, xf Transform) bool {
		visit(p, xf)
		return true
	})
}

/// Query every partition of a map for proxies whose fat AABB overlaps a world
/// AABB.
func (w *World) QueryAABB(mapEntity ecs.Entity, worldAABB AABB, callback QueryCallback) error {
	ms, ok := w.maps[mapEntity]
	if !ok {
		return errors.Wrapf(ErrUnknownMap, "%v", mapEntity)
	}

	mapPartition, err := w.registry.Get(ms.partition)
	if err != nil {
		return err
	}

	proceed := true
	visit := func(p *Partition, xf Transform) bool {
		tree := p.Tree
		tree.Query(func(proxyID int) bool {
			proceed = callback(tree.GetUserData(proxyID))
			return proceed
		}, InvTransformAABB(xf, worldAABB))
		return proceed
	}

	if xf, ok := w.partitionTransform(mapPartition); ok && !visit(mapPartition, xf) {
		return nil
	}

	w.forEachGrid(ms, worldAABB, visit)

	return nil
}

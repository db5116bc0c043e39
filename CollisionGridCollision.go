package broadphase

import (
	"github.com/mlange-42/ark/ecs"
)

type gridPairKey struct {
	a, b ecs.Entity
}

// collideGrids pairs the tiles of every moved grid with the tiles of the
// grids it now overlaps. The search narrows from grid bounds to chunk bounds
// before any fixture is tested.
func (w *World) collideGrids(ms *mapState) {
	if len(ms.movedGrids) == 0 {
		return
	}

	expand := w.settings.BroadphaseExpand
	done := make(map[gridPairKey]struct{})

	for _, gridA := range ms.movedGrids {
		xfA, ok := w.transforms.WorldTransform(gridA)
		if !ok {
			continue
		}
		localA, ok := w.grids.GridLocalBounds(gridA)
		if !ok {
			continue
		}
		worldA := TransformAABB(xfA, localA).Enlarged(expand)

		w.grids.FindGridsIntersecting(ms.entity, worldA, func(gridB ecs.Entity) bool {
			if gridB == gridA {
				return true
			}
			if _, ok := done[gridPairKey{gridB, gridA}]; ok {
				return true
			}
			if _, ok := done[gridPairKey{gridA, gridB}]; ok {
				return true
			}
			done[gridPairKey{gridA, gridB}] = struct{}{}

			w.collideGridPair(ms, gridA, xfA, localA, gridB)
			return true
		})
	}
}

func (w *World) collideGridPair(ms *mapState, gridA ecs.Entity, xfA Transform, localA AABB, gridB ecs.Entity) {
	expand := w.settings.BroadphaseExpand

	xfB, ok := w.transforms.WorldTransform(gridB)
	if !ok {
		return
	}
	localB, ok := w.grids.GridLocalBounds(gridB)
	if !ok {
		return
	}

	// Region of A that B could touch, in A's frame.
	worldB := TransformAABB(xfB, localB).Enlarged(expand)
	region := InvTransformAABB(xfA, worldB).Intersection(localA)
	if !region.IsValid() {
		return
	}

	w.grids.FindChunksIntersecting(gridA, region, func(chunkA *Chunk) bool {
		chunkAInB := InvTransformAABB(xfB, TransformAABB(xfA, chunkA.LocalBounds).Enlarged(expand))

		w.grids.FindChunksIntersecting(gridB, chunkAInB, func(chunkB *Chunk) bool {
			w.collideChunks(ms, chunkA, xfA, chunkB, xfB)
			return true
		})
		return true
	})
}

// collideChunks tests the tile fixtures of two chunks. Tiles whose enlarged
// world bounds overlap are paired and their bodies woken even if the exact
// bounds do not overlap yet.
func (w *World) collideChunks(ms *mapState, chunkA *Chunk, xfA Transform, chunkB *Chunk, xfB Transform) {
	expand := w.settings.BroadphaseExpand

	for _, fixtureA := range chunkA.Fixtures {
		for _, proxyA := range fixtureA.proxies {
			if proxyA.ProxyID == NullNode {
				continue
			}
			aabbA := TransformAABB(xfA, proxyA.AABB).Enlarged(expand)

			for _, fixtureB := range chunkB.Fixtures {
				for _, proxyB := range fixtureB.proxies {
					if proxyB.ProxyID == NullNode {
						continue
					}
					if !aabbA.Overlaps(TransformAABB(xfB, proxyB.AABB)) {
						continue
					}
					if !w.shouldPair(proxyA, proxyB) {
						continue
					}

					ms.pairs.add(proxyA, proxyB, PairGridOrigin)

					if fixtureA.IsHard() && fixtureB.IsHard() {
						fixtureA.body.SetAwake(true)
						fixtureB.body.SetAwake(true)
					}
				}
			}
		}
	}
}

package broadphase

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
)

type GridStoreDef struct {
	/// Tiles per chunk side.
	ChunkSize int

	/// Tile side length in grid units.
	TileSize float64
}

func MakeGridStoreDef() GridStoreDef {
	return GridStoreDef{
		ChunkSize: 16,
		TileSize:  1.0,
	}
}

func (def GridStoreDef) Validate() error {
	if def.ChunkSize < 1 {
		return errors.Wrapf(ErrInvalidSettings, "chunk size %d", def.ChunkSize)
	}
	if def.TileSize <= 0.0 || !IsValid(def.TileSize) {
		return errors.Wrapf(ErrInvalidSettings, "tile size %v", def.TileSize)
	}
	return nil
}

type TileIndex [2]int

type gridData struct {
	entity    ecs.Entity
	mapEntity ecs.Entity
	body      *Body

	tiles  map[TileIndex]*Fixture
	chunks map[[2]int]*Chunk

	bounds    AABB
	hasBounds bool
}

/// GridStore keeps the solid tiles of every grid as box fixtures on the grid
/// body, grouped in chunks. It implements GridIndex.
type GridStore struct {
	def        GridStoreDef
	transforms EntityTransforms

	grids map[ecs.Entity]*gridData
	order []*gridData
}

func NewGridStore(def GridStoreDef, transforms EntityTransforms) (*GridStore, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &GridStore{
		def:        def,
		transforms: transforms,
		grids:      make(map[ecs.Entity]*gridData),
	}, nil
}

func (s *GridStore) GetDef() GridStoreDef {
	return s.def
}

/// Register the body that carries the tiles of a grid. The grid entity is the
/// body entity.
func (s *GridStore) AddGrid(mapEntity ecs.Entity, body *Body) error {
	grid := body.GetEntity()
	if _, ok := s.grids[grid]; ok {
		return errors.Wrapf(ErrDuplicatePartition, "grid %v", grid)
	}

	g := &gridData{
		entity:    grid,
		mapEntity: mapEntity,
		body:      body,
		tiles:     make(map[TileIndex]*Fixture),
		chunks:    make(map[[2]int]*Chunk),
	}
	s.grids[grid] = g
	s.order = append(s.order, g)
	return nil
}

/// Forget a grid. The tile fixtures stay on the body.
func (s *GridStore) RemoveGrid(grid ecs.Entity) error {
	g, ok := s.grids[grid]
	if !ok {
		return errors.Wrapf(ErrUnknownGrid, "%v", grid)
	}
	delete(s.grids, grid)
	for i, other := range s.order {
		if other == g {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *GridStore) chunkIndex(tile TileIndex) [2]int {
	cs := s.def.ChunkSize
	floorDiv := func(a int) int {
		q := a / cs
		if a%cs != 0 && a < 0 {
			q--
		}
		return q
	}
	return [2]int{floorDiv(tile[0]), floorDiv(tile[1])}
}

func (s *GridStore) tileCenter(tile TileIndex) Vec2 {
	ts := s.def.TileSize
	return Vec2{(float64(tile[0]) + 0.5) * ts, (float64(tile[1]) + 0.5) * ts}
}

/// Make a tile solid. Setting a solid tile again returns its fixture.
func (s *GridStore) SetTile(grid ecs.Entity, x, y int) (*Fixture, error) {
	g, ok := s.grids[grid]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownGrid, "%v", grid)
	}

	tile := TileIndex{x, y}
	if fixture, ok := g.tiles[tile]; ok {
		return fixture, nil
	}

	half := 0.5 * s.def.TileSize
	shape := NewPolygonShape()
	shape.SetAsBoxFromCenterAndAngle(half, half, s.tileCenter(tile), 0.0)

	fixture, err := g.body.CreateFixture(MakeFixtureDef(shape))
	if err != nil {
		return nil, errors.Wrapf(err, "tile (%d, %d)", x, y)
	}
	fixture.SetUserData(tile)
	g.tiles[tile] = fixture

	ci := s.chunkIndex(tile)
	chunk, ok := g.chunks[ci]
	if !ok {
		chunk = &Chunk{Grid: grid, Index: ci}
		g.chunks[ci] = chunk
	}
	chunk.Fixtures = append(chunk.Fixtures, fixture)
	s.refreshChunk(chunk)
	s.refreshGrid(g)

	return fixture, nil
}

/// Make a tile empty.
func (s *GridStore) ClearTile(grid ecs.Entity, x, y int) error {
	g, ok := s.grids[grid]
	if !ok {
		return errors.Wrapf(ErrUnknownGrid, "%v", grid)
	}

	tile := TileIndex{x, y}
	fixture, ok := g.tiles[tile]
	if !ok {
		return nil
	}
	delete(g.tiles, tile)
	g.body.DestroyFixture(fixture)

	ci := s.chunkIndex(tile)
	chunk := g.chunks[ci]
	for i, f := range chunk.Fixtures {
		if f == fixture {
			chunk.Fixtures = append(chunk.Fixtures[:i], chunk.Fixtures[i+1:]...)
			break
		}
	}
	if len(chunk.Fixtures) == 0 {
		delete(g.chunks, ci)
	} else {
		s.refreshChunk(chunk)
	}
	s.refreshGrid(g)

	return nil
}

func (s *GridStore) GetTile(grid ecs.Entity, x, y int) (*Fixture, bool) {
	g, ok := s.grids[grid]
	if !ok {
		return nil, false
	}
	fixture, ok := g.tiles[TileIndex{x, y}]
	return fixture, ok
}

func (s *GridStore) GetTileCount(grid ecs.Entity) int {
	g, ok := s.grids[grid]
	if !ok {
		return 0
	}
	return len(g.tiles)
}

func (s *GridStore) GetChunkCount(grid ecs.Entity) int {
	g, ok := s.grids[grid]
	if !ok {
		return 0
	}
	return len(g.chunks)
}

func (s *GridStore) refreshChunk(chunk *Chunk) {
	identity := MakeTransform()
	for i, fixture := range chunk.Fixtures {
		var aabb AABB
		fixture.GetShape().ComputeAABB(&aabb, identity, 0)
		if i == 0 {
			chunk.LocalBounds = aabb
		} else {
			chunk.LocalBounds.CombineInPlace(aabb)
		}
	}
}

func (s *GridStore) refreshGrid(g *gridData) {
	g.hasBounds = false
	for _, chunk := range g.chunks {
		if !g.hasBounds {
			g.bounds = chunk.LocalBounds
			g.hasBounds = true
		} else {
			g.bounds.CombineInPlace(chunk.LocalBounds)
		}
	}
}

func (s *GridStore) FindGridsIntersecting(mapEntity ecs.Entity, worldAABB AABB, fn func(grid ecs.Entity) bool) {
	for _, g := range s.order {
		if g.mapEntity != mapEntity || !g.hasBounds {
			continue
		}
		xf, ok := s.transforms.WorldTransform(g.entity)
		if !ok {
			continue
		}
		if !TransformAABB(xf, g.bounds).Overlaps(worldAABB) {
			continue
		}
		if !fn(g.entity) {
			return
		}
	}
}

func (s *GridStore) GridLocalBounds(grid ecs.Entity) (AABB, bool) {
	g, ok := s.grids[grid]
	if !ok || !g.hasBounds {
		return AABB{}, false
	}
	return g.bounds, true
}

func (s *GridStore) FindChunksIntersecting(grid ecs.Entity, localAABB AABB, fn func(chunk *Chunk) bool) {
	g, ok := s.grids[grid]
	if !ok || !g.hasBounds {
		return
	}

	// Clamp to the grid, then walk the covered chunk cells in row order.
	region := localAABB.Intersection(g.bounds.Enlarged(PolygonRadius))
	if !region.IsValid() {
		return
	}

	cw := float64(s.def.ChunkSize) * s.def.TileSize
	pad := PolygonRadius
	x0 := int(math.Floor((region.LowerBound[0] - pad) / cw))
	y0 := int(math.Floor((region.LowerBound[1] - pad) / cw))
	x1 := int(math.Floor((region.UpperBound[0] + pad) / cw))
	y1 := int(math.Floor((region.UpperBound[1] + pad) / cw))

	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			chunk, ok := g.chunks[[2]int{cx, cy}]
			if !ok || !chunk.LocalBounds.Overlaps(localAABB) {
				continue
			}
			if !fn(chunk) {
				return
			}
		}
	}
}

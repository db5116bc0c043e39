package broadphase

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

/// A world definition holds the settings and collaborators of a World.
type WorldDef struct {
	Settings Settings

	/// Defaults to a stderr logger at warn level.
	Logger *log.Logger

	Transforms EntityTransforms
	Grids      GridIndex
	Contacts   ContactManager

	/// Defaults to DefaultContactFilter.
	Filter ContactFilter

	/// Optional.
	Destruction DestructionListener
}

func MakeWorldDef() WorldDef {
	return WorldDef{Settings: DefaultSettings()}
}

// Per-map discovery state. Nothing in here is shared between maps.
type mapState struct {
	entity    ecs.Entity
	partition PartitionID
	grids     []ecs.Entity

	moves      *MoveBuffer
	gridDriven map[*FixtureProxy]struct{}

	movedGrids   []ecs.Entity
	movedGridSet map[ecs.Entity]struct{}
	gridScratch  []ecs.Entity

	pairs *pairBuffer
	found []foundPair
}

func newMapState(entity ecs.Entity, partition PartitionID) *mapState {
	return &mapState{
		entity:       entity,
		partition:    partition,
		moves:        NewMoveBuffer(),
		gridDriven:   make(map[*FixtureProxy]struct{}),
		movedGridSet: make(map[ecs.Entity]struct{}),
		pairs:        newPairBuffer(),
	}
}

// Drop every pending reference to proxy.
func (ms *mapState) forget(proxy *FixtureProxy) {
	ms.moves.Remove(proxy)
	delete(ms.gridDriven, proxy)
}

func (ms *mapState) markGridMoved(grid ecs.Entity) {
	if _, ok := ms.movedGridSet[grid]; ok {
		return
	}
	ms.movedGridSet[grid] = struct{}{}
	ms.movedGrids = append(ms.movedGrids, grid)
}

func (ms *mapState) removeGrid(grid ecs.Entity) {
	for i, g := range ms.grids {
		if g == grid {
			ms.grids = append(ms.grids[:i], ms.grids[i+1:]...)
			break
		}
	}
	if _, ok := ms.movedGridSet[grid]; ok {
		delete(ms.movedGridSet, grid)
		for i, g := range ms.movedGrids {
			if g == grid {
				ms.movedGrids = append(ms.movedGrids[:i], ms.movedGrids[i+1:]...)
				break
			}
		}
	}
}

func (ms *mapState) reset() {
	ms.moves.Reset()
	clear(ms.gridDriven)
	ms.movedGrids = ms.movedGrids[:0]
	clear(ms.movedGridSet)
	ms.pairs.reset()
}

/// The world manages the partitions, bodies and proxies of every map, and
/// finds new candidate pairs once per step.
type World struct {
	settings Settings
	logger   *log.Logger

	transforms  EntityTransforms
	grids       GridIndex
	contacts    ContactManager
	filter      ContactFilter
	destruction DestructionListener

	registry *PartitionRegistry

	maps     map[ecs.Entity]*mapState
	mapOrder []ecs.Entity

	bodies   map[ecs.Entity]*Body
	bodyList []*Body

	proxySeq uint64
}

func NewWorld(def WorldDef) (*World, error) {
	if err := def.Settings.Validate(); err != nil {
		return nil, err
	}
	switch {
	case def.Transforms == nil:
		return nil, errors.Wrap(ErrMissingCollaborator, "entity transforms")
	case def.Grids == nil:
		return nil, errors.Wrap(ErrMissingCollaborator, "grid index")
	case def.Contacts == nil:
		return nil, errors.Wrap(ErrMissingCollaborator, "contact manager")
	}

	w := &World{
		settings:    def.Settings,
		logger:      def.Logger,
		transforms:  def.Transforms,
		grids:       def.Grids,
		contacts:    def.Contacts,
		filter:      def.Filter,
		destruction: def.Destruction,
		registry:    NewPartitionRegistry(def.Settings),
		maps:        make(map[ecs.Entity]*mapState),
		bodies:      make(map[ecs.Entity]*Body),
	}
	if w.logger == nil {
		w.logger = defaultLogger()
	}
	if w.filter == nil {
		w.filter = DefaultContactFilter{}
	}

	return w, nil
}

func (w *World) GetSettings() Settings {
	return w.settings
}

/// Create a distance engine capped at the world's MaxGJKIterations. An engine
/// keeps statistics and must not be shared between goroutines.
func (w *World) NewDistanceEngine() *DistanceEngine {
	return NewDistanceEngine(w.settings.MaxGJKIterations)
}

func (w *World) GetLogger() *log.Logger {
	return w.logger
}

func (w *World) GetRegistry() *PartitionRegistry {
	return w.registry
}

func (w *World) nextProxySeq() uint64 {
	w.proxySeq++
	return w.proxySeq
}

// check reports an invariant violation. It panics in debug mode and logs
// otherwise. Returns true when err is nil.
func (w *World) check(err error, msg string, keyvals ...interface{}) bool {
	if err == nil {
		return true
	}
	if w.settings.Debug {
		panic(errors.Wrap(err, msg))
	}
	w.logger.Error(msg, append(keyvals, "err", err)...)
	return false
}

///////////////////////////////////////////////////////////////////////////////
/// Partitions
///////////////////////////////////////////////////////////////////////////////

/// Create the partition of a map. Maps are root entities.
func (w *World) CreateMap(mapEntity ecs.Entity) (PartitionID, error) {
	if !w.transforms.Alive(mapEntity) {
		return NoPartition, errors.Wrapf(ErrUnknownMap, "%v is not alive", mapEntity)
	}

	p, err := w.registry.Create(mapEntity, PartitionMap, mapEntity, NoPartition)
	if err != nil {
		return NoPartition, err
	}

	w.maps[mapEntity] = newMapState(mapEntity, p.id)
	w.mapOrder = append(w.mapOrder, mapEntity)
	w.logger.Debug("map created", "map", mapEntity, "partition", p.id)

	return p.id, nil
}

/// Create the partition of a movable grid. The grid entity must sit inside a map.
/// Bodies already below the grid move into it on their next synchronization.
func (w *World) CreateGrid(gridEntity ecs.Entity) (PartitionID, error) {
	parent, ok := w.transforms.Parent(gridEntity)
	if !ok {
		return NoPartition, errors.Wrapf(ErrUnknownMap, "grid %v has no parent", gridEntity)
	}

	owner, err := w.registry.Get(w.registry.Resolve(w.transforms, parent))
	if err != nil {
		return NoPartition, errors.Wrapf(ErrUnknownMap, "grid %v is outside of any map", gridEntity)
	}

	ms, ok := w.maps[owner.mapEntity]
	if !ok {
		return NoPartition, errors.Wrapf(ErrUnknownMap, "%v", owner.mapEntity)
	}

	p, err := w.registry.Create(gridEntity, PartitionGrid, owner.mapEntity, ms.partition)
	if err != nil {
		return NoPartition, err
	}

	ms.grids = append(ms.grids, gridEntity)
	w.logger.Debug("grid created", "grid", gridEntity, "map", owner.mapEntity, "partition", p.id)

	return p.id, nil
}

/// Destroy the partition owned by owner. All proxies are removed first; the
/// bodies stay and are re-resolved on their next synchronization. Destroying
/// a map destroys its grids.
func (w *World) DestroyPartition(owner ecs.Entity) error {
	p, ok := w.registry.ByOwner(owner)
	if !ok {
		return errors.Wrapf(ErrNoPartition, "%v", owner)
	}

	ms := w.maps[p.mapEntity]

	if p.kind == PartitionMap {
		for len(ms.grids) > 0 {
			if err := w.DestroyPartition(ms.grids[len(ms.grids)-1]); err != nil {
				return err
			}
		}
	}

	for _, body := range w.bodyList {
		if body.partition == p.id {
			w.detachBody(body)
		}
	}

	if err := w.registry.Destroy(p.id); err != nil {
		return err
	}

	if p.kind == PartitionMap {
		delete(w.maps, owner)
		for i, m := range w.mapOrder {
			if m == owner {
				w.mapOrder = append(w.mapOrder[:i], w.mapOrder[i+1:]...)
				break
			}
		}
	} else {
		ms.removeGrid(owner)
	}

	w.logger.Debug("partition destroyed", "owner", owner, "kind", p.kind)
	return nil
}

/// Get the partition owned by owner.
func (w *World) GetPartition(owner ecs.Entity) (*Partition, bool) {
	return w.registry.ByOwner(owner)
}

func (w *World) GetMapCount() int {
	return len(w.mapOrder)
}

/// Flag a grid as moved this step. SynchronizeBody does this for grid bodies.
func (w *World) GridMoved(grid ecs.Entity) error {
	p, ok := w.registry.ByOwner(grid)
	if !ok || p.kind != PartitionGrid {
		return errors.Wrapf(ErrUnknownGrid, "%v", grid)
	}
	w.maps[p.mapEntity].markGridMoved(grid)
	return nil
}

func (w *World) partitionTransform(p *Partition) (Transform, bool) {
	return w.transforms.WorldTransform(p.owner)
}

// Pose of body in the frame of p. The owner of a partition sits at its origin.
func (w *World) localTransform(p *Partition, partitionXf Transform, body *Body) Transform {
	if p.owner == body.entity {
		return MakeTransform()
	}
	return TransformMulT(partitionXf, body.xf)
}

///////////////////////////////////////////////////////////////////////////////
/// Bodies
///////////////////////////////////////////////////////////////////////////////

/// Create a rigid body on entity. The body joins the partition that owns the
/// entity, if any.
func (w *World) CreateBody(entity ecs.Entity, def BodyDef) (*Body, error) {
	if _, ok := w.bodies[entity]; ok {
		return nil, errors.Wrapf(ErrDuplicateBody, "%v", entity)
	}

	xf, ok := w.transforms.WorldTransform(entity)
	if !ok {
		return nil, errors.Wrapf(ErrBodyDestroyed, "%v is not alive", entity)
	}

	body := &Body{
		world:     w,
		entity:    entity,
		bodyType:  def.Type,
		xf:        xf,
		partition: NoPartition,
		userData:  def.UserData,
	}
	if def.Awake {
		body.SetAwake(true)
	}
	if def.Enabled {
		body.flags |= bodyEnabledFlag
		w.attachBody(body)
	}

	w.bodies[entity] = body
	w.bodyList = append(w.bodyList, body)

	return body, nil
}

/// Destroy a rigid body. This destroys all the fixtures, proxies and contacts
/// of the body.
func (w *World) DestroyBody(body *Body) {
	if !w.check(w.liveBody(body), "destroy body", "entity", body.entity) {
		return
	}

	for len(body.fixtures) > 0 {
		fixture := body.fixtures[len(body.fixtures)-1]
		if w.destruction != nil {
			w.destruction.SayGoodbyeToFixture(fixture)
		}
		w.destroyFixture(fixture)
	}

	body.flags |= bodyDestroyedFlag
	body.partition = NoPartition
	delete(w.bodies, body.entity)
	for i, b := range w.bodyList {
		if b == body {
			w.bodyList = append(w.bodyList[:i], w.bodyList[i+1:]...)
			break
		}
	}
}

func (w *World) liveBody(body *Body) error {
	if body == nil || body.world != w || body.IsDestroyed() {
		return ErrBodyDestroyed
	}
	return nil
}

func (w *World) GetBody(entity ecs.Entity) (*Body, bool) {
	body, ok := w.bodies[entity]
	return body, ok
}

/// Bodies in creation order.
func (w *World) GetBodyList() []*Body {
	return w.bodyList
}

func (w *World) GetBodyCount() int {
	return len(w.bodyList)
}

// Create the proxies of an enabled body in the partition owning its entity.
func (w *World) attachBody(body *Body) {
	id := w.registry.Resolve(w.transforms, body.entity)
	if !id.IsValid() {
		// Outside of every map.
		body.partition = NoPartition
		return
	}

	p, err := w.registry.Get(id)
	if !w.check(err, "attach body", "entity", body.entity) {
		return
	}

	partitionXf, ok := w.partitionTransform(p)
	if !ok {
		w.check(errors.Wrapf(ErrStalePartition, "owner %v is dead", p.owner), "attach body", "entity", body.entity)
		return
	}

	body.partition = id
	localXf := w.localTransform(p, partitionXf, body)
	moves := w.maps[p.mapEntity].moves
	for _, fixture := range body.fixtures {
		fixture.createProxies(w, p, localXf, partitionXf, moves)
	}
}

// Destroy every proxy of body and forget its partition.
func (w *World) detachBody(body *Body) {
	if !body.partition.IsValid() {
		return
	}

	p, err := w.registry.Get(body.partition)
	if !w.check(err, "detach body", "entity", body.entity) {
		// The tree is gone; only the pending references remain.
		for _, fixture := range body.fixtures {
			fixture.destroyProxies(w, nil, nil)
		}
		body.partition = NoPartition
		return
	}

	ms := w.maps[p.mapEntity]
	for _, fixture := range body.fixtures {
		fixture.destroyProxies(w, p, ms)
	}
	body.partition = NoPartition
}

/// Read the entity transform of body and bring its proxies up to date. Moved
/// proxies are recorded in the move buffer of their map. If the entity now
/// belongs to another partition, the proxies are destroyed in the old one and
/// recreated in the new one.
func (w *World) SynchronizeBody(body *Body) {
	if !w.check(w.liveBody(body), "synchronize body") {
		return
	}

	xf, ok := w.transforms.WorldTransform(body.entity)
	if !ok {
		w.check(errors.Wrapf(ErrBodyDestroyed, "%v is not alive", body.entity), "synchronize body")
		return
	}

	moved := xf != body.xf
	body.xf = xf

	if moved {
		if p, ok := w.registry.ByOwner(body.entity); ok && p.kind == PartitionGrid {
			w.maps[p.mapEntity].markGridMoved(body.entity)
		}
	}

	if !body.IsEnabled() {
		return
	}

	id := w.registry.Resolve(w.transforms, body.entity)
	if id != body.partition {
		w.onPartitionChanged(body, body.partition, id)
		return
	}

	if !id.IsValid() {
		return
	}

	p, err := w.registry.Get(id)
	if !w.check(err, "synchronize body", "entity", body.entity) {
		return
	}

	partitionXf, ok := w.partitionTransform(p)
	if !ok {
		return
	}

	localXf := w.localTransform(p, partitionXf, body)
	moves := w.maps[p.mapEntity].moves
	for _, fixture := range body.fixtures {
		fixture.synchronize(p, localXf, partitionXf, moves)
	}
}

func (w *World) onPartitionChanged(body *Body, oldPartition, newPartition PartitionID) {
	w.logger.Debug("body changed partition", "entity", body.entity, "from", oldPartition, "to", newPartition)
	w.detachBody(body)
	w.attachBody(body)
}

///////////////////////////////////////////////////////////////////////////////
/// Fixtures
///////////////////////////////////////////////////////////////////////////////

func (w *World) createFixture(body *Body, def FixtureDef) (*Fixture, error) {
	if err := w.liveBody(body); err != nil {
		return nil, err
	}
	if def.Shape == nil {
		return nil, errors.Wrap(ErrInvalidFixture, "no shape")
	}
	if def.Shape.GetChildCount() < 1 {
		return nil, errors.Wrapf(ErrInvalidFixture, "%v shape has no children", def.Shape.GetType())
	}

	fixture := &Fixture{
		body:     body,
		shape:    def.Shape.Clone(),
		filter:   def.Filter,
		isSensor: def.IsSensor,
		userData: def.UserData,
	}
	body.fixtures = append(body.fixtures, fixture)

	if body.IsEnabled() && body.partition.IsValid() {
		p, err := w.registry.Get(body.partition)
		if !w.check(err, "create fixture", "entity", body.entity) {
			return fixture, nil
		}
		partitionXf, ok := w.partitionTransform(p)
		if ok {
			localXf := w.localTransform(p, partitionXf, body)
			fixture.createProxies(w, p, localXf, partitionXf, w.maps[p.mapEntity].moves)
		}
	}

	return fixture, nil
}

func (w *World) destroyFixture(fixture *Fixture) {
	body := fixture.body
	if !w.check(w.liveBody(body), "destroy fixture") {
		return
	}

	index := -1
	for i, f := range body.fixtures {
		if f == fixture {
			index = i
			break
		}
	}
	if index < 0 {
		w.check(errors.Wrap(ErrInvalidFixture, "fixture is not attached to its body"), "destroy fixture", "entity", body.entity)
		return
	}

	if len(fixture.proxies) > 0 {
		p, err := w.registry.Get(body.partition)
		if err != nil {
			fixture.destroyProxies(w, nil, nil)
		} else {
			fixture.destroyProxies(w, p, w.maps[p.mapEntity])
		}
	}

	body.fixtures = append(body.fixtures[:index], body.fixtures[index+1:]...)
	fixture.body = nil
}

///////////////////////////////////////////////////////////////////////////////
/// Proxies
///////////////////////////////////////////////////////////////////////////////

/// Record proxy in the move buffer of its map with its current AABB, so that
/// its pairs are examined on the next pass.
func (w *World) TouchProxy(proxy *FixtureProxy) {
	if proxy.ProxyID == NullNode {
		return
	}
	p, err := w.registry.Get(proxy.Partition)
	if !w.check(err, "touch proxy") {
		return
	}
	xf, ok := w.partitionTransform(p)
	if !ok {
		return
	}
	w.maps[p.mapEntity].moves.RecordMove(proxy, TransformAABB(xf, proxy.AABB))
}

/// World AABB of a proxy, from its exact partition-local AABB.
func (w *World) ProxyWorldAABB(proxy *FixtureProxy) (AABB, bool) {
	p, err := w.registry.Get(proxy.Partition)
	if err != nil {
		return AABB{}, false
	}
	xf, ok := w.partitionTransform(p)
	if !ok {
		return AABB{}, false
	}
	return TransformAABB(xf, proxy.AABB), true
}

/// World AABB of a proxy, from its fat AABB in the tree.
func (w *World) ProxyFatWorldAABB(proxy *FixtureProxy) (AABB, bool) {
	if proxy.ProxyID == NullNode {
		return AABB{}, false
	}
	p, err := w.registry.Get(proxy.Partition)
	if err != nil {
		return AABB{}, false
	}
	xf, ok := w.partitionTransform(p)
	if !ok {
		return AABB{}, false
	}
	return TransformAABB(xf, p.Tree.GetFatAABB(proxy.ProxyID)), true
}

/// Number of pending proxies in the move buffer of a map.
func (w *World) MoveBufferLen(mapEntity ecs.Entity) int {
	ms, ok := w.maps[mapEntity]
	if !ok {
		return 0
	}
	return ms.moves.Len()
}

/// Is proxy pending in the move buffer of its map?
func (w *World) IsProxyBuffered(proxy *FixtureProxy) bool {
	for _, ms := range w.maps {
		if ms.moves.Contains(proxy) {
			return true
		}
	}
	return false
}

///////////////////////////////////////////////////////////////////////////////
/// Pair discovery
///////////////////////////////////////////////////////////////////////////////

/// Find new candidate pairs of one map and hand them to the contact manager.
func (w *World) FindNewContacts(mapEntity ecs.Entity) error {
	ms, ok := w.maps[mapEntity]
	if !ok {
		return errors.Wrapf(ErrUnknownMap, "%v", mapEntity)
	}

	w.findPairs(ms)
	w.deliverPairs(ms)
	return nil
}

/// Find new candidate pairs of every map. Maps are processed on up to
/// Settings.Workers goroutines; pairs are handed to the contact manager from
/// the calling goroutine, map by map in creation order.
func (w *World) FindNewContactsParallel(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.settings.Workers)

	for _, mapEntity := range w.mapOrder {
		ms := w.maps[mapEntity]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.findPairs(ms)
			return nil
		})
	}

	err := g.Wait()

	for _, mapEntity := range w.mapOrder {
		w.deliverPairs(w.maps[mapEntity])
	}

	return err
}

func (w *World) deliverPairs(ms *mapState) {
	for _, pair := range ms.found {
		w.contacts.AddPair(pair.proxyA, pair.proxyB, pair.flags)
	}
	ms.found = ms.found[:0]
}

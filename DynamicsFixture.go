package broadphase

/// This holds contact filtering data.
type Filter struct {
	/// The collision category bits. Normally you would just set one bit.
	CategoryBits uint16

	/// The collision mask bits. This states the categories that this
	/// shape would accept for collision.
	MaskBits uint16

	/// Collision groups allow a certain group of objects to never collide (negative)
	/// or always collide (positive). Zero means no collision group. Non-zero group
	/// filtering always wins against the mask bits.
	GroupIndex int16
}

func MakeFilter() Filter {
	return Filter{
		CategoryBits: 0x0001,
		MaskBits:     0xFFFF,
		GroupIndex:   0,
	}
}

/// A fixture definition is used to create a fixture. You can reuse fixture
/// definitions safely.
type FixtureDef struct {
	/// The shape, this must be set. The shape will be cloned, so you
	/// can create the shape on the stack.
	Shape Shape

	/// Use this to store application specific fixture data.
	UserData interface{}

	/// A sensor shape collects contact information but never generates a collision
	/// response.
	IsSensor bool

	/// Contact filtering data.
	Filter Filter
}

/// The constructor sets the default fixture definition values.
func MakeFixtureDef(shape Shape) FixtureDef {
	return FixtureDef{
		Shape:  shape,
		Filter: MakeFilter(),
	}
}

/// This proxy is used internally to connect fixtures to the broad-phase.
/// One proxy exists per shape child while the fixture is collidable.
type FixtureProxy struct {
	/// Exact bounds in the local frame of Partition.
	AABB       AABB
	Fixture    *Fixture
	ChildIndex int

	/// Tree handle, NullNode while not registered.
	ProxyID   int
	Partition PartitionID

	// Creation sequence, used to order pairs.
	seq uint64
}

/// Creation sequence number. Unique within a World.
func (proxy *FixtureProxy) GetSeq() uint64 {
	return proxy.seq
}

func (proxy *FixtureProxy) GetBody() *Body {
	return proxy.Fixture.body
}

/// A fixture is used to attach a shape to a body for collision detection. A fixture
/// inherits its transform from its parent.
/// Fixtures are created via Body.CreateFixture.
/// @warning you cannot reuse fixtures.
type Fixture struct {
	body  *Body
	shape Shape

	proxies []*FixtureProxy

	filter   Filter
	isSensor bool

	userData interface{}
}

func (fix *Fixture) GetBody() *Body {
	return fix.body
}

/// Get the child shape. You can modify the child shape, however you should not change the
/// number of vertices because this will crash some collision caching mechanisms.
func (fix *Fixture) GetShape() Shape {
	return fix.shape
}

func (fix *Fixture) GetType() ShapeType {
	return fix.shape.GetType()
}

func (fix *Fixture) GetProxies() []*FixtureProxy {
	return fix.proxies
}

func (fix *Fixture) GetProxyCount() int {
	return len(fix.proxies)
}

func (fix *Fixture) GetUserData() interface{} {
	return fix.userData
}

func (fix *Fixture) SetUserData(data interface{}) {
	fix.userData = data
}

func (fix *Fixture) IsSensor() bool {
	return fix.isSensor
}

/// Hard fixtures take part in the collision response. Sensors are not hard.
func (fix *Fixture) IsHard() bool {
	return !fix.isSensor
}

/// Set if this fixture is a sensor. Proxies are touched so pairs are
/// re-examined on the next pass.
func (fix *Fixture) SetSensor(sensor bool) {
	if sensor == fix.isSensor {
		return
	}
	fix.isSensor = sensor
	if fix.body == nil {
		return
	}
	fix.body.SetAwake(true)
	fix.touchProxies()
}

func (fix *Fixture) GetFilterData() Filter {
	return fix.filter
}

/// Set the contact filtering data. This will not update contacts until the next time
/// step when either parent body is active and awake.
func (fix *Fixture) SetFilterData(filter Filter) {
	fix.filter = filter
	fix.Refilter()
}

/// Call this if you want to establish collision that was previously disabled by
/// ContactFilter.ShouldCollide.
func (fix *Fixture) Refilter() {
	if fix.body == nil || fix.body.IsDestroyed() {
		return
	}

	// Touch each proxy so that new pairs may be created
	fix.touchProxies()
}

func (fix *Fixture) touchProxies() {
	for _, proxy := range fix.proxies {
		fix.body.world.TouchProxy(proxy)
	}
}

/// Get the local AABB of a child, as registered in the owning partition.
func (fix *Fixture) GetAABB(childIndex int) AABB {
	Assert(0 <= childIndex && childIndex < len(fix.proxies))
	return fix.proxies[childIndex].AABB
}

// Create one proxy per child in partition. localXf places the body in the
// partition frame.
func (fix *Fixture) createProxies(w *World, partition *Partition, localXf Transform, partitionXf Transform, moves *MoveBuffer) {
	Assert(len(fix.proxies) == 0)

	childCount := fix.shape.GetChildCount()
	for i := 0; i < childCount; i++ {
		proxy := &FixtureProxy{
			Fixture:    fix,
			ChildIndex: i,
			Partition:  partition.id,
			seq:        w.nextProxySeq(),
		}
		fix.shape.ComputeAABB(&proxy.AABB, localXf, i)
		proxy.ProxyID = partition.Tree.CreateProxy(proxy.AABB, proxy)
		fix.proxies = append(fix.proxies, proxy)

		if moves != nil {
			moves.RecordMove(proxy, TransformAABB(partitionXf, proxy.AABB))
		}
	}
}

// Remove the proxies from their tree and purge every pending reference.
func (fix *Fixture) destroyProxies(w *World, partition *Partition, ms *mapState) {
	for _, proxy := range fix.proxies {
		w.contacts.DestroyContacts(proxy)
		if ms != nil {
			ms.forget(proxy)
		}
		if partition != nil && proxy.ProxyID != NullNode {
			partition.Tree.DestroyProxy(proxy.ProxyID)
		}
		proxy.ProxyID = NullNode
		proxy.Partition = NoPartition
	}
	fix.proxies = fix.proxies[:0]
}

// Reproject every proxy into the partition frame and move it in the tree.
// Proxies whose bounds changed are recorded.
func (fix *Fixture) synchronize(partition *Partition, localXf Transform, partitionXf Transform, moves *MoveBuffer) int {
	moved := 0
	for _, proxy := range fix.proxies {
		var aabb AABB
		fix.shape.ComputeAABB(&aabb, localXf, proxy.ChildIndex)
		if aabb == proxy.AABB {
			continue
		}

		displacement := aabb.GetCenter().Sub(proxy.AABB.GetCenter())
		proxy.AABB = aabb
		partition.Tree.MoveProxy(proxy.ProxyID, aabb, displacement)
		moves.RecordMove(proxy, TransformAABB(partitionXf, aabb))
		moved++
	}
	return moved
}

package broadphase

import (
	"github.com/charmbracelet/log"
)

/// The class manages contact between two shapes. A contact exists for each overlapping
/// AABB in the broad-phase. Therefore a contact object may exist
/// that has no contact points.
type Contact struct {
	ProxyA *FixtureProxy
	ProxyB *FixtureProxy
	Flags  PairFlags

	/// Warm start of the distance query.
	Cache SimplexCache

	/// Closest points in world coordinates, as of the last Collide.
	Distance float64
	PointA   Vec2
	PointB   Vec2

	touching  bool
	destroyed bool
}

func (c *Contact) GetFixtureA() *Fixture {
	return c.ProxyA.Fixture
}

func (c *Contact) GetFixtureB() *Fixture {
	return c.ProxyB.Fixture
}

/// Is this contact touching?
func (c *Contact) IsTouching() bool {
	return c.touching
}

/// Implement this class to get contact information.
type ContactListener interface {
	/// Called when two fixtures begin to touch.
	BeginContact(contact *Contact)

	/// Called when two fixtures cease to touch, or when a touching contact
	/// is destroyed.
	EndContact(contact *Contact)
}

type contactKey struct {
	a, b uint64
}

func makeContactKey(proxyA, proxyB *FixtureProxy) contactKey {
	if proxyB.seq < proxyA.seq {
		return contactKey{proxyB.seq, proxyA.seq}
	}
	return contactKey{proxyA.seq, proxyB.seq}
}

/// ContactSet is a ContactManager that keeps one Contact per proxy pair and
/// runs the distance query on them. Contacts are kept in creation order.
type ContactSet struct {
	logger   *log.Logger
	listener ContactListener

	contacts []*Contact
	byKey    map[contactKey]*Contact
	byProxy  map[*FixtureProxy][]*Contact
	dead     int
}

func NewContactSet(logger *log.Logger) *ContactSet {
	if logger == nil {
		logger = defaultLogger()
	}
	return &ContactSet{
		logger:  logger,
		byKey:   make(map[contactKey]*Contact),
		byProxy: make(map[*FixtureProxy][]*Contact),
	}
}

/// Register a contact listener. Pass nil to remove it.
func (set *ContactSet) SetContactListener(listener ContactListener) {
	set.listener = listener
}

func (set *ContactSet) AddPair(proxyA, proxyB *FixtureProxy, flags PairFlags) {
	key := makeContactKey(proxyA, proxyB)
	if c, ok := set.byKey[key]; ok {
		c.Flags |= flags
		return
	}

	if proxyB.seq < proxyA.seq {
		proxyA, proxyB = proxyB, proxyA
	}

	c := &Contact{
		ProxyA:   proxyA,
		ProxyB:   proxyB,
		Flags:    flags,
		Distance: MaxFloat,
	}
	set.contacts = append(set.contacts, c)
	set.byKey[key] = c
	set.byProxy[proxyA] = append(set.byProxy[proxyA], c)
	set.byProxy[proxyB] = append(set.byProxy[proxyB], c)

	set.logger.Debug("contact created", "a", proxyA.seq, "b", proxyB.seq, "flags", flags)
}

func (set *ContactSet) DestroyContacts(proxy *FixtureProxy) {
	contacts := append([]*Contact(nil), set.byProxy[proxy]...)
	for _, c := range contacts {
		set.destroy(c)
	}
}

func (set *ContactSet) destroy(c *Contact) {
	if c.destroyed {
		return
	}
	if c.touching && set.listener != nil {
		set.listener.EndContact(c)
	}
	c.destroyed = true
	c.touching = false
	set.dead++

	delete(set.byKey, makeContactKey(c.ProxyA, c.ProxyB))
	set.unlink(c.ProxyA, c)
	set.unlink(c.ProxyB, c)

	set.logger.Debug("contact destroyed", "a", c.ProxyA.seq, "b", c.ProxyB.seq)
}

func (set *ContactSet) unlink(proxy *FixtureProxy, c *Contact) {
	list := set.byProxy[proxy]
	for i, other := range list {
		if other == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(set.byProxy, proxy)
	} else {
		set.byProxy[proxy] = list
	}
}

func (set *ContactSet) compact() {
	if set.dead == 0 {
		return
	}
	live := set.contacts[:0]
	for _, c := range set.contacts {
		if !c.destroyed {
			live = append(live, c)
		}
	}
	clear(set.contacts[len(live):])
	set.contacts = live
	set.dead = 0
}

/// Number of live contacts.
func (set *ContactSet) Len() int {
	return len(set.byKey)
}

/// Live contacts in creation order. The slice is owned by the set.
func (set *ContactSet) Contacts() []*Contact {
	set.compact()
	return set.contacts
}

/// Find the contact of a proxy pair, in either order.
func (set *ContactSet) Find(proxyA, proxyB *FixtureProxy) (*Contact, bool) {
	c, ok := set.byKey[makeContactKey(proxyA, proxyB)]
	return c, ok
}

/// This is the top level collision call for the time step. Here
/// all the narrow phase collision is processed for the world
/// contact list.
func (set *ContactSet) Collide(engine *DistanceEngine, world *World) {
	set.compact()

	for _, c := range set.contacts {
		if c.destroyed {
			continue
		}

		fixtureA := c.ProxyA.Fixture
		fixtureB := c.ProxyB.Fixture
		bodyA := fixtureA.body
		bodyB := fixtureB.body

		if bodyA == nil || bodyB == nil {
			set.destroy(c)
			continue
		}

		activeA := bodyA.IsAwake() && bodyA.bodyType != StaticBody
		activeB := bodyB.IsAwake() && bodyB.bodyType != StaticBody

		// At least one body must be awake and it must be dynamic or kinematic.
		if !activeA && !activeB {
			continue
		}

		// Destroy contacts that cease to overlap in the broad-phase.
		aabbA, okA := world.ProxyFatWorldAABB(c.ProxyA)
		aabbB, okB := world.ProxyFatWorldAABB(c.ProxyB)
		if !okA || !okB || !aabbA.Overlaps(aabbB) {
			set.destroy(c)
			continue
		}

		set.update(engine, c)
	}
}

func (set *ContactSet) update(engine *DistanceEngine, c *Contact) {
	fixtureA := c.ProxyA.Fixture
	fixtureB := c.ProxyB.Fixture

	input := DistanceInput{
		ProxyA:     MakeDistanceProxy(fixtureA.shape, c.ProxyA.ChildIndex),
		ProxyB:     MakeDistanceProxy(fixtureB.shape, c.ProxyB.ChildIndex),
		TransformA: fixtureA.body.xf,
		TransformB: fixtureB.body.xf,
		UseRadii:   true,
	}

	var output DistanceOutput
	engine.Distance(&output, &c.Cache, &input)

	c.Distance = output.Distance
	c.PointA = output.PointA
	c.PointB = output.PointB

	wasTouching := c.touching
	c.touching = output.Distance < 10.0*Epsilon

	if set.listener == nil || wasTouching == c.touching {
		return
	}
	if c.touching {
		set.listener.BeginContact(c)
	} else {
		set.listener.EndContact(c)
	}
}

package broadphase

import (
	"github.com/mlange-42/ark/ecs"
)

/// The body type.
/// static: zero mass, zero velocity, may be manually moved
/// kinematic: zero mass, non-zero velocity set by user, moved by solver
/// dynamic: positive mass, non-zero velocity determined by forces, moved by solver
type BodyType uint8

const (
	StaticBody BodyType = iota
	KinematicBody
	DynamicBody
)

func (t BodyType) String() string {
	switch t {
	case KinematicBody:
		return "kinematic"
	case DynamicBody:
		return "dynamic"
	}
	return "static"
}

/// A body definition holds all the data needed to construct a body.
/// You can safely re-use body definitions. The body's transform is read
/// from its entity.
type BodyDef struct {
	/// The body type: static, kinematic, or dynamic.
	Type BodyType

	/// Is this body initially awake or sleeping?
	Awake bool

	/// Does this body start out enabled? Disabled bodies own no proxies.
	Enabled bool

	/// Use this to store application specific body data.
	UserData interface{}
}

/// This constructor sets the body definition default values.
func MakeBodyDef() BodyDef {
	return BodyDef{
		Type:    StaticBody,
		Awake:   true,
		Enabled: true,
	}
}

const (
	bodyAwakeFlag uint8 = 1 << iota
	bodyEnabledFlag
	bodyDestroyedFlag
)

/// A rigid body attached to an entity. Bodies are created via World.CreateBody.
type Body struct {
	world  *World
	entity ecs.Entity

	bodyType BodyType
	flags    uint8

	// World transform as of the last synchronization.
	xf Transform

	fixtures  []*Fixture
	partition PartitionID

	userData interface{}
}

func (body *Body) GetEntity() ecs.Entity {
	return body.entity
}

func (body *Body) GetWorld() *World {
	return body.world
}

func (body *Body) GetType() BodyType {
	return body.bodyType
}

/// Set the type of this body. This may alter the contacts the body takes part in.
func (body *Body) SetType(bodyType BodyType) {
	if body.bodyType == bodyType || body.IsDestroyed() {
		return
	}

	body.bodyType = bodyType
	if bodyType == StaticBody {
		body.flags &^= bodyAwakeFlag
	} else {
		body.SetAwake(true)
	}

	// Existing contacts may no longer be valid, and new pairs may now be possible.
	for _, fixture := range body.fixtures {
		for _, proxy := range fixture.proxies {
			body.world.contacts.DestroyContacts(proxy)
			body.world.TouchProxy(proxy)
		}
	}
}

/// Get the world transform captured by the last SynchronizeBody.
func (body *Body) GetTransform() Transform {
	return body.xf
}

/// Set the sleep state of the body. A sleeping body has very
/// low CPU cost. Static bodies never wake.
func (body *Body) SetAwake(flag bool) {
	if flag {
		if body.bodyType == StaticBody {
			return
		}
		body.flags |= bodyAwakeFlag
	} else {
		body.flags &^= bodyAwakeFlag
	}
}

func (body *Body) IsAwake() bool {
	return body.flags&bodyAwakeFlag != 0
}

func (body *Body) IsEnabled() bool {
	return body.flags&bodyEnabledFlag != 0
}

func (body *Body) IsDestroyed() bool {
	return body.flags&bodyDestroyedFlag != 0
}

/// Allow a body to be disabled. A disabled body is not simulated and cannot
/// be collided with: its proxies are destroyed and its contacts with them.
/// Enabling the body recreates the proxies in the partition that currently
/// owns the entity.
func (body *Body) SetEnabled(flag bool) {
	if flag == body.IsEnabled() || body.IsDestroyed() {
		return
	}

	if flag {
		body.flags |= bodyEnabledFlag
		body.world.attachBody(body)
	} else {
		body.world.detachBody(body)
		body.flags &^= bodyEnabledFlag
	}
}

/// The partition holding the proxies of this body. NoPartition while the
/// body is disabled or outside of every map.
func (body *Body) GetPartition() PartitionID {
	return body.partition
}

func (body *Body) GetFixtureList() []*Fixture {
	return body.fixtures
}

func (body *Body) GetUserData() interface{} {
	return body.userData
}

func (body *Body) SetUserData(data interface{}) {
	body.userData = data
}

/// Creates a fixture and attach it to this body. If the body is enabled and
/// inside a map, the fixture proxies are created and buffered.
func (body *Body) CreateFixture(def FixtureDef) (*Fixture, error) {
	return body.world.createFixture(body, def)
}

/// Destroy a fixture. This removes the fixture from the broad-phase and
/// destroys all contacts associated with this fixture.
func (body *Body) DestroyFixture(fixture *Fixture) {
	body.world.destroyFixture(fixture)
}

/// Should this body collide with other? At least one body should be dynamic.
func (body *Body) ShouldCollide(other *Body) bool {
	if body.bodyType != DynamicBody && other.bodyType != DynamicBody {
		return false
	}
	return true
}

package broadphase

import (
	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
)

/// Transform component: a pose relative to the parent entity.
type LocalTransform struct {
	Transform Transform
	Parent    ecs.Entity
}

/// EntityStore is a minimal entity system: ark entities carrying a local
/// transform and a parent. It implements EntityTransforms.
/// Mutations are not safe for concurrent use; reads are.
type EntityStore struct {
	world      ecs.World
	transforms *ecs.Map[LocalTransform]
}

func NewEntityStore() *EntityStore {
	store := &EntityStore{world: ecs.NewWorld()}
	store.transforms = ecs.NewMap[LocalTransform](&store.world)
	return store
}

func isRoot(entity ecs.Entity) bool {
	return entity == ecs.Entity{}
}

/// Create an entity placed at local in the frame of parent. Pass the zero
/// entity for a root.
func (s *EntityStore) NewEntity(parent ecs.Entity, local Transform) (ecs.Entity, error) {
	if !isRoot(parent) && !s.world.Alive(parent) {
		return ecs.Entity{}, errors.Wrapf(ErrDeadEntity, "parent %v", parent)
	}
	return s.transforms.NewEntity(&LocalTransform{Transform: local, Parent: parent}), nil
}

/// Remove an entity. Children are not removed; they become roots.
func (s *EntityStore) Remove(entity ecs.Entity) error {
	if !s.world.Alive(entity) {
		return errors.Wrapf(ErrDeadEntity, "%v", entity)
	}
	s.world.RemoveEntity(entity)
	return nil
}

func (s *EntityStore) Alive(entity ecs.Entity) bool {
	return !isRoot(entity) && s.world.Alive(entity)
}

func (s *EntityStore) GetLocalTransform(entity ecs.Entity) (Transform, bool) {
	if !s.Alive(entity) {
		return Transform{}, false
	}
	return s.transforms.Get(entity).Transform, true
}

func (s *EntityStore) SetLocalTransform(entity ecs.Entity, xf Transform) error {
	if !s.Alive(entity) {
		return errors.Wrapf(ErrDeadEntity, "%v", entity)
	}
	s.transforms.Get(entity).Transform = xf
	return nil
}

/// Move entity into parent, keeping its world pose.
func (s *EntityStore) SetParent(entity, parent ecs.Entity) error {
	if !s.Alive(entity) {
		return errors.Wrapf(ErrDeadEntity, "%v", entity)
	}
	if !isRoot(parent) && !s.Alive(parent) {
		return errors.Wrapf(ErrDeadEntity, "parent %v", parent)
	}

	worldXf, _ := s.WorldTransform(entity)
	local := worldXf
	if !isRoot(parent) {
		parentXf, _ := s.WorldTransform(parent)
		local = TransformMulT(parentXf, worldXf)
	}

	node := s.transforms.Get(entity)
	node.Parent = parent
	node.Transform = local
	return nil
}

func (s *EntityStore) Parent(entity ecs.Entity) (ecs.Entity, bool) {
	if !s.Alive(entity) {
		return ecs.Entity{}, false
	}
	parent := s.transforms.Get(entity).Parent
	if !s.Alive(parent) {
		return ecs.Entity{}, false
	}
	return parent, true
}

/// Compose local transforms up the parent chain.
func (s *EntityStore) WorldTransform(entity ecs.Entity) (Transform, bool) {
	if !s.Alive(entity) {
		return Transform{}, false
	}

	node := s.transforms.Get(entity)
	xf := node.Transform
	for parent := node.Parent; s.Alive(parent); parent = node.Parent {
		node = s.transforms.Get(parent)
		xf = TransformMul(node.Transform, xf)
	}
	return xf, true
}

package broadphase

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"github.com/pkg/errors"
)

type PartitionKind uint8

const (
	PartitionMap PartitionKind = iota
	PartitionGrid
)

func (k PartitionKind) String() string {
	if k == PartitionGrid {
		return "grid"
	}
	return "map"
}

/// Handle into the partition arena. A destroyed partition bumps the slot
/// generation, so handles held elsewhere go stale instead of dangling.
/// The zero value refers to no partition.
type PartitionID struct {
	index int32
	gen   uint32
}

var NoPartition = PartitionID{}

func (id PartitionID) IsValid() bool {
	return id.gen != 0
}

func (id PartitionID) String() string {
	if !id.IsValid() {
		return "partition(none)"
	}
	return fmt.Sprintf("partition(%d#%d)", id.index, id.gen)
}

/// A partition is one broad-phase: a dynamic tree whose proxies are expressed
/// in the local frame of the owning entity (the map itself or a movable grid).
type Partition struct {
	id        PartitionID
	kind      PartitionKind
	owner     ecs.Entity
	mapEntity ecs.Entity
	parent    PartitionID

	Tree *DynamicTree[*FixtureProxy]
}

func (p *Partition) GetID() PartitionID {
	return p.id
}

func (p *Partition) GetKind() PartitionKind {
	return p.kind
}

func (p *Partition) GetOwner() ecs.Entity {
	return p.owner
}

/// The map entity this partition belongs to. A map partition returns its owner.
func (p *Partition) GetMap() ecs.Entity {
	return p.mapEntity
}

/// The map partition of a grid partition, NoPartition for a map partition.
func (p *Partition) GetParent() PartitionID {
	return p.parent
}

func (p *Partition) GetProxyCount() int {
	return p.Tree.ProxyCount()
}

type partitionSlot struct {
	gen       uint32
	partition *Partition
}

/// PartitionRegistry owns every partition of a World.
type PartitionRegistry struct {
	slots   []partitionSlot
	free    []int32
	byOwner map[ecs.Entity]PartitionID

	extension  float64
	multiplier float64
}

func NewPartitionRegistry(settings Settings) *PartitionRegistry {
	return &PartitionRegistry{
		byOwner:    make(map[ecs.Entity]PartitionID),
		extension:  settings.AABBExtension,
		multiplier: settings.AABBMultiplier,
	}
}

func (r *PartitionRegistry) Create(owner ecs.Entity, kind PartitionKind, mapEntity ecs.Entity, parent PartitionID) (*Partition, error) {
	if existing, ok := r.byOwner[owner]; ok {
		return nil, errors.Wrapf(ErrDuplicatePartition, "%v owns %v", owner, existing)
	}

	var index int32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = int32(len(r.slots))
		r.slots = append(r.slots, partitionSlot{})
	}

	slot := &r.slots[index]
	slot.gen++
	if slot.gen == 0 {
		// wrapped; zero is reserved for NoPartition
		slot.gen = 1
	}

	p := &Partition{
		id:        PartitionID{index: index, gen: slot.gen},
		kind:      kind,
		owner:     owner,
		mapEntity: mapEntity,
		parent:    parent,
		Tree:      NewDynamicTree[*FixtureProxy](r.extension, r.multiplier),
	}
	slot.partition = p
	r.byOwner[owner] = p.id

	return p, nil
}

/// Destroy releases the slot. The caller removes the proxies first.
func (r *PartitionRegistry) Destroy(id PartitionID) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	Assert(p.Tree.ProxyCount() == 0)

	slot := &r.slots[id.index]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.partition = nil
	r.free = append(r.free, id.index)
	delete(r.byOwner, p.owner)

	return nil
}

func (r *PartitionRegistry) Get(id PartitionID) (*Partition, error) {
	if !id.IsValid() {
		return nil, ErrNoPartition
	}
	if int(id.index) >= len(r.slots) {
		return nil, errors.Wrapf(ErrStalePartition, "%v", id)
	}
	slot := &r.slots[id.index]
	if slot.gen != id.gen || slot.partition == nil {
		return nil, errors.Wrapf(ErrStalePartition, "%v", id)
	}
	return slot.partition, nil
}

func (r *PartitionRegistry) ByOwner(owner ecs.Entity) (*Partition, bool) {
	id, ok := r.byOwner[owner]
	if !ok {
		return nil, false
	}
	p, err := r.Get(id)
	return p, err == nil
}

/// Resolve walks the containment chain of entity, starting with the entity
/// itself, and returns the first partition owner found. Entities outside of
/// any map resolve to NoPartition.
func (r *PartitionRegistry) Resolve(transforms EntityTransforms, entity ecs.Entity) PartitionID {
	e := entity
	for {
		if id, ok := r.byOwner[e]; ok {
			return id
		}
		parent, ok := transforms.Parent(e)
		if !ok {
			return NoPartition
		}
		e = parent
	}
}

/// Number of live partitions.
func (r *PartitionRegistry) Len() int {
	return len(r.byOwner)
}

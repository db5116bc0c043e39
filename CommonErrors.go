package broadphase

import "github.com/pkg/errors"

var (
	ErrInvalidSettings     = errors.New("invalid settings")
	ErrUnknownMap          = errors.New("unknown map")
	ErrUnknownGrid         = errors.New("unknown grid")
	ErrNoPartition         = errors.New("entity has no owning partition")
	ErrStalePartition      = errors.New("partition handle is stale")
	ErrDuplicatePartition  = errors.New("entity already owns a partition")
	ErrBodyDestroyed       = errors.New("body destroyed")
	ErrDuplicateBody       = errors.New("entity already has a body")
	ErrInvalidFixture      = errors.New("invalid fixture")
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrDeadEntity          = errors.New("entity is not alive")
)

package storage_node

import (
	"context"
	"errors"
)

// StorageNode is a single remote chunk store. Every method is bounded by
// the node's own timeout in addition to ctx.
type StorageNode interface {
	Address() string
	Put(ctx context.Context, chunkKey string, data []byte) error
	Get(ctx context.Context, chunkKey string) ([]byte, error)
	Delete(ctx context.Context, chunkKey string) error
}

// HealthChecker is implemented by nodes that can be checked without
// touching any chunk.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Status classifies the result of one node call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Outcome is the per-node result of a fan-out call.
type Outcome struct {
	Node   string `json:"node"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Classify maps a node call error onto a Status. Anything that is not a
// not-found answer from the node counts as a transport error.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}

// NewOutcome builds the Outcome of a call against node.
func NewOutcome(node string, err error) Outcome {
	return Outcome{Node: node, Status: Classify(err), Err: err}
}

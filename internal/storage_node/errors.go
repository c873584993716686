package storage_node

import "errors"

var (
	// ErrNotFound means the node answered and does not hold the chunk.
	ErrNotFound = errors.New("chunk not found on node")
	// ErrTransport covers unreachable nodes, timeouts and unexpected answers.
	ErrTransport = errors.New("storage node transport error")
)

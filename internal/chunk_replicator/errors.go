package chunk_replicator

import "errors"

var ErrChunkNotFound = errors.New("chunk not available on any holder")

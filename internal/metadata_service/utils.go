package metadata_service

import (
	"fmt"
	"sort"
	"strings"
)

func ValidateNewFile(name string, size int64, chunkCount int) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: filename required", ErrInvalidFile)
	case size < 0:
		return fmt.Errorf("%w: negative size %d", ErrInvalidFile, size)
	case chunkCount < 0:
		return fmt.Errorf("%w: negative chunk count %d", ErrInvalidFile, chunkCount)
	}
	return nil
}

// ValidateChunks checks that every new order lies in 1..chunkCount and
// collides neither with the recorded orders nor with another new chunk.
func ValidateChunks(chunkCount int, recorded map[int]struct{}, chunks []ChunkRecord) error {
	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if c.Order < 1 || c.Order > chunkCount {
			return fmt.Errorf("%w: %d outside 1..%d", ErrInvalidChunkOrder, c.Order, chunkCount)
		}
		if _, dup := recorded[c.Order]; dup {
			return fmt.Errorf("%w: %d already recorded", ErrInvalidChunkOrder, c.Order)
		}
		if _, dup := seen[c.Order]; dup {
			return fmt.Errorf("%w: %d repeated", ErrInvalidChunkOrder, c.Order)
		}
		seen[c.Order] = struct{}{}
	}
	return nil
}

func SortChunks(chunks []ChunkRecord) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Order < chunks[j].Order })
}

// JoinHolders serializes holder addresses the way the original metadata
// service stored them.
func JoinHolders(holders []string) string {
	return strings.Join(holders, ",")
}

func SplitHolders(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CloneChunk copies a record so callers cannot alias registry state.
func CloneChunk(c ChunkRecord) ChunkRecord {
	c.Holders = append([]string{}, c.Holders...)
	return c
}

func (f *File) Clone() *File {
	out := *f
	if f.Chunks != nil {
		out.Chunks = make([]ChunkRecord, len(f.Chunks))
		for i, c := range f.Chunks {
			out.Chunks[i] = CloneChunk(c)
		}
	}
	return &out
}

// Complete reports whether every chunk of the file has been recorded.
func (f *File) Complete() bool {
	return len(f.Chunks) == f.ChunkCount
}

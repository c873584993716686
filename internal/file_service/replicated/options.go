package replicated

import (
	"fmt"

	"github.com/AnishMulay/ravenfs/internal/chunker"
)

// KeyScheme selects how chunk storage keys are derived.
type KeyScheme string

const (
	// KeySchemeName keys chunks as <name>_chunk<order>, the layout existing
	// storage nodes hold. Two files with the same name share keys.
	KeySchemeName KeyScheme = "name"
	// KeySchemeUnique keys chunks as <upload id>_chunk<order> and records
	// the key with the chunk.
	KeySchemeUnique KeyScheme = "unique"
)

type Options struct {
	ChunkSize int
	KeyScheme KeyScheme
	// VerifyDigests discards retrieved payloads whose SHA-256 differs from
	// the recorded chunk digest.
	VerifyDigests bool
	// WriteQuorum, when positive, fails an upload whose chunks reach fewer
	// holders. Zero accepts any number of holders.
	WriteQuorum int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:     chunker.DefaultChunkSize,
		KeyScheme:     KeySchemeName,
		VerifyDigests: true,
	}
}

func (o Options) validate() error {
	if o.ChunkSize <= 0 {
		return chunker.ErrInvalidChunkSize
	}
	switch o.KeyScheme {
	case KeySchemeName, KeySchemeUnique:
	default:
		return fmt.Errorf("unknown key scheme %q", o.KeyScheme)
	}
	if o.WriteQuorum < 0 {
		return fmt.Errorf("negative write quorum %d", o.WriteQuorum)
	}
	return nil
}

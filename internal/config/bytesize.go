package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize accepts plain byte counts or humanized sizes such as "4MiB".
type ByteSize uint64

func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.UnmarshalText([]byte(value.Value))
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (b ByteSize) Int() int {
	return int(b)
}

package metadata_service

import (
	"errors"
	"testing"
)

func TestValidateChunks(t *testing.T) {
	tests := []struct {
		name       string
		chunkCount int
		recorded   []int
		orders     []int
		wantErr    bool
	}{
		{name: "full set", chunkCount: 3, orders: []int{3, 1, 2}},
		{name: "partial then rest", chunkCount: 3, recorded: []int{1}, orders: []int{2, 3}},
		{name: "zero order", chunkCount: 3, orders: []int{0}, wantErr: true},
		{name: "beyond count", chunkCount: 3, orders: []int{4}, wantErr: true},
		{name: "duplicate in batch", chunkCount: 3, orders: []int{1, 1}, wantErr: true},
		{name: "duplicate of recorded", chunkCount: 3, recorded: []int{2}, orders: []int{2}, wantErr: true},
		{name: "empty batch", chunkCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorded := make(map[int]struct{})
			for _, o := range tt.recorded {
				recorded[o] = struct{}{}
			}
			chunks := make([]ChunkRecord, len(tt.orders))
			for i, o := range tt.orders {
				chunks[i] = ChunkRecord{Order: o}
			}

			err := ValidateChunks(tt.chunkCount, recorded, chunks)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateChunks() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidChunkOrder) {
				t.Errorf("ValidateChunks() error = %v, want ErrInvalidChunkOrder", err)
			}
		})
	}
}

func TestHolders(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"n1:9000", []string{"n1:9000"}},
		{"n1:9000,n2:9000", []string{"n1:9000", "n2:9000"}},
		{"n1:9000, n2:9000,", []string{"n1:9000", "n2:9000"}},
	}
	for _, tt := range tests {
		got := SplitHolders(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("SplitHolders(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitHolders(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}

	if s := JoinHolders([]string{"a:1", "b:2"}); s != "a:1,b:2" {
		t.Errorf("JoinHolders() = %q", s)
	}
}

func TestFileClone(t *testing.T) {
	f := &File{ID: "1", ChunkCount: 1, Chunks: []ChunkRecord{{Order: 1, Holders: []string{"a"}}}}
	c := f.Clone()
	c.Chunks[0].Holders[0] = "b"
	if f.Chunks[0].Holders[0] != "a" {
		t.Errorf("Clone() shares holder slice with original")
	}
	if !f.Complete() {
		t.Errorf("Complete() = false for a full chunk set")
	}
}

// Package testutil provides in-memory storage nodes with fault injection
// for coordinator and assembler tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnishMulay/ravenfs/internal/storage_node"
)

// MemNode is an in-memory storage_node.StorageNode.
type MemNode struct {
	addr string

	mu      sync.Mutex
	chunks    map[string][]byte
	down      bool
	delay     time.Duration
	keyDelays map[string]time.Duration
	corrupt   bool
	served    []string

	Puts    atomic.Int32
	Gets    atomic.Int32
	Deletes atomic.Int32
}

func NewMemNode(addr string) *MemNode {
	return &MemNode{addr: addr, chunks: make(map[string][]byte), keyDelays: make(map[string]time.Duration)}
}

// NewMemNodes builds n nodes named node-1..node-n.
func NewMemNodes(n int) []*MemNode {
	nodes := make([]*MemNode, n)
	for i := range nodes {
		nodes[i] = NewMemNode(fmt.Sprintf("node-%d", i+1))
	}
	return nodes
}

// AsStorageNodes converts to the interface slice the coordinators take.
func AsStorageNodes(nodes []*MemNode) []storage_node.StorageNode {
	out := make([]storage_node.StorageNode, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

func (n *MemNode) Address() string { return n.addr }

// SetDown makes every call fail with a transport error.
func (n *MemNode) SetDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

// SetDelay delays every call, honouring ctx cancellation.
func (n *MemNode) SetDelay(d time.Duration) {
	n.mu.Lock()
	n.delay = d
	n.mu.Unlock()
}

// SetKeyDelay delays calls for one chunk key on top of SetDelay.
func (n *MemNode) SetKeyDelay(key string, d time.Duration) {
	n.mu.Lock()
	n.keyDelays[key] = d
	n.mu.Unlock()
}

// Served lists the keys of successful Gets in completion order.
func (n *MemNode) Served() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.served...)
}

// SetCorrupt flips the first byte of every payload returned by Get.
func (n *MemNode) SetCorrupt(corrupt bool) {
	n.mu.Lock()
	n.corrupt = corrupt
	n.mu.Unlock()
}

func (n *MemNode) Has(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.chunks[key]
	return ok
}

func (n *MemNode) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.chunks)
}

// Drop removes a chunk behind the gateway's back.
func (n *MemNode) Drop(key string) {
	n.mu.Lock()
	delete(n.chunks, key)
	n.mu.Unlock()
}

func (n *MemNode) wait(ctx context.Context, key string) error {
	n.mu.Lock()
	down, delay := n.down, n.delay+n.keyDelays[key]
	n.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", storage_node.ErrTransport, ctx.Err())
		case <-t.C:
		}
	}
	if down {
		return fmt.Errorf("%w: %s unreachable", storage_node.ErrTransport, n.addr)
	}
	return nil
}

func (n *MemNode) Put(ctx context.Context, key string, data []byte) error {
	n.Puts.Add(1)
	if err := n.wait(ctx, key); err != nil {
		return err
	}
	n.mu.Lock()
	n.chunks[key] = append([]byte(nil), data...)
	n.mu.Unlock()
	return nil
}

func (n *MemNode) Get(ctx context.Context, key string) ([]byte, error) {
	n.Gets.Add(1)
	if err := n.wait(ctx, key); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	data, ok := n.chunks[key]
	if !ok {
		return nil, storage_node.ErrNotFound
	}
	out := append([]byte(nil), data...)
	if n.corrupt && len(out) > 0 {
		out[0] ^= 0xff
	}
	n.served = append(n.served, key)
	return out, nil
}

func (n *MemNode) Delete(ctx context.Context, key string) error {
	n.Deletes.Add(1)
	if err := n.wait(ctx, key); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.chunks[key]; !ok {
		return storage_node.ErrNotFound
	}
	delete(n.chunks, key)
	return nil
}

func (n *MemNode) Health(ctx context.Context) error {
	return n.wait(ctx, "")
}

var (
	_ storage_node.StorageNode   = (*MemNode)(nil)
	_ storage_node.HealthChecker = (*MemNode)(nil)
)

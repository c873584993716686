package storage_node

import "sync"

// Factory builds a client for a node address.
type Factory func(address string) StorageNode

// Pool is the configured, ordered set of storage nodes. It also resolves
// holder addresses recorded in metadata back to clients, creating one on
// demand for nodes that have since left the configuration.
type Pool struct {
	nodes   []StorageNode
	factory Factory

	mu    sync.RWMutex
	byAdr map[string]StorageNode
}

func NewPool(addresses []string, factory Factory) *Pool {
	p := &Pool{
		nodes:   make([]StorageNode, 0, len(addresses)),
		factory: factory,
		byAdr:   make(map[string]StorageNode, len(addresses)),
	}
	for _, addr := range addresses {
		if _, dup := p.byAdr[addr]; dup {
			continue
		}
		n := factory(addr)
		p.nodes = append(p.nodes, n)
		p.byAdr[addr] = n
	}
	return p
}

// NewPoolFromNodes wraps already built clients. Unknown addresses passed to
// Resolve are skipped.
func NewPoolFromNodes(nodes ...StorageNode) *Pool {
	p := &Pool{byAdr: make(map[string]StorageNode, len(nodes))}
	for _, n := range nodes {
		p.nodes = append(p.nodes, n)
		p.byAdr[n.Address()] = n
	}
	return p
}

// All returns the configured nodes in configuration order.
func (p *Pool) All() []StorageNode {
	out := make([]StorageNode, len(p.nodes))
	copy(out, p.nodes)
	return out
}

func (p *Pool) Addresses() []string {
	out := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.Address()
	}
	return out
}

func (p *Pool) Len() int {
	return len(p.nodes)
}

// Resolve maps holder addresses to clients, preserving order and dropping
// duplicates.
func (p *Pool) Resolve(addresses []string) []StorageNode {
	out := make([]StorageNode, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if _, ok := seen[addr]; ok || addr == "" {
			continue
		}
		seen[addr] = struct{}{}
		if n := p.lookup(addr); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *Pool) lookup(addr string) StorageNode {
	p.mu.RLock()
	n, ok := p.byAdr[addr]
	p.mu.RUnlock()
	if ok || p.factory == nil {
		return n
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok = p.byAdr[addr]; ok {
		return n
	}
	n = p.factory(addr)
	p.byAdr[addr] = n
	return n
}

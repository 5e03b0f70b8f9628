package sandbox

import (
	"errors"
	"sync"
)

// ErrNoAvailablePorts is returned when the allocator's range is exhausted.
var ErrNoAvailablePorts = errors.New("no available host ports")

// PortAllocator hands out host ports from a fixed inclusive range. Safe for
// concurrent use.
type PortAllocator struct {
	mu     sync.Mutex
	start  int
	end    int
	inUse  map[int]bool
	cursor int
}

// NewPortAllocator returns an allocator over [start, end].
func NewPortAllocator(start, end int) *PortAllocator {
	return &PortAllocator{start: start, end: end, inUse: map[int]bool{}, cursor: start}
}

// Acquire returns the next free port in the range, or ErrNoAvailablePorts.
func (p *PortAllocator) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i <= p.end-p.start; i++ {
		candidate := p.start + (p.cursor-p.start+i)%(p.end-p.start+1)
		if !p.inUse[candidate] {
			p.inUse[candidate] = true
			p.cursor = candidate + 1
			return candidate, nil
		}
	}
	return 0, ErrNoAvailablePorts
}

// Release frees port. Idempotent: releasing an unheld or out-of-range port
// is a no-op.
func (p *PortAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}

// Reserve marks port as in-use without returning it from Acquire, used to
// recover ports bound to a container discovered already running. Ports
// outside the configured range are ignored.
func (p *PortAllocator) Reserve(port int) {
	if port < p.start || port > p.end {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse[port] = true
}

// InUse reports how many ports are currently allocated.
func (p *PortAllocator) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// pattern: Functional Core

package ports

import (
	"fmt"
	"hash/fnv"
)

// Allocator hands out ports for workspaces within a fixed range.
// The primary assignment is a hash of the workspace name, so the same
// workspace lands on the same port across runs.
type Allocator struct {
	minPort int
	maxPort int
}

// NewAllocator creates an allocator over the inclusive port range.
func NewAllocator(minPort, maxPort int) *Allocator {
	return &Allocator{minPort: minPort, maxPort: maxPort}
}

// Allocate returns the deterministic port for the given workspace name.
func (a *Allocator) Allocate(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))

	portRange := uint32(a.maxPort - a.minPort + 1)
	return a.minPort + int(h.Sum32()%portRange)
}

// AllocateFree returns a bindable port for the workspace, preferring the
// deterministic assignment, then hashed alternates, then a linear scan.
// usedPorts lets the caller exclude ports it has promised elsewhere even
// if nothing is bound to them yet.
func (a *Allocator) AllocateFree(name string, usedPorts map[int]bool) (int, error) {
	primary := a.Allocate(name)
	if !usedPorts[primary] && IsAvailable(primary) {
		return primary, nil
	}

	for i := 1; i <= 100; i++ {
		alt := a.Allocate(fmt.Sprintf("%s-%d", name, i))
		if !usedPorts[alt] && IsAvailable(alt) {
			return alt, nil
		}
	}

	for port := a.minPort; port <= a.maxPort; port++ {
		if !usedPorts[port] && IsAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports in range %d-%d", a.minPort, a.maxPort)
}

// Range returns the allocator's inclusive port range.
func (a *Allocator) Range() (int, int) {
	return a.minPort, a.maxPort
}

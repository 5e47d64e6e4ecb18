package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/lexcache/internal/ir"
)

// DefaultMaxLoadDepth bounds how deeply handler loads may nest through
// Env.Get before the engine gives up.
const DefaultMaxLoadDepth = 256

type slotKey struct {
	entity ir.EntityRef
	tag    ir.Tag
	sub    ir.SubKey
}

// LoadGuard tracks slots whose load is in progress.
//
// A handler that reads another property through Env.Get nests a load. Two
// failure modes are caught here:
//   - Cycle: the same (entity, tag, subKey) is entered while already active
//     (A.x needs B.y needs A.x).
//   - Depth: the nesting exceeds maxDepth without repeating a slot
//     (A -> B -> C -> ... -> Z).
//
// Together they guarantee a Get terminates.
type LoadGuard struct {
	mu       sync.Mutex
	active   map[slotKey]bool
	depth    int
	maxDepth int
}

// NewLoadGuard creates a guard. maxDepth <= 0 selects DefaultMaxLoadDepth.
func NewLoadGuard(maxDepth int) *LoadGuard {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxLoadDepth
	}
	return &LoadGuard{
		active:   make(map[slotKey]bool),
		maxDepth: maxDepth,
	}
}

// Enter marks k active. It fails if k is already active or the nesting
// limit is reached; on failure nothing is recorded and Leave must not be
// called.
func (g *LoadGuard) Enter(k slotKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[k] {
		return fmt.Errorf("slot (%s, %d, %q) is already loading", k.entity, k.tag, k.sub)
	}
	if g.depth >= g.maxDepth {
		return fmt.Errorf("load nesting exceeded %d", g.maxDepth)
	}
	g.active[k] = true
	g.depth++
	return nil
}

// Leave marks k inactive.
func (g *LoadGuard) Leave(k slotKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[k] {
		delete(g.active, k)
		g.depth--
	}
}

// Depth returns the current nesting depth.
func (g *LoadGuard) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth
}

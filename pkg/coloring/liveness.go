// Package coloring implements the memory coloring pass: liveness
// analysis over the linearized program, an interference graph over
// allocation instructions, a two-phase greedy coloring, and a rewrite
// that folds every allocation into one shared scratch buffer.
package coloring

import (
	"sort"

	"github.com/calderml/calder/pkg/ir"
)

// InsSet represents a set of instruction handles.
type InsSet map[ir.Ins]bool

// NewInsSet creates a new empty instruction set.
func NewInsSet() InsSet {
	return make(InsSet)
}

// Add adds a handle to the set.
func (s InsSet) Add(h ir.Ins) {
	s[h] = true
}

// Contains returns true if the handle is in the set.
func (s InsSet) Contains(h ir.Ins) bool {
	return s[h]
}

// Remove removes a handle from the set.
func (s InsSet) Remove(h ir.Ins) {
	delete(s, h)
}

// Copy returns a copy of the set.
func (s InsSet) Copy() InsSet {
	result := NewInsSet()
	for h := range s {
		result[h] = true
	}
	return result
}

// Sorted returns the handles in ascending order, for deterministic
// iteration.
func (s InsSet) Sorted() []ir.Ins {
	result := make([]ir.Ins, 0, len(s))
	for h := range s {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Liveness walks the program in reverse order and calls f once for
// each instruction that ends a live range, passing the set of values
// live at that point. Inputs are alias-resolved before insertion, so a
// view never starts a live range of its own; the underlying producer
// does. Instructions never found live are dead code and are not
// emitted. f must not retain the set without copying it.
func Liveness(p *ir.Program, f func(ins ir.Ins, live InsSet)) {
	live := NewInsSet()
	instrs := p.Instructions()
	for i := len(instrs) - 1; i >= 0; i-- {
		ins := instrs[i]
		for _, in := range p.Inputs(ins) {
			live.Add(p.OutputAlias(in))
		}
		// Walking backward, the first sighting of ins in the live set
		// is its last forward use: emit there, then retire it.
		if live.Contains(ins) {
			f(ins, live)
			live.Remove(ins)
		}
	}
}

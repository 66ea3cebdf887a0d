package coloring

import (
	"fmt"

	"github.com/calderml/calder/pkg/ir"
)

// DefaultAlignment is the byte boundary color offsets are placed at.
const DefaultAlignment = 32

// ScratchName is the name of the shared buffer parameter the pass
// appends to the program.
const ScratchName = "scratch"

// MemoryColoring rewrites a program so that every allocation shares a
// single contiguous scratch buffer, with non-overlapping offsets for
// any two allocations whose live ranges overlap.
type MemoryColoring struct {
	// AllocationOp is the operator name identifying allocation nodes.
	AllocationOp string
	// Alignment is the offset alignment in bytes; zero means
	// DefaultAlignment.
	Alignment int64
}

// Apply runs the pass. The analysis phases are read-only; the graph is
// mutated only after the coloring has been checked, so a malformed
// input never leaves the program partially rewritten. Invariant
// violations inside the pass itself panic: they are bugs, not
// recoverable errors.
func (mc MemoryColoring) Apply(p *ir.Program) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("memory coloring: %w", err)
	}
	align := mc.Alignment
	if align <= 0 {
		align = DefaultAlignment
	}

	g := BuildInterference(p, mc.AllocationOp)
	ac := buildColoring(p, g)
	checkColoring(g, ac)

	// Layout: each color class gets a slot sized to its largest member,
	// padded to the alignment boundary. Empty color indices contribute
	// nothing.
	offsets := make(map[int]int64)
	var total int64
	for _, c := range ac.sortedColors() {
		offsets[c] = total
		total += alignUp(ac.maxBytes(p, c), align)
	}

	// Replace every allocation with a typed load from scratch at its
	// class offset. Program order is preserved; only node identities
	// are rewritten.
	scratch := p.AddParameter(ScratchName, ir.MakeShape(ir.Int8, total))
	for _, c := range ac.sortedColors() {
		for _, ins := range ac.color2ins[c].Sorted() {
			if p.Name(ins) != mc.AllocationOp {
				panic(fmt.Sprintf("memory coloring: colored non-allocation %%%d", ins))
			}
			p.ReplaceInstruction(ins, ir.Load{Offset: offsets[c]}, p.Shape(ins), scratch)
		}
	}
	return nil
}

// checkColoring asserts the terminal invariants of the assigner: every
// allocation colored, no interfering pair sharing a color.
func checkColoring(g *Interference, ac *allocColoring) {
	for _, a := range g.Allocations() {
		c := ac.colorOf(a)
		if c < 0 {
			panic(fmt.Sprintf("memory coloring: allocation %%%d left uncolored", a))
		}
		for b := range g.Edges[a] {
			if ac.colorOf(b) == c {
				panic(fmt.Sprintf("memory coloring: interfering allocations %%%d and %%%d share color %d", a, b, c))
			}
		}
	}
}

func alignUp(n, align int64) int64 {
	return n + (align-n%align)%align
}

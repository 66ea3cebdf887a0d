package coloring

import (
	"sort"

	"github.com/calderml/calder/pkg/ir"
)

// Interference is the conflict table over allocation instructions: an
// undirected graph whose edges connect allocations with overlapping
// live ranges. Every allocation that appears live anywhere is present
// as a key, possibly with an empty adjacency set.
type Interference struct {
	Edges map[ir.Ins]InsSet
}

// BuildInterference runs liveness analysis and accumulates the
// conflict table. Only instructions whose operator name equals allocOp
// participate; other live values need no scratch and are ignored.
func BuildInterference(p *ir.Program, allocOp string) *Interference {
	g := &Interference{Edges: make(map[ir.Ins]InsSet)}
	// Seed every allocation node up front. A dead allocation is never
	// emitted by the liveness walk but still needs a color and an
	// offset; it simply ends up with an empty adjacency set.
	for _, ins := range p.Instructions() {
		if p.Name(ins) == allocOp {
			g.ensure(ins)
		}
	}
	Liveness(p, func(_ ir.Ins, live InsSet) {
		for a := range live {
			if p.Name(a) != allocOp {
				continue
			}
			g.ensure(a)
			for b := range live {
				if b == a || p.Name(b) != allocOp {
					continue
				}
				g.ensure(b)
				g.Edges[a].Add(b)
				g.Edges[b].Add(a)
			}
		}
	})
	return g
}

func (g *Interference) ensure(a ir.Ins) {
	if g.Edges[a] == nil {
		g.Edges[a] = NewInsSet()
	}
}

// Degree returns the number of allocations interfering with a.
func (g *Interference) Degree(a ir.Ins) int {
	return len(g.Edges[a])
}

// HasEdge returns true if a and b interfere.
func (g *Interference) HasEdge(a, b ir.Ins) bool {
	return g.Edges[a].Contains(b)
}

// Allocations returns every allocation in the table, sorted by handle.
func (g *Interference) Allocations() []ir.Ins {
	result := make([]ir.Ins, 0, len(g.Edges))
	for a := range g.Edges {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

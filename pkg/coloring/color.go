package coloring

import (
	"sort"

	"github.com/calderml/calder/pkg/ir"
)

// allocColoring is the bidirectional coloring state: each allocation
// maps to a non-negative color, and each color to its class of
// allocations. A missing entry means uncolored (reported as -1).
type allocColoring struct {
	ins2color map[ir.Ins]int
	color2ins map[int]InsSet
}

func newAllocColoring() *allocColoring {
	return &allocColoring{
		ins2color: make(map[ir.Ins]int),
		color2ins: make(map[int]InsSet),
	}
}

// colors returns max assigned color + 1, not the count of occupied
// colors; the domain may be sparsely populated while compaction runs.
func (ac *allocColoring) colors() int {
	max := -1
	for c := range ac.color2ins {
		if c > max {
			max = c
		}
	}
	return max + 1
}

// count returns how many allocations currently hold the color.
func (ac *allocColoring) count(color int) int {
	return len(ac.color2ins[color])
}

// colorOf returns the color of an allocation, or -1 if uncolored.
func (ac *allocColoring) colorOf(ins ir.Ins) int {
	if c, ok := ac.ins2color[ins]; ok {
		return c
	}
	return -1
}

// assign sets the color of an allocation, moving it out of any class
// it previously occupied. Colors must be non-negative.
func (ac *allocColoring) assign(ins ir.Ins, color int) {
	if color < 0 {
		panic("coloring: negative color")
	}
	ac.remove(ins)
	ac.ins2color[ins] = color
	if ac.color2ins[color] == nil {
		ac.color2ins[color] = NewInsSet()
	}
	ac.color2ins[color].Add(ins)
}

func (ac *allocColoring) remove(ins ir.Ins) {
	c, ok := ac.ins2color[ins]
	if !ok {
		return
	}
	ac.color2ins[c].Remove(ins)
	if len(ac.color2ins[c]) == 0 {
		delete(ac.color2ins, c)
	}
	delete(ac.ins2color, ins)
}

// maxBytes returns the byte size of the largest allocation holding the
// color; the scratch slot for the color is sized to this.
func (ac *allocColoring) maxBytes(p *ir.Program, color int) int64 {
	var max int64
	for ins := range ac.color2ins[color] {
		if b := p.Shape(ins).Bytes(); b > max {
			max = b
		}
	}
	return max
}

// sortedColors returns the occupied colors in ascending order.
func (ac *allocColoring) sortedColors() []int {
	out := make([]int, 0, len(ac.color2ins))
	for c := range ac.color2ins {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// nextColor returns the smallest non-negative integer not in used and
// inserts it. This is the sole source of new colors, which keeps the
// color domain compact.
func nextColor(used map[int]bool) int {
	n := 0
	for used[n] {
		n++
	}
	used[n] = true
	return n
}

// buildColoring assigns a color to every allocation in the conflict
// table so that no interfering pair shares one. It runs in two phases:
// a greedy assignment over allocations ordered least-constrained first,
// then a compaction sweep that migrates allocations into larger
// already-occupied slots to shrink the palette.
func buildColoring(p *ir.Program, g *Interference) *allocColoring {
	ac := newAllocColoring()

	bytes := func(ins ir.Ins) int64 { return p.Shape(ins).Bytes() }

	// Process the least-constrained allocations first, smaller ones on
	// ties; large high-degree allocations then land after their
	// neighbors' colors are fixed, which improves reuse in compaction.
	// Handles break remaining ties so the result is deterministic.
	queue := g.Allocations()
	sort.Slice(queue, func(i, j int) bool {
		x, y := queue[i], queue[j]
		if g.Degree(x) != g.Degree(y) {
			return g.Degree(x) < g.Degree(y)
		}
		if bytes(x) != bytes(y) {
			return bytes(x) < bytes(y)
		}
		return x < y
	})

	// The current allocation is the parent, its neighbors the children.
	children := func(parent ir.Ins) []ir.Ins {
		ch := g.Edges[parent].Sorted()
		sort.SliceStable(ch, func(i, j int) bool { return bytes(ch[i]) < bytes(ch[j]) })
		return ch
	}

	// Phase A: assign.
	for _, parent := range queue {
		ch := children(parent)
		used := make(map[int]bool)
		for _, c := range ch {
			if col := ac.colorOf(c); col >= 0 {
				used[col] = true
			}
		}
		parentColor := ac.colorOf(parent)
		if parentColor < 0 || used[parentColor] {
			ac.assign(parent, nextColor(used))
		} else {
			used[parentColor] = true
		}
		for _, c := range ch {
			if ac.colorOf(c) < 0 {
				ac.assign(c, nextColor(used))
			}
		}
	}

	// Phase B: compact. Try to migrate each parent into a different
	// occupied class, smallest-capacity candidates first. A move is
	// taken when the slot already fits the parent, or when it collapses
	// a singleton class on either side.
	for _, parent := range queue {
		used := make(map[int]bool)
		for c := range g.Edges[parent] {
			used[ac.colorOf(c)] = true
		}
		parentColor := ac.colorOf(parent)
		used[parentColor] = true

		var candidates []int
		for c := nextColor(used); c < ac.colors(); c = nextColor(used) {
			if ac.count(c) > 0 {
				candidates = append(candidates, c)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			bi, bj := ac.maxBytes(p, candidates[i]), ac.maxBytes(p, candidates[j])
			if bi != bj {
				return bi < bj
			}
			return candidates[i] < candidates[j]
		})

		for _, c := range candidates {
			if ac.maxBytes(p, c) >= bytes(parent) || ac.count(parentColor) == 1 || ac.count(c) == 1 {
				ac.assign(parent, c)
				break
			}
		}
	}

	return ac
}

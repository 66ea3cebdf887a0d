// Package simplify collapses chains of reshaping operators. A chain
// like reshape → identity → reshape that ends up back at an earlier
// instruction's shape is redirected to that instruction, leaving the
// intermediate views dead. Running this before memory coloring keeps
// alias chains short.
package simplify

import (
	"github.com/calderml/calder/pkg/ir"
)

// transpose is not included: shapes carry no layout information, so a
// permuted result can look identical to its source.
var reshapers = map[string]bool{
	"reshape":    true,
	"contiguous": true,
	"identity":   true,
}

// IsReshaper reports whether the operator name is a pure reshaping op.
func IsReshaper(name string) bool {
	return reshapers[name]
}

// Apply rewrites the program in place. Only single-consumer chain
// tails are considered; the chain is walked producer-ward through each
// reshaper's first input. Starting at the tail, the first link whose
// shape some other chain member also carries has all its uses
// redirected to the earliest such member; at most one link is
// redirected per tail.
func Apply(p *ir.Program) {
	for _, ins := range p.Instructions() {
		if !IsReshaper(p.Name(ins)) {
			continue
		}
		if len(p.Outputs(ins)) != 1 {
			continue
		}
		// Only handle the tail of a chain; inner links get folded when
		// the tail is processed.
		if IsReshaper(p.Name(p.Outputs(ins)[0])) {
			continue
		}

		// Gather the chain, ending with the first non-reshaper ancestor.
		chain := []ir.Ins{ins}
		for IsReshaper(p.Name(chain[len(chain)-1])) {
			back := chain[len(chain)-1]
			if len(p.Inputs(back)) == 0 {
				break
			}
			chain = append(chain, p.Inputs(back)[0])
		}

		start, repl := ir.InvalidIns, ir.InvalidIns
	search:
		for _, s := range chain {
			for i := len(chain) - 1; i >= 0; i-- {
				c := chain[i]
				if c != s && p.Shape(c).Equal(p.Shape(s)) {
					start, repl = s, c
					break search
				}
			}
		}
		if start != ir.InvalidIns && start != repl {
			p.ReplaceAllUses(start, repl)
		}
	}
}

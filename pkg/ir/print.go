package ir

import (
	"fmt"
	"strings"
)

// String renders the program one instruction per line, e.g.
//
//	%3 = add(%0, %1, %2) -> float32[4]
//
// Parameters print their name, loads their offset.
func (p *Program) String() string {
	var b strings.Builder
	for i, ins := range p.instrs {
		fmt.Fprintf(&b, "%%%d = %s", i, opString(ins.Op))
		if len(ins.Inputs) > 0 {
			args := make([]string, len(ins.Inputs))
			for j, in := range ins.Inputs {
				args[j] = fmt.Sprintf("%%%d", in)
			}
			fmt.Fprintf(&b, "(%s)", strings.Join(args, ", "))
		}
		fmt.Fprintf(&b, " -> %s\n", ins.Shape)
	}
	return b.String()
}

func opString(op Operator) string {
	switch o := op.(type) {
	case Param:
		return fmt.Sprintf("param[%s]", o.Ident)
	case Load:
		return fmt.Sprintf("load[offset=%d]", o.Offset)
	case Reshape:
		dims := make([]string, len(o.Dims))
		for i, d := range o.Dims {
			dims[i] = fmt.Sprintf("%d", d)
		}
		return fmt.Sprintf("reshape[%s]", strings.Join(dims, ", "))
	case Transpose:
		perm := make([]string, len(o.Perm))
		for i, d := range o.Perm {
			perm[i] = fmt.Sprintf("%d", d)
		}
		return fmt.Sprintf("transpose[%s]", strings.Join(perm, ", "))
	default:
		return op.Name()
	}
}

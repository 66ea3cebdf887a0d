package ir

import (
	"errors"
	"fmt"
)

// Ins is an instruction handle: an index into the program's arena.
// Handles are stable under append-only mutation and instruction
// replacement, cheap to copy, and usable as map keys.
type Ins int

// InvalidIns marks the absence of an instruction.
const InvalidIns Ins = -1

// Instruction is one node of the computation graph. The arena slot
// index is the instruction's identity; replacement overwrites the slot
// in place so downstream handles stay valid.
type Instruction struct {
	Op     Operator
	Shape  Shape
	Inputs []Ins

	// outputs lists the instructions consuming this one, in the order
	// they were added.
	outputs []Ins
}

// Program is an append-only arena of instructions in program order.
type Program struct {
	instrs []Instruction
	params []Ins
}

// New creates an empty program.
func New() *Program {
	return &Program{}
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.instrs)
}

// Instructions returns all handles in forward program order.
func (p *Program) Instructions() []Ins {
	out := make([]Ins, len(p.instrs))
	for i := range out {
		out[i] = Ins(i)
	}
	return out
}

// Add appends an instruction and returns its handle.
func (p *Program) Add(op Operator, shape Shape, inputs ...Ins) Ins {
	h := Ins(len(p.instrs))
	p.instrs = append(p.instrs, Instruction{Op: op, Shape: shape, Inputs: inputs})
	for _, in := range inputs {
		p.addOutput(in, h)
	}
	return h
}

// AddParameter appends a named input buffer and returns its handle.
func (p *Program) AddParameter(name string, shape Shape) Ins {
	h := p.Add(Param{Ident: name}, shape)
	p.params = append(p.params, h)
	return h
}

// Parameters returns parameter handles in the order they were added.
func (p *Program) Parameters() []Ins {
	out := make([]Ins, len(p.params))
	copy(out, p.params)
	return out
}

// Parameter looks up a parameter by name.
func (p *Program) Parameter(name string) (Ins, bool) {
	for _, h := range p.params {
		if pr, ok := p.instrs[h].Op.(Param); ok && pr.Ident == name {
			return h, true
		}
	}
	return InvalidIns, false
}

// At returns the instruction at a handle. The returned pointer is
// invalidated by the next Add.
func (p *Program) At(h Ins) *Instruction {
	return &p.instrs[h]
}

// Name returns the operator name at a handle.
func (p *Program) Name(h Ins) string {
	return p.instrs[h].Op.Name()
}

// Inputs returns the input handles of an instruction.
func (p *Program) Inputs(h Ins) []Ins {
	return p.instrs[h].Inputs
}

// Shape returns the result shape of an instruction.
func (p *Program) Shape(h Ins) Shape {
	return p.instrs[h].Shape
}

// Outputs returns the consumers of an instruction, in insertion order.
func (p *Program) Outputs(h Ins) []Ins {
	return p.instrs[h].outputs
}

// OutputAlias resolves view chains to the instruction whose storage the
// result actually occupies. An instruction producing fresh storage
// aliases itself.
func (p *Program) OutputAlias(h Ins) Ins {
	for steps := 0; steps <= len(p.instrs); steps++ {
		ins := &p.instrs[h]
		idx := aliasedInput(ins.Op, len(ins.Inputs))
		if idx < 0 {
			return h
		}
		h = ins.Inputs[idx]
	}
	panic("ir: cyclic aliasing")
}

// ReplaceInstruction overwrites the instruction at old with a new
// operator, shape, and inputs. The handle keeps its identity, so every
// consumer of old now consumes the replacement; input producers are
// rewired atomically.
func (p *Program) ReplaceInstruction(old Ins, op Operator, shape Shape, inputs ...Ins) {
	ins := &p.instrs[old]
	for _, in := range ins.Inputs {
		p.removeOutput(in, old)
	}
	ins.Op = op
	ins.Shape = shape
	ins.Inputs = inputs
	for _, in := range inputs {
		p.addOutput(in, old)
	}
}

// ReplaceAllUses rewires every consumer of old to consume repl instead.
// old stays in the arena as dead code; passes that walk liveness never
// see it.
func (p *Program) ReplaceAllUses(old, repl Ins) {
	if old == repl {
		return
	}
	consumers := append([]Ins(nil), p.instrs[old].outputs...)
	for _, c := range consumers {
		ins := &p.instrs[c]
		for i, in := range ins.Inputs {
			if in == old {
				ins.Inputs[i] = repl
				p.addOutput(repl, c)
			}
		}
	}
	p.instrs[old].outputs = nil
}

// addOutput records consumer as a user of producer. A producer handle
// outside the arena is not recorded; Validate reports it.
func (p *Program) addOutput(producer, consumer Ins) {
	if producer < 0 || int(producer) >= len(p.instrs) {
		return
	}
	outs := p.instrs[producer].outputs
	for _, o := range outs {
		if o == consumer {
			return
		}
	}
	p.instrs[producer].outputs = append(outs, consumer)
}

func (p *Program) removeOutput(producer, consumer Ins) {
	outs := p.instrs[producer].outputs
	for i, o := range outs {
		if o == consumer {
			p.instrs[producer].outputs = append(outs[:i], outs[i+1:]...)
			return
		}
	}
}

var errMalformed = errors.New("malformed program")

// Validate checks the pre-conditions optimization passes rely on:
// inputs are in range and reference earlier instructions (a load may
// also read a later one), sizes are non-negative, and alias chains
// terminate.
func (p *Program) Validate() error {
	for i, ins := range p.instrs {
		for _, in := range ins.Inputs {
			if in < 0 || int(in) >= len(p.instrs) {
				return fmt.Errorf("%w: instruction %d input %d out of range", errMalformed, i, in)
			}
			if int(in) >= i {
				if _, isLoad := ins.Op.(Load); !isLoad {
					return fmt.Errorf("%w: instruction %d consumes later instruction %d", errMalformed, i, in)
				}
			}
		}
		for _, d := range ins.Shape.Dims {
			if d < 0 {
				return fmt.Errorf("%w: instruction %d has negative dimension %d", errMalformed, i, d)
			}
		}
		idx := aliasedInput(ins.Op, len(ins.Inputs))
		if idx >= len(ins.Inputs) {
			return fmt.Errorf("%w: instruction %d (%s) has no destination input", errMalformed, i, ins.Op.Name())
		}
		// A terminating alias chain reaches fresh storage within
		// len(p.instrs) steps.
		h := Ins(i)
		for steps := 0; ; steps++ {
			if steps > len(p.instrs) {
				return fmt.Errorf("%w: instruction %d has a cyclic alias chain", errMalformed, i)
			}
			cur := &p.instrs[h]
			k := aliasedInput(cur.Op, len(cur.Inputs))
			if k < 0 || cur.Inputs[k] < 0 || int(cur.Inputs[k]) >= len(p.instrs) {
				break
			}
			h = cur.Inputs[k]
		}
	}
	return nil
}

// Package eval is a reference executor for small computation graphs.
// It models buffers the way the runtime does: kernels write through
// their destination input, and views share the backing storage of the
// buffer they alias. Passes that rearrange storage can therefore be
// checked for semantic preservation by comparing outputs before and
// after.
package eval

import (
	"fmt"

	"github.com/calderml/calder/pkg/ir"
)

// Run evaluates the program and returns the value of the result
// instruction. params binds parameter names to buffers; parameters not
// bound (the scratch buffer, typically) are zero-initialized. The
// returned slice may alias an internal buffer.
func Run(p *ir.Program, params map[string][]float32, result ir.Ins) ([]float32, error) {
	e := &evaluator{
		prog:   p,
		params: params,
		env:    make(map[ir.Ins][]float32),
	}
	return e.eval(result)
}

type evaluator struct {
	prog   *ir.Program
	params map[string][]float32
	env    map[ir.Ins][]float32
}

// bufferLen converts a shape to its length in float32 slots. Byte-typed
// buffers (the scratch parameter) round up to whole slots.
func bufferLen(s ir.Shape) int {
	return int((s.Bytes() + 3) / 4)
}

func (e *evaluator) eval(h ir.Ins) ([]float32, error) {
	if v, ok := e.env[h]; ok {
		return v, nil
	}
	ins := e.prog.At(h)
	args := make([][]float32, len(ins.Inputs))
	for i, in := range ins.Inputs {
		v, err := e.eval(in)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	v, err := e.apply(h, ins, args)
	if err != nil {
		return nil, err
	}
	e.env[h] = v
	return v, nil
}

func (e *evaluator) apply(h ir.Ins, ins *ir.Instruction, args [][]float32) ([]float32, error) {
	n := bufferLen(ins.Shape)
	switch op := ins.Op.(type) {
	case ir.Param:
		if v, ok := e.params[op.Ident]; ok {
			if len(v) != n {
				return nil, fmt.Errorf("eval: parameter %q has %d elements, want %d", op.Ident, len(v), n)
			}
			return v, nil
		}
		return make([]float32, n), nil

	case ir.Literal:
		if len(op.Values) != n {
			return nil, fmt.Errorf("eval: literal at %%%d has %d values, want %d", h, len(op.Values), n)
		}
		v := make([]float32, n)
		copy(v, op.Values)
		return v, nil

	case ir.Allocate:
		return make([]float32, n), nil

	case ir.Load:
		base := args[0]
		if op.Offset%4 != 0 {
			return nil, fmt.Errorf("eval: load offset %d at %%%d is not 4-byte aligned", op.Offset, h)
		}
		start := int(op.Offset / 4)
		if start+n > len(base) {
			return nil, fmt.Errorf("eval: load at %%%d reads [%d, %d) past buffer of %d slots", h, start, start+n, len(base))
		}
		return base[start : start+n], nil

	case ir.Reshape, ir.Contiguous, ir.Identity:
		if len(args[0]) != n {
			return nil, fmt.Errorf("eval: view at %%%d changes element count", h)
		}
		return args[0], nil

	case ir.Add:
		return e.elementwise(h, args, func(x, y float32) float32 { return x + y })

	case ir.Mul:
		return e.elementwise(h, args, func(x, y float32) float32 { return x * y })

	case ir.Relu:
		if len(args) != 2 {
			return nil, fmt.Errorf("eval: relu at %%%d has %d inputs, want 2", h, len(args))
		}
		x, out := args[0], args[1]
		if len(x) != len(out) {
			return nil, fmt.Errorf("eval: relu at %%%d has mismatched buffers", h)
		}
		for i, v := range x {
			if v > 0 {
				out[i] = v
			} else {
				out[i] = 0
			}
		}
		return out, nil

	case ir.Dot:
		return e.dot(h, ins, args)
	}
	return nil, fmt.Errorf("eval: unsupported operator %s at %%%d", ins.Op.Name(), h)
}

func (e *evaluator) elementwise(h ir.Ins, args [][]float32, f func(x, y float32) float32) ([]float32, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("eval: binary op at %%%d has %d inputs, want 3", h, len(args))
	}
	x, y, out := args[0], args[1], args[2]
	if len(x) != len(out) || len(y) != len(out) {
		return nil, fmt.Errorf("eval: binary op at %%%d has mismatched buffers", h)
	}
	for i := range out {
		out[i] = f(x[i], y[i])
	}
	return out, nil
}

func (e *evaluator) dot(h ir.Ins, ins *ir.Instruction, args [][]float32) ([]float32, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("eval: dot at %%%d has %d inputs, want 3", h, len(args))
	}
	as := e.prog.Shape(ins.Inputs[0])
	bs := e.prog.Shape(ins.Inputs[1])
	if len(as.Dims) != 2 || len(bs.Dims) != 2 || as.Dims[1] != bs.Dims[0] {
		return nil, fmt.Errorf("eval: dot at %%%d has incompatible shapes %s x %s", h, as, bs)
	}
	m, k, n := int(as.Dims[0]), int(as.Dims[1]), int(bs.Dims[1])
	a, b, out := args[0], args[1], args[2]
	if len(out) != m*n {
		return nil, fmt.Errorf("eval: dot at %%%d destination has %d slots, want %d", h, len(out), m*n)
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for l := 0; l < k; l++ {
				acc += a[i*k+l] * b[l*n+j]
			}
			out[i*n+j] = acc
		}
	}
	return out, nil
}

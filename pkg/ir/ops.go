// Package ir defines the computation-graph intermediate representation:
// an append-only arena of instructions addressed by stable integer
// handles, with operators modeled as tagged variants. This is the IR
// that optimization passes consume and rewrite.
package ir

// Operator represents a graph operation. Operators are encoded as
// tagged variants; passes dispatch on the concrete type or on Name().
type Operator interface {
	Name() string
	implOperator()
}

// Param is a named graph input buffer.
type Param struct {
	Ident string
}

// Literal holds a constant float32 tensor.
type Literal struct {
	Values []float32
}

// Allocate requests a private result buffer. Memory coloring rewrites
// every allocate into a Load from the shared scratch parameter.
type Allocate struct{}

// Load is a typed view into its input buffer at a byte offset.
type Load struct {
	Offset int64
}

// Reshape reinterprets its input's buffer under new dimensions.
type Reshape struct {
	Dims []int64
}

// Transpose permutes the dimensions of its input.
type Transpose struct {
	Perm []int64
}

// Contiguous forces a standard layout over its input.
type Contiguous struct{}

// Identity passes its input through unchanged.
type Identity struct{}

// Elementwise arithmetic. The last input is the destination buffer the
// kernel writes into; the result aliases it.
type Add struct{}  // out = x + y
type Mul struct{}  // out = x * y
type Relu struct{} // out = max(x, 0)

// Dot is a 2-D matrix multiply writing into its destination input.
type Dot struct{}

func (Param) Name() string      { return "param" }
func (Literal) Name() string    { return "literal" }
func (Allocate) Name() string   { return "allocate" }
func (Load) Name() string       { return "load" }
func (Reshape) Name() string    { return "reshape" }
func (Transpose) Name() string  { return "transpose" }
func (Contiguous) Name() string { return "contiguous" }
func (Identity) Name() string   { return "identity" }
func (Add) Name() string        { return "add" }
func (Mul) Name() string        { return "mul" }
func (Relu) Name() string       { return "relu" }
func (Dot) Name() string        { return "dot" }

func (Param) implOperator()      {}
func (Literal) implOperator()    {}
func (Allocate) implOperator()   {}
func (Load) implOperator()       {}
func (Reshape) implOperator()    {}
func (Transpose) implOperator()  {}
func (Contiguous) implOperator() {}
func (Identity) implOperator()   {}
func (Add) implOperator()        {}
func (Mul) implOperator()        {}
func (Relu) implOperator()       {}
func (Dot) implOperator()        {}

// aliasedInput returns the index of the input the operator's result
// aliases, or -1 when the result is fresh storage. View operators alias
// their first input; kernels with a destination argument alias their
// last input.
func aliasedInput(op Operator, numInputs int) int {
	switch op.(type) {
	case Load, Reshape, Transpose, Contiguous, Identity:
		if numInputs == 0 {
			return -1
		}
		return 0
	case Add, Mul, Relu, Dot:
		return numInputs - 1
	}
	return -1
}

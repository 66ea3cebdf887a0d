package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calderml/calder/pkg/coloring"
	"github.com/calderml/calder/pkg/ir"
)

func TestRunElementwise(t *testing.T) {
	p := ir.New()
	x := p.AddParameter("x", ir.MakeShape(ir.Float32, 4))
	y := p.AddParameter("y", ir.MakeShape(ir.Float32, 4))
	buf := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
	sum := p.Add(ir.Add{}, ir.MakeShape(ir.Float32, 4), x, y, buf)

	got, err := Run(p, map[string][]float32{
		"x": {1, 2, 3, 4},
		"y": {10, 20, 30, 40},
	}, sum)
	require.NoError(t, err)
	require.Equal(t, []float32{11, 22, 33, 44}, got)
}

func TestRunRelu(t *testing.T) {
	p := ir.New()
	x := p.AddParameter("x", ir.MakeShape(ir.Float32, 4))
	buf := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
	act := p.Add(ir.Relu{}, ir.MakeShape(ir.Float32, 4), x, buf)

	got, err := Run(p, map[string][]float32{"x": {-1, 2, -3, 4}}, act)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 2, 0, 4}, got)
}

func TestRunDot(t *testing.T) {
	p := ir.New()
	a := p.AddParameter("a", ir.MakeShape(ir.Float32, 2, 2))
	b := p.AddParameter("b", ir.MakeShape(ir.Float32, 2, 2))
	buf := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 2, 2))
	prod := p.Add(ir.Dot{}, ir.MakeShape(ir.Float32, 2, 2), a, b, buf)

	got, err := Run(p, map[string][]float32{
		"a": {1, 2, 3, 4},
		"b": {5, 6, 7, 8},
	}, prod)
	require.NoError(t, err)
	require.Equal(t, []float32{19, 22, 43, 50}, got)
}

func TestRunLiteralAndViews(t *testing.T) {
	p := ir.New()
	c := p.Add(ir.Literal{Values: []float32{1, 2, 3, 4}}, ir.MakeShape(ir.Float32, 4))
	v := p.Add(ir.Reshape{Dims: []int64{2, 2}}, ir.MakeShape(ir.Float32, 2, 2), c)
	buf := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 2, 2))
	sq := p.Add(ir.Mul{}, ir.MakeShape(ir.Float32, 2, 2), v, v, buf)

	got, err := Run(p, nil, sq)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 4, 9, 16}, got)
}

func TestRunLoadViewsShareBacking(t *testing.T) {
	// A load is a window into its input; writing through a kernel whose
	// destination is the load must be visible through the base buffer.
	p := ir.New()
	scratch := p.AddParameter("scratch", ir.MakeShape(ir.Int8, 32))
	w := p.Add(ir.Load{Offset: 16}, ir.MakeShape(ir.Float32, 4), scratch)
	x := p.AddParameter("x", ir.MakeShape(ir.Float32, 4))
	act := p.Add(ir.Relu{}, ir.MakeShape(ir.Float32, 4), x, w)

	e := &evaluator{prog: p, params: map[string][]float32{"x": {5, -1, 7, -2}}, env: make(map[ir.Ins][]float32)}
	got, err := e.eval(act)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 0, 7, 0}, got)

	base, err := e.eval(scratch)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 0, 7, 0}, base[4:8])
}

func TestRunErrors(t *testing.T) {
	t.Run("load out of range", func(t *testing.T) {
		p := ir.New()
		s := p.AddParameter("s", ir.MakeShape(ir.Int8, 16))
		bad := p.Add(ir.Load{Offset: 8}, ir.MakeShape(ir.Float32, 4), s)
		_, err := Run(p, nil, bad)
		require.Error(t, err)
	})

	t.Run("parameter size mismatch", func(t *testing.T) {
		p := ir.New()
		x := p.AddParameter("x", ir.MakeShape(ir.Float32, 4))
		_, err := Run(p, map[string][]float32{"x": {1}}, x)
		require.Error(t, err)
	})

	t.Run("transpose unsupported", func(t *testing.T) {
		p := ir.New()
		x := p.AddParameter("x", ir.MakeShape(ir.Float32, 2, 2))
		tr := p.Add(ir.Transpose{Perm: []int64{1, 0}}, ir.MakeShape(ir.Float32, 2, 2), x)
		_, err := Run(p, nil, tr)
		require.Error(t, err)
	})
}

// buildPipeline is a small three-allocation pipeline with overlapping
// and reusable live ranges; out is the final result handle.
func buildPipeline() (p *ir.Program, out ir.Ins) {
	p = ir.New()
	x := p.AddParameter("x", ir.MakeShape(ir.Float32, 4))
	y := p.AddParameter("y", ir.MakeShape(ir.Float32, 4))
	a1 := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
	t1 := p.Add(ir.Add{}, ir.MakeShape(ir.Float32, 4), x, y, a1)
	a2 := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
	t2 := p.Add(ir.Mul{}, ir.MakeShape(ir.Float32, 4), t1, x, a2)
	a3 := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
	out = p.Add(ir.Relu{}, ir.MakeShape(ir.Float32, 4), t2, a3)
	return p, out
}

// Semantic preservation: the colored program computes the same values
// as the original.
func TestMemoryColoringPreservesSemantics(t *testing.T) {
	params := map[string][]float32{
		"x": {1, -2, 3, -4},
		"y": {5, 6, -7, -8},
	}

	before, out := buildPipeline()
	want, err := Run(before, params, out)
	require.NoError(t, err)

	after, out2 := buildPipeline()
	require.NoError(t, coloring.MemoryColoring{AllocationOp: "allocate"}.Apply(after))
	got, err := Run(after, params, out2)
	require.NoError(t, err)

	require.Equal(t, want, got)

	// The rewritten program holds no allocations.
	for _, ins := range after.Instructions() {
		require.NotEqual(t, "allocate", after.Name(ins))
	}
}

func TestMemoryColoringPreservesSemanticsWithViews(t *testing.T) {
	build := func() (*ir.Program, ir.Ins) {
		p := ir.New()
		a := p.AddParameter("a", ir.MakeShape(ir.Float32, 2, 2))
		b := p.AddParameter("b", ir.MakeShape(ir.Float32, 4))
		bm := p.Add(ir.Reshape{Dims: []int64{2, 2}}, ir.MakeShape(ir.Float32, 2, 2), b)
		d1 := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 2, 2))
		prod := p.Add(ir.Dot{}, ir.MakeShape(ir.Float32, 2, 2), a, bm, d1)
		flat := p.Add(ir.Reshape{Dims: []int64{4}}, ir.MakeShape(ir.Float32, 4), prod)
		d2 := p.Add(ir.Allocate{}, ir.MakeShape(ir.Float32, 4))
		out := p.Add(ir.Add{}, ir.MakeShape(ir.Float32, 4), flat, b, d2)
		return p, out
	}
	params := map[string][]float32{
		"a": {1, 2, 3, 4},
		"b": {5, 6, 7, 8},
	}

	before, out := build()
	want, err := Run(before, params, out)
	require.NoError(t, err)

	after, out2 := build()
	require.NoError(t, coloring.MemoryColoring{AllocationOp: "allocate"}.Apply(after))
	got, err := Run(after, params, out2)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

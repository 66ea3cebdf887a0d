// Package graphio reads and writes the YAML graph description format
// used by the calder CLI and its test fixtures.
package graphio

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/calderml/calder/pkg/ir"
)

// InstructionSpec describes one instruction in a graph file.
type InstructionSpec struct {
	ID     string    `yaml:"id"`
	Op     string    `yaml:"op"`
	Inputs []string  `yaml:"inputs,omitempty"`
	DType  string    `yaml:"dtype,omitempty"` // float32 (default) or int8
	Dims   []int64   `yaml:"dims,omitempty"`
	Values []float32 `yaml:"values,omitempty"` // literal payload
	Offset int64     `yaml:"offset,omitempty"` // load byte offset
	Perm   []int64   `yaml:"perm,omitempty"`   // transpose permutation
}

// GraphFile is the top-level document.
type GraphFile struct {
	Name         string            `yaml:"name,omitempty"`
	Instructions []InstructionSpec `yaml:"instructions"`
}

// Load parses a graph description and builds the program.
func Load(r io.Reader) (*ir.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var file GraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("graphio: %w", err)
	}
	return build(&file)
}

// LoadFile reads and parses the graph description at path.
func LoadFile(path string) (*ir.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func build(file *GraphFile) (*ir.Program, error) {
	p := ir.New()
	byID := make(map[string]ir.Ins)
	for i, spec := range file.Instructions {
		if spec.ID == "" {
			return nil, fmt.Errorf("graphio: instruction %d has no id", i)
		}
		if _, dup := byID[spec.ID]; dup {
			return nil, fmt.Errorf("graphio: duplicate id %q", spec.ID)
		}
		shape, err := specShape(spec)
		if err != nil {
			return nil, err
		}
		inputs := make([]ir.Ins, len(spec.Inputs))
		for j, in := range spec.Inputs {
			h, ok := byID[in]
			if !ok {
				return nil, fmt.Errorf("graphio: %q consumes unknown id %q", spec.ID, in)
			}
			inputs[j] = h
		}

		var h ir.Ins
		if spec.Op == "param" {
			if len(inputs) != 0 {
				return nil, fmt.Errorf("graphio: param %q must not have inputs", spec.ID)
			}
			h = p.AddParameter(spec.ID, shape)
		} else {
			op, err := specOp(spec)
			if err != nil {
				return nil, err
			}
			h = p.Add(op, shape, inputs...)
		}
		byID[spec.ID] = h
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("graphio: %w", err)
	}
	return p, nil
}

func specShape(spec InstructionSpec) (ir.Shape, error) {
	switch spec.DType {
	case "", "float32":
		return ir.MakeShape(ir.Float32, spec.Dims...), nil
	case "int8":
		return ir.MakeShape(ir.Int8, spec.Dims...), nil
	}
	return ir.Shape{}, fmt.Errorf("graphio: %q has unknown dtype %q", spec.ID, spec.DType)
}

func specOp(spec InstructionSpec) (ir.Operator, error) {
	switch spec.Op {
	case "literal":
		return ir.Literal{Values: spec.Values}, nil
	case "allocate":
		return ir.Allocate{}, nil
	case "load":
		return ir.Load{Offset: spec.Offset}, nil
	case "reshape":
		return ir.Reshape{Dims: spec.Dims}, nil
	case "transpose":
		return ir.Transpose{Perm: spec.Perm}, nil
	case "contiguous":
		return ir.Contiguous{}, nil
	case "identity":
		return ir.Identity{}, nil
	case "add":
		return ir.Add{}, nil
	case "mul":
		return ir.Mul{}, nil
	case "relu":
		return ir.Relu{}, nil
	case "dot":
		return ir.Dot{}, nil
	}
	return nil, fmt.Errorf("graphio: %q has unknown op %q", spec.ID, spec.Op)
}

// Write renders the program back to the YAML description format.
// Parameters keep their names as ids and are listed first (the pass
// pipeline appends the scratch parameter after its consumers; the file
// format requires definition before use). Other instructions get
// t<index> ids and keep program order.
func Write(w io.Writer, p *ir.Program) error {
	ids := make(map[ir.Ins]string)
	var params, rest []ir.Ins
	for _, h := range p.Instructions() {
		if op, ok := p.At(h).Op.(ir.Param); ok {
			ids[h] = op.Ident
			params = append(params, h)
		} else {
			ids[h] = fmt.Sprintf("t%d", h)
			rest = append(rest, h)
		}
	}

	file := GraphFile{}
	for _, h := range append(params, rest...) {
		ins := p.At(h)
		spec := InstructionSpec{ID: ids[h], Op: ins.Op.Name()}
		switch op := ins.Op.(type) {
		case ir.Literal:
			spec.Values = op.Values
		case ir.Load:
			spec.Offset = op.Offset
		case ir.Transpose:
			spec.Perm = op.Perm
		}
		if ins.Shape.DType != ir.Float32 {
			spec.DType = ins.Shape.DType.String()
		}
		spec.Dims = ins.Shape.Dims
		for _, in := range ins.Inputs {
			spec.Inputs = append(spec.Inputs, ids[in])
		}
		file.Instructions = append(file.Instructions, spec)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

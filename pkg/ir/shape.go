package ir

import (
	"fmt"
	"strings"
)

// DType identifies the element type of a buffer.
type DType int

const (
	Float32 DType = iota
	Int8
)

// Size returns the size of one element in bytes.
func (d DType) Size() int64 {
	switch d {
	case Float32:
		return 4
	case Int8:
		return 1
	}
	panic(fmt.Sprintf("ir: unknown dtype %d", int(d)))
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int8:
		return "int8"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Shape describes the result buffer of an instruction: an element type
// and a dimension list. A scalar has an empty dimension list.
type Shape struct {
	DType DType
	Dims  []int64
}

// MakeShape builds a shape from a dtype and dimensions.
func MakeShape(dt DType, dims ...int64) Shape {
	return Shape{DType: dt, Dims: dims}
}

// Elements returns the number of elements in the shape.
func (s Shape) Elements() int64 {
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Bytes returns the byte size of the result buffer.
func (s Shape) Bytes() int64 {
	return s.Elements() * s.DType.Size()
}

// Equal reports whether two shapes have the same dtype and dimensions.
func (s Shape) Equal(o Shape) bool {
	if s.DType != o.DType || len(s.Dims) != len(o.Dims) {
		return false
	}
	for i, d := range s.Dims {
		if d != o.Dims[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	dims := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		dims[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s[%s]", s.DType, strings.Join(dims, ", "))
}

// Package tensor provides the shaped, fixed-point integer tensors flowing
// through a computation graph. A tensor carries its dimensions, fixed-point
// scale and visibility tag at all times; it holds values only while a
// witness is being generated.
package tensor

import (
	"fmt"
)

type Tensor struct {
	Dims       []int
	Scale      uint
	Visibility Visibility
	// Values is nil outside witness generation. Length Numel(Dims), row-major.
	Values []int64
}

// New returns a value-less tensor description.
func New(dims []int, scale uint, vis Visibility) *Tensor {
	return &Tensor{Dims: append([]int(nil), dims...), Scale: scale, Visibility: vis}
}

// FromValues returns a tensor holding vs. The slice is not copied.
func FromValues(dims []int, scale uint, vis Visibility, vs []int64) (*Tensor, error) {
	if len(vs) != Numel(dims) {
		return nil, fmt.Errorf("value count %d does not match shape %v", len(vs), dims)
	}
	t := New(dims, scale, vis)
	t.Values = vs
	return t, nil
}

// Numel returns the element count of a shape.
func Numel(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func (t *Tensor) Numel() int { return Numel(t.Dims) }

// WithValues returns a copy of the description carrying vs.
func (t *Tensor) WithValues(vs []int64) (*Tensor, error) {
	return FromValues(t.Dims, t.Scale, t.Visibility, vs)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor%v scale=%d vis=%s", t.Dims, t.Scale, t.Visibility)
}

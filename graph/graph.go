// Package graph models a quantized inference network as an arena of
// operation nodes. A builder assembles the graph while inferring shapes and
// fixed-point scales, inserting rescale steps after every scale-doubling
// operation so downstream consumers always see aligned operands.
package graph

import (
	"errors"
	"fmt"

	"github.com/graphproof/graphproof/tensor"
)

// OpKind identifies a node operation.
type OpKind uint8

const (
	OpInput OpKind = iota
	OpConst
	OpMatMul
	OpConv2D
	// OpSumPool2D sums pooling windows. AvgPool2D lowers to a window sum
	// followed by a rescale with the window size as divisor.
	OpSumPool2D
	OpAdd
	OpSub
	OpMul
	OpReduceSum
	OpReshape
	OpFlatten
	OpRelu
	OpSigmoid
	// OpRescale floor-divides every element by Divisor, constraining the
	// remainder to [0, Divisor).
	OpRescale
)

var opNames = map[OpKind]string{
	OpInput:     "input",
	OpConst:     "const",
	OpMatMul:    "matmul",
	OpConv2D:    "conv2d",
	OpSumPool2D: "sumpool2d",
	OpAdd:       "add",
	OpSub:       "sub",
	OpMul:       "mul",
	OpReduceSum: "reducesum",
	OpReshape:   "reshape",
	OpFlatten:   "flatten",
	OpRelu:      "relu",
	OpSigmoid:   "sigmoid",
	OpRescale:   "rescale",
}

func (k OpKind) String() string {
	if s, ok := opNames[k]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(k))
}

var (
	ErrShapeMismatch = errors.New("operand shapes are incompatible")
	ErrScaleMismatch = errors.New("operand scales are not aligned")
)

// Node is one operation in the arena. IDs are indices into Graph.Nodes and
// are assigned in construction order, which is therefore topological.
type Node struct {
	ID     int     `cbor:"id"`
	Name   string  `cbor:"name,omitempty"`
	Op     OpKind  `cbor:"op"`
	Inputs []int   `cbor:"inputs,omitempty"`
	Out    *Shape  `cbor:"out"`
	Const  []int64 `cbor:"const,omitempty"`

	// Operation attributes.
	Stride  int   `cbor:"stride,omitempty"`
	Pad     int   `cbor:"pad,omitempty"`
	Window  int   `cbor:"window,omitempty"`
	Divisor int64 `cbor:"divisor,omitempty"`
}

// Shape describes a node's output tensor without values.
type Shape struct {
	Dims       []int             `cbor:"dims"`
	Scale      uint              `cbor:"scale"`
	Visibility tensor.Visibility `cbor:"vis"`
}

func (s *Shape) Tensor() *tensor.Tensor {
	return tensor.New(s.Dims, s.Scale, s.Visibility)
}

func (s *Shape) Numel() int { return tensor.Numel(s.Dims) }

// Config fixes the quantization and visibility policy of a graph.
type Config struct {
	InputScale uint              `cbor:"input_scale"`
	ParamScale uint              `cbor:"param_scale"`
	InputVis   tensor.Visibility `cbor:"input_vis"`
	ParamVis   tensor.Visibility `cbor:"param_vis"`
	OutputVis  tensor.Visibility `cbor:"output_vis"`
	// LookupBits bounds nonlinearity inputs to [-2^(b-1), 2^(b-1)).
	LookupBits uint `cbor:"lookup_bits"`
}

func (c Config) validate() error {
	if c.InputScale > 24 || c.ParamScale > 24 {
		return fmt.Errorf("scales above 24 bits are not supported, got input=%d param=%d", c.InputScale, c.ParamScale)
	}
	if c.LookupBits < 2 || c.LookupBits > 20 {
		return fmt.Errorf("lookup bits must lie in [2,20], got %d", c.LookupBits)
	}
	return nil
}

// Graph is a finished, validated network. Nodes are topologically ordered.
type Graph struct {
	Cfg    Config  `cbor:"cfg"`
	Nodes  []*Node `cbor:"nodes"`
	Inputs []int   `cbor:"graph_inputs"`
	Output int     `cbor:"graph_output"`
}

// OutputShape returns the shape of the node the graph returns.
func (g *Graph) OutputShape() *Shape { return g.Nodes[g.Output].Out }

// InputShapes returns the declared input shapes in order.
func (g *Graph) InputShapes() []*Shape {
	out := make([]*Shape, len(g.Inputs))
	for i, id := range g.Inputs {
		out[i] = g.Nodes[id].Out
	}
	return out
}

func (g *Graph) validate() error {
	if err := g.Cfg.validate(); err != nil {
		return err
	}
	if g.Output < 0 || g.Output >= len(g.Nodes) {
		return fmt.Errorf("output node %d out of range", g.Output)
	}
	reached := make([]bool, len(g.Nodes))
	var visit func(int)
	visit = func(id int) {
		if reached[id] {
			return
		}
		reached[id] = true
		for _, in := range g.Nodes[id].Inputs {
			visit(in)
		}
	}
	visit(g.Output)
	for id, r := range reached {
		if !r {
			return fmt.Errorf("node %d (%s) does not feed the output", id, g.Nodes[id].Op)
		}
	}
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			if in < 0 || in >= n.ID {
				return fmt.Errorf("node %d references input %d out of order", n.ID, in)
			}
		}
	}
	return nil
}

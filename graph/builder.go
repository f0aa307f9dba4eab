package graph

import (
	"fmt"

	"github.com/graphproof/graphproof/field"
	"github.com/graphproof/graphproof/tensor"
)

// Builder assembles a graph node by node, inferring shapes and scales as it
// goes. The first failure sticks and is reported by Build; intermediate
// methods keep returning ids so call sites stay linear.
type Builder struct {
	cfg   Config
	nodes []*Node
	ins   []int
	err   error
}

func NewBuilder(cfg Config) *Builder {
	b := &Builder{cfg: cfg}
	b.err = cfg.validate()
	return b
}

func (b *Builder) fail(format string, args ...any) int {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return -1
}

func (b *Builder) push(n *Node) int {
	n.ID = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return n.ID
}

func (b *Builder) node(id int) *Node {
	return b.nodes[id]
}

func (b *Builder) checkIDs(ids ...int) bool {
	if b.err != nil {
		return false
	}
	for _, id := range ids {
		if id < 0 || id >= len(b.nodes) {
			b.fail("node id %d does not exist", id)
			return false
		}
	}
	return true
}

// Input declares a model input with the configured input scale and
// visibility.
func (b *Builder) Input(name string, dims []int) int {
	if b.err != nil {
		return -1
	}
	if err := checkDims(dims); err != nil {
		return b.fail("input %s: %v", name, err)
	}
	id := b.push(&Node{
		Name: name,
		Op:   OpInput,
		Out:  &Shape{Dims: append([]int(nil), dims...), Scale: b.cfg.InputScale, Visibility: b.cfg.InputVis},
	})
	b.ins = append(b.ins, id)
	return id
}

// ConstFloats quantizes vs at the parameter scale and embeds them as a
// parameter tensor.
func (b *Builder) ConstFloats(name string, dims []int, vs []float64) int {
	if b.err != nil {
		return -1
	}
	qs := make([]int64, len(vs))
	for i, v := range vs {
		q, err := field.Quantize(v, b.cfg.ParamScale)
		if err != nil {
			return b.fail("const %s element %d: %v", name, i, err)
		}
		qs[i] = q
	}
	return b.ConstInts(name, dims, qs, b.cfg.ParamScale)
}

// ConstInts embeds already-quantized parameter values at an explicit scale.
func (b *Builder) ConstInts(name string, dims []int, vs []int64, scale uint) int {
	if b.err != nil {
		return -1
	}
	if err := checkDims(dims); err != nil {
		return b.fail("const %s: %v", name, err)
	}
	if len(vs) != tensor.Numel(dims) {
		return b.fail("const %s: %d values for shape %v", name, len(vs), dims)
	}
	return b.push(&Node{
		Name:  name,
		Op:    OpConst,
		Const: append([]int64(nil), vs...),
		Out:   &Shape{Dims: append([]int(nil), dims...), Scale: scale, Visibility: b.cfg.ParamVis},
	})
}

// MatMul multiplies two rank-2 operands and rescales the product back to the
// larger operand scale.
func (b *Builder) MatMul(a, c int) int {
	if !b.checkIDs(a, c) {
		return -1
	}
	sa, sc := b.node(a).Out, b.node(c).Out
	dims, err := tensor.MatMulShape(sa.Dims, sc.Dims)
	if err != nil {
		return b.fail("matmul: %w: %v", ErrShapeMismatch, err)
	}
	raw := b.push(&Node{
		Op:     OpMatMul,
		Inputs: []int{a, c},
		Out:    &Shape{Dims: dims, Scale: sa.Scale + sc.Scale, Visibility: tensor.Private},
	})
	return b.rescaleScaleDown(raw, maxScale(sa.Scale, sc.Scale))
}

// Conv2D convolves a (C,H,W) input with a (F,C,KH,KW) kernel.
func (b *Builder) Conv2D(in, ker int, stride, pad int) int {
	if !b.checkIDs(in, ker) {
		return -1
	}
	si, sk := b.node(in).Out, b.node(ker).Out
	dims, err := tensor.Conv2DShape(si.Dims, sk.Dims, stride, pad)
	if err != nil {
		return b.fail("conv2d: %w: %v", ErrShapeMismatch, err)
	}
	raw := b.push(&Node{
		Op:     OpConv2D,
		Inputs: []int{in, ker},
		Stride: stride,
		Pad:    pad,
		Out:    &Shape{Dims: dims, Scale: si.Scale + sk.Scale, Visibility: tensor.Private},
	})
	return b.rescaleScaleDown(raw, maxScale(si.Scale, sk.Scale))
}

// AvgPool2D averages kxk windows, dividing the window sum by k*k at an
// unchanged scale.
func (b *Builder) AvgPool2D(in int, k, stride int) int {
	if !b.checkIDs(in) {
		return -1
	}
	si := b.node(in).Out
	dims, err := tensor.Pool2DShape(si.Dims, k, stride)
	if err != nil {
		return b.fail("avgpool2d: %w: %v", ErrShapeMismatch, err)
	}
	sum := b.push(&Node{
		Op:     OpSumPool2D,
		Inputs: []int{in},
		Window: k,
		Stride: stride,
		Out:    &Shape{Dims: dims, Scale: si.Scale, Visibility: tensor.Private},
	})
	return b.rescale(sum, int64(k*k), si.Scale)
}

// Add, Sub and Mul are elementwise. Operand scales must already agree for
// addition; multiplication doubles and rescales like matmul.
func (b *Builder) Add(x, y int) int { return b.linear(OpAdd, x, y) }
func (b *Builder) Sub(x, y int) int { return b.linear(OpSub, x, y) }

func (b *Builder) Mul(x, y int) int {
	if !b.checkIDs(x, y) {
		return -1
	}
	sx, sy := b.node(x).Out, b.node(y).Out
	if !tensor.SameShape(sx.Dims, sy.Dims) {
		return b.fail("mul: %w: %v vs %v", ErrShapeMismatch, sx.Dims, sy.Dims)
	}
	raw := b.push(&Node{
		Op:     OpMul,
		Inputs: []int{x, y},
		Out:    &Shape{Dims: append([]int(nil), sx.Dims...), Scale: sx.Scale + sy.Scale, Visibility: tensor.Private},
	})
	return b.rescaleScaleDown(raw, maxScale(sx.Scale, sy.Scale))
}

func (b *Builder) linear(op OpKind, x, y int) int {
	if !b.checkIDs(x, y) {
		return -1
	}
	sx, sy := b.node(x).Out, b.node(y).Out
	if !tensor.SameShape(sx.Dims, sy.Dims) {
		return b.fail("%s: %w: %v vs %v", op, ErrShapeMismatch, sx.Dims, sy.Dims)
	}
	if sx.Scale != sy.Scale {
		return b.fail("%s: %w: %d vs %d", op, ErrScaleMismatch, sx.Scale, sy.Scale)
	}
	return b.push(&Node{
		Op:     op,
		Inputs: []int{x, y},
		Out:    &Shape{Dims: append([]int(nil), sx.Dims...), Scale: sx.Scale, Visibility: tensor.Private},
	})
}

// ReduceSum folds every element into a single scalar.
func (b *Builder) ReduceSum(x int) int {
	if !b.checkIDs(x) {
		return -1
	}
	sx := b.node(x).Out
	return b.push(&Node{
		Op:     OpReduceSum,
		Inputs: []int{x},
		Out:    &Shape{Dims: []int{1}, Scale: sx.Scale, Visibility: tensor.Private},
	})
}

// Reshape reinterprets the element order under a new shape.
func (b *Builder) Reshape(x int, dims []int) int {
	if !b.checkIDs(x) {
		return -1
	}
	sx := b.node(x).Out
	if err := checkDims(dims); err != nil {
		return b.fail("reshape: %v", err)
	}
	if err := tensor.ReshapeCheck(sx.Dims, dims); err != nil {
		return b.fail("reshape: %w: %v", ErrShapeMismatch, err)
	}
	return b.push(&Node{
		Op:     OpReshape,
		Inputs: []int{x},
		Out:    &Shape{Dims: append([]int(nil), dims...), Scale: sx.Scale, Visibility: tensor.Private},
	})
}

// Flatten reshapes to rank 1.
func (b *Builder) Flatten(x int) int {
	if !b.checkIDs(x) {
		return -1
	}
	n := b.node(x).Out.Numel()
	id := b.Reshape(x, []int{n})
	if id >= 0 {
		b.node(id).Op = OpFlatten
	}
	return id
}

// Relu and Sigmoid apply their lookup tables elementwise at an unchanged
// scale. Inputs must stay inside the configured lookup range.
func (b *Builder) Relu(x int) int    { return b.unary(OpRelu, x) }
func (b *Builder) Sigmoid(x int) int { return b.unary(OpSigmoid, x) }

func (b *Builder) unary(op OpKind, x int) int {
	if !b.checkIDs(x) {
		return -1
	}
	sx := b.node(x).Out
	return b.push(&Node{
		Op:     op,
		Inputs: []int{x},
		Out:    &Shape{Dims: append([]int(nil), sx.Dims...), Scale: sx.Scale, Visibility: tensor.Private},
	})
}

// rescaleScaleDown divides by a power of two to bring a doubled scale back
// to target. A unit divisor inserts nothing.
func (b *Builder) rescaleScaleDown(x int, target uint) int {
	sx := b.node(x).Out
	if sx.Scale == target {
		return x
	}
	return b.rescale(x, int64(1)<<(sx.Scale-target), target)
}

func (b *Builder) rescale(x int, divisor int64, outScale uint) int {
	sx := b.node(x).Out
	return b.push(&Node{
		Op:      OpRescale,
		Inputs:  []int{x},
		Divisor: divisor,
		Out:     &Shape{Dims: append([]int(nil), sx.Dims...), Scale: outScale, Visibility: tensor.Private},
	})
}

// Build finalizes the graph with out as the model output, stamping it with
// the configured output visibility.
func (b *Builder) Build(out int) (*Graph, error) {
	if !b.checkIDs(out) {
		if b.err == nil {
			b.fail("output node %d does not exist", out)
		}
		return nil, b.err
	}
	if len(b.ins) == 0 {
		return nil, fmt.Errorf("graph has no inputs")
	}
	b.node(out).Out.Visibility = b.cfg.OutputVis
	g := &Graph{Cfg: b.cfg, Nodes: b.nodes, Inputs: b.ins, Output: out}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func checkDims(dims []int) error {
	if len(dims) == 0 {
		return fmt.Errorf("empty shape")
	}
	for _, d := range dims {
		if d < 1 {
			return fmt.Errorf("non-positive dimension in %v", dims)
		}
	}
	return nil
}

func maxScale(a, b uint) uint {
	if a > b {
		return a
	}
	return b
}

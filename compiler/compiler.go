// Package compiler lowers a computation graph into the circuit form: one
// universal gate column set, a copy-constraint permutation and a merged
// lookup region, together with the tape program that will value every
// advice cell during witness generation.
package compiler

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark/logger"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/tensor"
)

var (
	ErrUnsupportedOperation = errors.New("operation not supported by the compiler")
	// ErrDegreeOverflow reports a circuit outgrowing the largest supported
	// evaluation domain.
	ErrDegreeOverflow = errors.New("circuit exceeds the maximum domain size")
)

// MaxLogRows caps the evaluation domain at 2^22 rows.
const MaxLogRows = 22

type comp struct {
	g     *graph.Graph
	lo    *layout
	slots [][]int32
	inCur int
}

// Compile lowers a validated graph. The resulting circuit embeds the
// canonical graph digest so keys derived from it stay bound to the model.
func Compile(g *graph.Graph) (*circuit.Circuit, error) {
	log := logger.Logger()

	numPublic, anyEncrypted := countPublicWords(g)
	c := &comp{
		g:     g,
		lo:    newLayout(numPublic),
		slots: make([][]int32, len(g.Nodes)),
	}
	log.Info().
		Int("nodes", len(g.Nodes)).
		Int("publicInputs", numPublic).
		Msg("compiling graph")

	for _, n := range g.Nodes {
		if err := c.lo.span(nodeLabel(n), func() error { return c.lowerNode(n) }); err != nil {
			return nil, err
		}
		if bindable(g, n) {
			if err := c.lo.span(nodeLabel(n)+"/bind", func() error { return c.bindNode(n) }); err != nil {
				return nil, err
			}
		}
	}
	if anyEncrypted {
		err := c.lo.span("key commitment", func() error {
			kc := c.lo.mimcDigest([]int32{c.lo.key()})
			return c.lo.bindPublic(kc)
		})
		if err != nil {
			return nil, err
		}
	}

	graphBytes, err := g.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	cc, err := c.lo.finalize(graphBytes)
	if err != nil {
		return nil, err
	}
	cc.OutputScale = g.Nodes[g.Output].Out.Scale
	log.Info().
		Int("rows", len(cc.Rows)).
		Int("domain", cc.N).
		Int("tables", len(cc.Tables)).
		Int("tapeOps", len(cc.Tape)).
		Msg("graph compiled")
	return cc, nil
}

func nodeLabel(n *graph.Node) string {
	if n.Name != "" {
		return fmt.Sprintf("%s(%s#%d)", n.Name, n.Op, n.ID)
	}
	return fmt.Sprintf("%s#%d", n.Op, n.ID)
}

// bindable reports whether a node's tensor is surfaced by the statement:
// graph inputs, parameters, and the model output.
func bindable(g *graph.Graph, n *graph.Node) bool {
	return n.Op == graph.OpInput || n.Op == graph.OpConst || n.ID == g.Output
}

// countPublicWords mirrors the binding pass, computing how many
// public-input rows to reserve ahead of layout.
func countPublicWords(g *graph.Graph) (int, bool) {
	words, anyEncrypted := 0, false
	for _, n := range g.Nodes {
		if !bindable(g, n) {
			continue
		}
		switch n.Out.Visibility {
		case tensor.Public:
			if n.Op != graph.OpConst {
				words += n.Out.Numel()
			}
		case tensor.Onchain:
			// Attested values always occupy instance rows, even for
			// parameters the graph carries, so the chain can supply them.
			words += n.Out.Numel()
		case tensor.Hashed:
			words++
		case tensor.Encrypted:
			words += n.Out.Numel()
			anyEncrypted = true
		}
	}
	if anyEncrypted {
		words++
	}
	return words, anyEncrypted
}

func (c *comp) lowerNode(n *graph.Node) error {
	in := func(i int) []int32 { return c.slots[n.Inputs[i]] }
	shapeOf := func(i int) []int { return c.g.Nodes[n.Inputs[i]].Out.Dims }

	switch n.Op {
	case graph.OpInput:
		ss := make([]int32, n.Out.Numel())
		for i := range ss {
			ss[i] = c.lo.slot(circuit.TapeOp{Kind: circuit.TapeInput, Imm: int64(c.inCur)})
			c.inCur++
		}
		c.slots[n.ID] = ss

	case graph.OpConst:
		ss := make([]int32, len(n.Const))
		for i, v := range n.Const {
			ss[i] = c.lo.slot(circuit.TapeOp{Kind: circuit.TapeConst, Imm: v})
		}
		c.slots[n.ID] = ss

	case graph.OpMatMul:
		plan, err := tensor.MatMulPlan(shapeOf(0), shapeOf(1))
		if err != nil {
			return err
		}
		c.slots[n.ID] = c.macNode(plan, in(0), in(1))

	case graph.OpConv2D:
		plan, err := tensor.Conv2DPlan(shapeOf(0), shapeOf(1), n.Stride, n.Pad)
		if err != nil {
			return err
		}
		// Plan terms index the kernel first, the input second.
		c.slots[n.ID] = c.macNode(plan, in(1), in(0))

	case graph.OpSumPool2D:
		plan, err := tensor.SumPool2DPlan(shapeOf(0), n.Window, n.Stride)
		if err != nil {
			return err
		}
		c.slots[n.ID] = c.macNode(plan, in(0), nil)

	case graph.OpReduceSum:
		c.slots[n.ID] = c.macNode(tensor.ReduceSumPlan(shapeOf(0)), in(0), nil)

	case graph.OpAdd, graph.OpSub, graph.OpMul:
		kind := map[graph.OpKind]circuit.TapeOpKind{
			graph.OpAdd: circuit.TapeAdd,
			graph.OpSub: circuit.TapeSub,
			graph.OpMul: circuit.TapeMul,
		}[n.Op]
		xs, ys := in(0), in(1)
		ss := make([]int32, len(xs))
		for i := range xs {
			ss[i] = c.lo.binOp(kind, xs[i], ys[i])
		}
		c.slots[n.ID] = ss

	case graph.OpReshape, graph.OpFlatten:
		c.slots[n.ID] = in(0)

	case graph.OpRescale:
		tbl := c.lo.table(circuit.TableDiv, c.g.Cfg.LookupBits, 0, n.Divisor)
		c.slots[n.ID] = c.lookupNode(tbl, in(0))

	case graph.OpRelu:
		tbl := c.lo.table(circuit.TableRelu, c.g.Cfg.LookupBits, 0, 0)
		c.slots[n.ID] = c.lookupNode(tbl, in(0))

	case graph.OpSigmoid:
		tbl := c.lo.table(circuit.TableSigmoid, c.g.Cfg.LookupBits, n.Out.Scale, 0)
		c.slots[n.ID] = c.lookupNode(tbl, in(0))

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperation, n.Op)
	}
	return nil
}

func (c *comp) macNode(plan *tensor.MacPlan, aSlots, bSlots []int32) []int32 {
	ss := make([]int32, len(plan.Terms))
	for o, terms := range plan.Terms {
		ss[o] = c.lo.macChain(terms, aSlots, bSlots)
	}
	return ss
}

func (c *comp) lookupNode(tbl int32, ins []int32) []int32 {
	ss := make([]int32, len(ins))
	for i, s := range ins {
		ss[i] = c.lo.lookupRow(tbl, s)
	}
	return ss
}

// bindNode surfaces a tensor according to its visibility: public and
// onchain values take reserved instance rows, hashed tensors bind through
// a MiMC digest, encrypted tensors through their ciphertext. Public
// parameters are pinned into the fixed columns instead.
func (c *comp) bindNode(n *graph.Node) error {
	ss := c.slots[n.ID]
	switch n.Out.Visibility {
	case tensor.Private:
		return nil

	case tensor.Public:
		if n.Op == graph.OpConst {
			for i, s := range ss {
				c.lo.pinConst(s, n.Const[i])
			}
			return nil
		}
		for _, s := range ss {
			if err := c.lo.bindPublic(s); err != nil {
				return err
			}
		}
		return nil

	case tensor.Onchain:
		for _, s := range ss {
			if err := c.lo.bindOnchain(s); err != nil {
				return err
			}
		}
		return nil

	case tensor.Hashed:
		return c.lo.bindPublic(c.lo.mimcDigest(ss))

	case tensor.Encrypted:
		for _, ct := range c.lo.ctrEncrypt(c.lo.key(), ss) {
			if err := c.lo.bindPublic(ct); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: visibility %s", ErrUnsupportedOperation, n.Out.Visibility)
	}
}

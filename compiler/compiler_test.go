package compiler_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/graphproof/graphproof/checker"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/compiler"
	"github.com/graphproof/graphproof/field"
	"github.com/graphproof/graphproof/gadget"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/tensor"
	"github.com/graphproof/graphproof/witness"
)

func linearModel(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 0, 0, 3}, 0)
	bias := b.ConstInts("b", []int{2, 1}, []int64{1, 1}, 0)
	g, err := b.Build(b.Add(b.MatMul(w, x), bias))
	require.NoError(t, err)
	return g
}

func TestCompileLinearModel(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)

	require.Equal(t, 2, c.NumPublic)
	require.Empty(t, c.Tables)
	require.Equal(t, 16, c.N)

	a, err := witness.Generate(c, []int64{3, 4}, nil)
	require.NoError(t, err)
	require.Equal(t, field.FromInt64(7), a.Public[0])
	require.Equal(t, field.FromInt64(13), a.Public[1])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileDeterministic(t *testing.T) {
	g := linearModel(t)
	c1, err := compiler.Compile(g)
	require.NoError(t, err)
	c2, err := compiler.Compile(g)
	require.NoError(t, err)
	d1, err := c1.Digest()
	require.NoError(t, err)
	d2, err := c2.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestCompileRescaleRelu(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 2, ParamScale: 2,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 10,
	})
	x := b.Input("x", []int{1, 1})
	w := b.ConstInts("w", []int{1, 1}, []int64{6}, 2) // 1.5 at scale 2
	g, err := b.Build(b.Relu(b.MatMul(w, x)))
	require.NoError(t, err)

	c, err := compiler.Compile(g)
	require.NoError(t, err)
	require.Len(t, c.Tables, 2)
	require.Equal(t, circuit.TableDiv, c.Tables[0].Kind)
	require.Equal(t, int64(4), c.Tables[0].Divisor)
	require.Equal(t, circuit.TableRelu, c.Tables[1].Kind)

	// x = -1.25 at scale 2 is -5; 6*-5 = -30 at scale 4; floor(-30/4) = -8;
	// relu clamps to 0.
	a, err := witness.Generate(c, []int64{-5}, nil)
	require.NoError(t, err)
	require.Equal(t, field.FromInt64(0), a.Public[0])
	require.Empty(t, checker.Check(c, a))

	// x = 1.25 is 5; 6*5 = 30; floor(30/4) = 7; relu keeps it.
	a, err = witness.Generate(c, []int64{5}, nil)
	require.NoError(t, err)
	require.Equal(t, field.FromInt64(7), a.Public[0])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileLookupRangeExceeded(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 2, ParamScale: 2,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 4,
	})
	x := b.Input("x", []int{1})
	g, err := b.Build(b.Relu(x))
	require.NoError(t, err)
	c, err := compiler.Compile(g)
	require.NoError(t, err)

	_, err = witness.Generate(c, []int64{100}, nil)
	require.ErrorIs(t, err, gadget.ErrOutOfRangeValue)
}

func TestCompileHashedInput(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Hashed, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{3})
	w := b.ConstInts("w", []int{3}, []int64{1, 2, 3}, 0)
	g, err := b.Build(b.Mul(x, w))
	require.NoError(t, err)

	c, err := compiler.Compile(g)
	require.NoError(t, err)
	// one digest word plus three output words
	require.Equal(t, 4, c.NumPublic)

	xs := []int64{5, -6, 7}
	a, err := witness.Generate(c, xs, nil)
	require.NoError(t, err)
	require.Equal(t, gadget.DigestOf(field.FromInt64Slice(xs)), a.Public[0])
	require.Equal(t, field.FromInt64(5), a.Public[1])
	require.Equal(t, field.FromInt64(-12), a.Public[2])
	require.Equal(t, field.FromInt64(21), a.Public[3])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileEncryptedInput(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Encrypted, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2})
	g, err := b.Build(b.Relu(x))
	require.NoError(t, err)

	c, err := compiler.Compile(g)
	require.NoError(t, err)
	// two ciphertext words, two output words, one key commitment
	require.Equal(t, 5, c.NumPublic)

	_, err = witness.Generate(c, []int64{1, 2}, nil)
	require.ErrorIs(t, err, witness.ErrWitnessMismatch)

	var key fr.Element
	key.SetUint64(42)
	a, err := witness.Generate(c, []int64{1, 2}, &key)
	require.NoError(t, err)

	cts := gadget.CTREncrypt(key, field.FromInt64Slice([]int64{1, 2}))
	require.Equal(t, cts[0], a.Public[0])
	require.Equal(t, cts[1], a.Public[1])
	require.Equal(t, field.FromInt64(1), a.Public[2])
	require.Equal(t, field.FromInt64(2), a.Public[3])
	require.Equal(t, gadget.KeyCommitment(key), a.Public[4])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileOnchainOutput(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Onchain,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 0, 0, 3}, 0)
	bias := b.ConstInts("b", []int{2, 1}, []int64{1, 1}, 0)
	g, err := b.Build(b.Add(b.MatMul(w, x), bias))
	require.NoError(t, err)

	c, err := compiler.Compile(g)
	require.NoError(t, err)
	require.Equal(t, 2, c.NumPublic)
	require.Equal(t, []int32{0, 1}, c.OnchainRows)

	a, err := witness.Generate(c, []int64{3, 4}, nil)
	require.NoError(t, err)
	require.Equal(t, field.FromInt64(7), a.Public[0])
	require.Equal(t, field.FromInt64(13), a.Public[1])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileOnchainParams(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Private, ParamVis: tensor.Onchain, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 0, 0, 3}, 0)
	g, err := b.Build(b.MatMul(w, x))
	require.NoError(t, err)

	c, err := compiler.Compile(g)
	require.NoError(t, err)
	// Attested parameters take instance rows instead of fixed-column pins.
	require.Equal(t, 6, c.NumPublic)
	require.Equal(t, []int32{0, 1, 2, 3}, c.OnchainRows)

	a, err := witness.Generate(c, []int64{3, 4}, nil)
	require.NoError(t, err)
	require.Equal(t, field.FromInt64(2), a.Public[0])
	require.Equal(t, field.FromInt64(3), a.Public[3])
	require.Equal(t, field.FromInt64(6), a.Public[4])
	require.Equal(t, field.FromInt64(12), a.Public[5])
	require.Empty(t, checker.Check(c, a))
}

func TestCompileUnsupportedOp(t *testing.T) {
	g := linearModel(t)
	g.Nodes[len(g.Nodes)-1].Op = graph.OpKind(99)
	_, err := compiler.Compile(g)
	require.ErrorIs(t, err, compiler.ErrUnsupportedOperation)
}

func TestCompiledCircuitRoundTrips(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)

	bs, err := c.MarshalBinary()
	require.NoError(t, err)
	c2 := new(circuit.Circuit)
	require.NoError(t, c2.UnmarshalBinary(bs))

	a, err := witness.Generate(c2, []int64{3, 4}, nil)
	require.NoError(t, err)
	require.Empty(t, checker.Check(c2, a))
}

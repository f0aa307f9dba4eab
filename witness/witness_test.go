package witness_test

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

func reluGraph(t *testing.T, bits uint) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: bits,
	})
	x := b.Input("x", []int{4})
	g, err := b.Build(b.Relu(x))
	require.NoError(t, err)
	return g
}

func TestGenerateStreamTooShort(t *testing.T) {
	c, err := compiler.Compile(reluGraph(t, 8))
	require.NoError(t, err)
	_, err = witness.Generate(c, []int64{1, 2}, nil)
	require.ErrorIs(t, err, witness.ErrWitnessMismatch)
}

func TestGenerateInputBeyondFieldRange(t *testing.T) {
	c, err := compiler.Compile(reluGraph(t, 8))
	require.NoError(t, err)
	_, err = witness.Generate(c, []int64{field.MaxAbs + 1, 0, 0, 0}, nil)
	require.ErrorIs(t, err, gadget.ErrOutOfRangeValue)
}

func TestGenerateMultiplicities(t *testing.T) {
	c, err := compiler.Compile(reluGraph(t, 6))
	require.NoError(t, err)

	// Repeated values land on the same table row.
	a, err := witness.Generate(c, []int64{5, 5, 5, -7}, nil)
	require.NoError(t, err)

	var total fr.Element
	for r := 0; r < c.N; r++ {
		total.Add(&total, &a.M[r])
	}
	var want fr.Element
	want.SetUint64(4)
	require.Equal(t, want, total)

	// Row of value 5 in the relu table: offset 5 + 2^(6-1).
	var three fr.Element
	three.SetUint64(3)
	require.Equal(t, three, a.M[5+32])
	require.Empty(t, checker.Check(c, a))
}

func TestGenerateDeterministic(t *testing.T) {
	c, err := compiler.Compile(reluGraph(t, 8))
	require.NoError(t, err)
	a1, err := witness.Generate(c, []int64{9, -9, 0, 1}, nil)
	require.NoError(t, err)
	a2, err := witness.Generate(c, []int64{9, -9, 0, 1}, nil)
	require.NoError(t, err)
	require.Equal(t, a1, a2)
}

func TestGenerateRejectsCorruptTape(t *testing.T) {
	c, err := compiler.Compile(reluGraph(t, 8))
	require.NoError(t, err)
	for i := range c.Tape {
		if c.Tape[i].Kind == circuit.TapeInput {
			c.Tape[i].Imm = 99
			break
		}
	}
	_, err = witness.Generate(c, []int64{1, 2, 3, 4}, nil)
	require.ErrorIs(t, err, witness.ErrWitnessMismatch)
}

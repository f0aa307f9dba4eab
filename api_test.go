package graphproof_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/graphproof/graphproof"
	"github.com/graphproof/graphproof/aggregator"
	"github.com/graphproof/graphproof/backend"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/setup"
	"github.com/graphproof/graphproof/tensor"
)

// linearModel is y = Wx + b with W = [[2,0],[0,3]] and b = [1,1] at scale 0,
// private input and public parameters.
func linearModel(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(graph.Config{
		InputVis:   tensor.Private,
		ParamVis:   tensor.Public,
		OutputVis:  tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 0, 0, 3}, 0)
	bias := b.ConstInts("b", []int{2, 1}, []int64{1, 1}, 0)
	g, err := b.Build(b.Add(b.MatMul(w, x), bias))
	require.NoError(t, err)
	return g
}

func pipeline(t *testing.T) (*graphproof.CompileResult, *setup.ProvingKey, *setup.VerifyingKey) {
	t.Helper()
	cr, err := graphproof.CompileModel(linearModel(t))
	require.NoError(t, err)
	c := cr.GetCircuit()
	srs, err := graphproof.GenSRS(setup.MinSRSSize(c), [32]byte{7})
	require.NoError(t, err)
	pk, vk, err := graphproof.Setup(c, srs)
	require.NoError(t, err)
	return cr, pk, vk
}

func TestEndToEnd(t *testing.T) {
	cr, pk, vk := pipeline(t)
	c := cr.GetCircuit()
	require.Equal(t, 2, c.NumPublic)
	require.Equal(t, uint(0), c.OutputScale)

	asg, err := cr.GenWitness(&graph.ModelInput{InputData: [][]float64{{3, 4}}}, nil)
	require.NoError(t, err)
	require.NoError(t, graphproof.Mock(c, asg))

	var want fr.Element
	want.SetUint64(7)
	require.Equal(t, want, asg.Public[0])
	want.SetUint64(13)
	require.Equal(t, want, asg.Public[1])

	proof, err := graphproof.Prove(pk, c, asg, graphproof.WithBlindingSeed([32]byte{8}))
	require.NoError(t, err)
	require.NoError(t, graphproof.Verify(vk, proof, asg.Public))

	// Claiming y = [7, 14] for the same proof must be rejected.
	wrong := append([]fr.Element(nil), asg.Public...)
	wrong[1].SetUint64(14)
	require.ErrorIs(t, graphproof.Verify(vk, proof, wrong), backend.ErrPublicInputMismatch)
}

func TestEndToEndAggregate(t *testing.T) {
	cr, pk, vk := pipeline(t)
	c := cr.GetCircuit()

	entries := make([]aggregator.Entry, 2)
	for i, in := range [][]float64{{3, 4}, {1, 2}} {
		asg, err := cr.GenWitness(&graph.ModelInput{InputData: [][]float64{in}}, nil)
		require.NoError(t, err)
		proof, err := graphproof.Prove(pk, c, asg, graphproof.WithBlindingSeed([32]byte{byte(20 + i)}))
		require.NoError(t, err)
		entries[i] = aggregator.Entry{Vk: vk, Proof: proof, Public: asg.Public}
	}

	require.NoError(t, graphproof.VerifyAggregate(entries))
	claim, err := graphproof.AggregateProofs(entries)
	require.NoError(t, err)
	require.NoError(t, backend.VerifyClaim(vk, claim))

	entries[1].Public[0].SetUint64(99)
	require.Error(t, graphproof.VerifyAggregate(entries))
}

func TestCodegenLayout(t *testing.T) {
	_, _, vk := pipeline(t)
	code, layout, err := graphproof.CodegenEVM(vk)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Equal(t, 2, layout.PublicWords)
	require.Empty(t, layout.OnchainWords)
	require.Equal(t, layout.Public+64, layout.Size)
}

package checker_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/graphproof/graphproof/checker"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/compiler"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/tensor"
	"github.com/graphproof/graphproof/witness"
)

func fixture(t *testing.T) (*circuit.Circuit, *circuit.Assignment) {
	t.Helper()
	b := graph.NewBuilder(graph.Config{
		InputScale: 1, ParamScale: 1,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 1, 0, 3}, 1)
	g, err := b.Build(b.Relu(b.MatMul(w, x)))
	require.NoError(t, err)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	a, err := witness.Generate(c, []int64{6, -4}, nil)
	require.NoError(t, err)
	require.Empty(t, checker.Check(c, a))
	return c, a
}

func kinds(vs []checker.Violation) map[string]bool {
	out := make(map[string]bool)
	for _, v := range vs {
		out[v.Kind] = true
	}
	return out
}

func TestTamperedGate(t *testing.T) {
	c, a := fixture(t)
	// Corrupt the output cell of a multiplication row.
	for r := c.NumPublic; r < len(c.Rows); r++ {
		if c.Fixed[circuit.QM][r].IsOne() {
			var one fr.Element
			one.SetOne()
			a.O[r].Add(&a.O[r], &one)
			break
		}
	}
	vs := checker.Check(c, a)
	require.NotEmpty(t, vs)
	require.True(t, kinds(vs)["gate"])
	require.ErrorIs(t, checker.Satisfied(c, a), checker.ErrConstraintViolation)
}

func TestTamperedPublicInput(t *testing.T) {
	c, a := fixture(t)
	var one fr.Element
	one.SetOne()
	a.Public[0].Add(&a.Public[0], &one)
	vs := checker.Check(c, a)
	require.NotEmpty(t, vs)
	ks := kinds(vs)
	require.True(t, ks["gate"] || ks["public"])
}

func TestTamperedLookup(t *testing.T) {
	c, a := fixture(t)
	for r := 0; r < c.N; r++ {
		if c.Fixed[circuit.QLk][r].IsOne() {
			var one fr.Element
			one.SetOne()
			a.O[r].Add(&a.O[r], &one)
			break
		}
	}
	vs := checker.Check(c, a)
	require.NotEmpty(t, vs)
	require.True(t, kinds(vs)["lookup"])
}

func TestTamperedMultiplicity(t *testing.T) {
	c, a := fixture(t)
	var one fr.Element
	one.SetOne()
	a.M[0].Add(&a.M[0], &one)
	vs := checker.Check(c, a)
	require.NotEmpty(t, vs)
	require.True(t, kinds(vs)["multiplicity"])
}

func TestTamperedCopy(t *testing.T) {
	c, a := fixture(t)
	// Break one side of a copy cycle. Pick a wire whose sigma moves it and
	// whose column is L, then change only that cell.
	for w := int64(0); w < int64(c.N); w++ {
		if c.Sigma[w] != w {
			var one fr.Element
			one.SetOne()
			a.L[w].Add(&a.L[w], &one)
			break
		}
	}
	vs := checker.Check(c, a)
	require.NotEmpty(t, vs)
	require.True(t, kinds(vs)["copy"])
}

func TestWrongPublicCount(t *testing.T) {
	c, a := fixture(t)
	a.Public = a.Public[:len(a.Public)-1]
	vs := checker.Check(c, a)
	require.Len(t, vs, 1)
	require.Equal(t, "public", vs[0].Kind)
}

func TestViolationString(t *testing.T) {
	v := checker.Violation{Kind: "gate", Row: 7, Label: "relu#3", Detail: "evaluates to 1"}
	require.Contains(t, v.String(), "gate constraint failed at row 7")
	require.Contains(t, v.String(), "relu#3")
}

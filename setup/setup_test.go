package setup

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/stretchr/testify/require"

	"github.com/graphproof/graphproof/compiler"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/tensor"
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

func TestKeysDeterministic(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := NewSRS(MinSRSSize(c), [32]byte{7})
	require.NoError(t, err)

	_, vk1, err := Keys(c, srs)
	require.NoError(t, err)
	_, vk2, err := Keys(c, srs)
	require.NoError(t, err)
	require.Equal(t, vk1.MarshalBinary(), vk2.MarshalBinary())
	require.Equal(t, vk1.Digest(), vk2.Digest())
}

func TestKeysCachedShares(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := NewSRS(MinSRSSize(c), [32]byte{9})
	require.NoError(t, err)

	pk1, vk1, err := KeysCached(c, srs)
	require.NoError(t, err)
	pk2, vk2, err := KeysCached(c, srs)
	require.NoError(t, err)
	require.Same(t, pk1, pk2)
	require.Same(t, vk1, vk2)

	// A different reference string misses the cache.
	other, err := NewSRS(MinSRSSize(c), [32]byte{10})
	require.NoError(t, err)
	pk3, _, err := KeysCached(c, other)
	require.NoError(t, err)
	require.NotSame(t, pk1, pk3)
}

func TestKeysRejectSmallSRS(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := NewSRS(4, [32]byte{7})
	require.NoError(t, err)
	_, _, err = Keys(c, srs)
	require.ErrorIs(t, err, ErrSRSTooSmall)
}

func TestVerifyingKeyRoundTrip(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := NewSRS(MinSRSSize(c), [32]byte{42})
	require.NoError(t, err)
	_, vk, err := Keys(c, srs)
	require.NoError(t, err)

	data := vk.MarshalBinary()
	got := &VerifyingKey{}
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, data, got.MarshalBinary())

	require.Error(t, got.UnmarshalBinary(data[:len(data)-3]))
}

func TestProvingKeyRoundTrip(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := NewSRS(MinSRSSize(c), [32]byte{42})
	require.NoError(t, err)
	pk, vk, err := Keys(c, srs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pk.Save(&buf))
	got, err := LoadProvingKey(&buf)
	require.NoError(t, err)
	require.Equal(t, pk.Domain.Cardinality, got.Domain.Cardinality)
	require.Equal(t, pk.Fixed, got.Fixed)
	require.Equal(t, vk.MarshalBinary(), got.Vk.MarshalBinary())
}

func TestSRSRoundTrip(t *testing.T) {
	srs, err := NewSRS(32, [32]byte{1, 2, 3})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, SaveSRS(&buf, srs))
	got, err := LoadSRS(&buf)
	require.NoError(t, err)
	require.Equal(t, srs.Vk.G2, got.Vk.G2)
	require.Equal(t, len(srs.Pk.G1), len(got.Pk.G1))
}

func TestSigmaColumnIdentity(t *testing.T) {
	g := linearModel(t)
	c, err := compiler.Compile(g)
	require.NoError(t, err)
	domain := fft.NewDomain(uint64(c.N))
	shifts := cosetShifts(domain)

	// Wherever sigma fixes a cell, the column must carry the cell's own
	// shifted-domain encoding.
	for col := 0; col < 3; col++ {
		vals := sigmaColumn(c, domain, col)
		var omr fr.Element
		omr.SetOne()
		for r := 0; r < c.N; r++ {
			if c.Sigma[col*c.N+r] == int64(col*c.N+r) {
				var want fr.Element
				want.Mul(&shifts[col], &omr)
				require.Equal(t, want, vals[r], "col %d row %d", col, r)
			}
			omr.Mul(&omr, &domain.Generator)
		}
	}
}

func TestToCoefficientsInterpolates(t *testing.T) {
	domain := fft.NewDomain(16)
	evals := make([]fr.Element, 16)
	for i := range evals {
		evals[i].SetInt64(int64(i*i + 1))
	}
	coeffs := toCoefficients(domain, append([]fr.Element(nil), evals...))

	// Horner at each domain point reproduces the evaluation.
	var x fr.Element
	x.SetOne()
	for r := 0; r < 16; r++ {
		var acc fr.Element
		for i := len(coeffs) - 1; i >= 0; i-- {
			acc.Mul(&acc, &x)
			acc.Add(&acc, &coeffs[i])
		}
		require.Equal(t, evals[r], acc, "row %d", r)
		x.Mul(&x, &domain.Generator)
	}
}

package backend_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/graphproof/graphproof/backend"
	"github.com/graphproof/graphproof/checker"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/compiler"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/setup"
	"github.com/graphproof/graphproof/tensor"
	"github.com/graphproof/graphproof/witness"
)

type fixture struct {
	circ *circuit.Circuit
	pk   *setup.ProvingKey
	vk   *setup.VerifyingKey
	asg  *circuit.Assignment
}

func buildFixture(t *testing.T, g *graph.Graph, stream []int64, key *fr.Element) *fixture {
	t.Helper()
	circ, err := compiler.Compile(g)
	require.NoError(t, err)
	srs, err := setup.NewSRS(setup.MinSRSSize(circ), [32]byte{1})
	require.NoError(t, err)
	pk, vk, err := setup.Keys(circ, srs)
	require.NoError(t, err)
	asg, err := witness.Generate(circ, stream, key)
	require.NoError(t, err)
	return &fixture{circ: circ, pk: pk, vk: vk, asg: asg}
}

func linearFixture(t *testing.T) *fixture {
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
	return buildFixture(t, g, []int64{3, 4}, nil)
}

func reluFixture(t *testing.T) *fixture {
	t.Helper()
	b := graph.NewBuilder(graph.Config{
		InputScale: 2, ParamScale: 2,
		InputVis: tensor.Private, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{4, 1})
	g, err := b.Build(b.Relu(x))
	require.NoError(t, err)
	return buildFixture(t, g, []int64{-5, 2, 7, -9}, nil)
}

func TestProveVerifyLinear(t *testing.T) {
	fx := linearFixture(t)

	// y = Wx + b with x = (3, 4) gives (7, 13).
	var want0, want1 fr.Element
	want0.SetInt64(7)
	want1.SetInt64(13)
	require.Equal(t, []fr.Element{want0, want1}, fx.asg.Public)

	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	require.NoError(t, backend.Verify(fx.vk, proof, fx.asg.Public))
}

func TestVerifyRejectsWrongPublicInput(t *testing.T) {
	fx := linearFixture(t)
	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)

	wrong := append([]fr.Element(nil), fx.asg.Public...)
	wrong[1].SetInt64(14)
	err = backend.Verify(fx.vk, proof, wrong)
	require.ErrorIs(t, err, backend.ErrPublicInputMismatch)

	short := fx.asg.Public[:1]
	err = backend.Verify(fx.vk, proof, short)
	require.ErrorIs(t, err, backend.ErrPublicInputMismatch)
}

func TestProveVerifyWithLookups(t *testing.T) {
	fx := reluFixture(t)

	var zero, two, seven fr.Element
	two.SetInt64(2)
	seven.SetInt64(7)
	require.Equal(t, []fr.Element{zero, two, seven, zero}, fx.asg.Public)

	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	require.NoError(t, backend.Verify(fx.vk, proof, fx.asg.Public))
}

func TestProveVerifyHashedInput(t *testing.T) {
	b := graph.NewBuilder(graph.Config{
		InputScale: 0, ParamScale: 0,
		InputVis: tensor.Hashed, ParamVis: tensor.Public, OutputVis: tensor.Public,
		LookupBits: 8,
	})
	x := b.Input("x", []int{2, 1})
	w := b.ConstInts("w", []int{2, 2}, []int64{2, 0, 0, 3}, 0)
	g, err := b.Build(b.MatMul(w, x))
	require.NoError(t, err)
	fx := buildFixture(t, g, []int64{3, 4}, nil)

	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	require.NoError(t, backend.Verify(fx.vk, proof, fx.asg.Public))

	// Claiming a different preimage digest must not verify.
	wrong := append([]fr.Element(nil), fx.asg.Public...)
	var one fr.Element
	one.SetOne()
	wrong[0].Add(&wrong[0], &one)
	require.ErrorIs(t, backend.Verify(fx.vk, proof, wrong), backend.ErrPublicInputMismatch)
}

func TestProofDeterministicWithSeed(t *testing.T) {
	fx := linearFixture(t)
	seed := [32]byte{9, 9, 9}
	p1, err := backend.Prove(fx.pk, fx.circ, fx.asg, backend.WithBlindingSeed(seed))
	require.NoError(t, err)
	p2, err := backend.Prove(fx.pk, fx.circ, fx.asg, backend.WithBlindingSeed(seed))
	require.NoError(t, err)
	require.Equal(t, p1.MarshalBinary(), p2.MarshalBinary())
	require.NoError(t, backend.Verify(fx.vk, p1, fx.asg.Public))
}

func TestProofsBlindedIndependently(t *testing.T) {
	fx := linearFixture(t)
	p1, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	p2, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	require.NotEqual(t, p1.MarshalBinary(), p2.MarshalBinary())
	require.NoError(t, backend.Verify(fx.vk, p1, fx.asg.Public))
	require.NoError(t, backend.Verify(fx.vk, p2, fx.asg.Public))
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	fx := linearFixture(t)
	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)

	var one fr.Element
	one.SetOne()

	tampered := *proof
	tampered.Evals[backend.EvA].Add(&tampered.Evals[backend.EvA], &one)
	require.ErrorIs(t, backend.Verify(fx.vk, &tampered, fx.asg.Public), backend.ErrInvalidProof)

	tampered = *proof
	tampered.A, tampered.B = tampered.B, tampered.A
	require.ErrorIs(t, backend.Verify(fx.vk, &tampered, fx.asg.Public), backend.ErrInvalidProof)

	tampered = *proof
	tampered.Wz = tampered.Wzw
	require.ErrorIs(t, backend.Verify(fx.vk, &tampered, fx.asg.Public), backend.ErrInvalidProof)
}

func TestProveRejectsCorruptAssignment(t *testing.T) {
	fx := linearFixture(t)
	var one fr.Element
	one.SetOne()
	fx.asg.L[0].Add(&fx.asg.L[0], &one)
	_, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.ErrorIs(t, err, checker.ErrConstraintViolation)
}

func TestProveRejectsShortAssignment(t *testing.T) {
	fx := linearFixture(t)
	fx.asg.M = fx.asg.M[:len(fx.asg.M)-1]
	_, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.ErrorIs(t, err, backend.ErrSerialization)
}

func TestProveRejectsForeignKey(t *testing.T) {
	lin := linearFixture(t)
	relu := reluFixture(t)
	_, err := backend.Prove(relu.pk, lin.circ, lin.asg)
	require.ErrorIs(t, err, backend.ErrKeyMismatch)
}

func TestProofRoundTrip(t *testing.T) {
	fx := linearFixture(t)
	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg, backend.WithBlindingSeed([32]byte{5}))
	require.NoError(t, err)

	data := proof.MarshalBinary()
	got := &backend.Proof{}
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, data, got.MarshalBinary())
	require.NoError(t, backend.Verify(fx.vk, got, fx.asg.Public))

	require.ErrorIs(t, got.UnmarshalBinary(data[:len(data)-1]), backend.ErrMalformedProof)
	data[0] ^= 0xff
	require.ErrorIs(t, got.UnmarshalBinary(data), backend.ErrMalformedProof)
}

func TestCalldataLayout(t *testing.T) {
	fx := linearFixture(t)
	proof, err := backend.Prove(fx.pk, fx.circ, fx.asg)
	require.NoError(t, err)
	data := proof.Calldata(fx.asg.Public)
	want := 12*64 + (backend.NumEval+backend.NumEvalShift+len(fx.asg.Public))*32
	require.Len(t, data, want)
}

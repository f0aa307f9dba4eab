package circuit

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func tinyCircuit(t *testing.T) *Circuit {
	t.Helper()
	c := &Circuit{N: MinRows, NumPublic: 1}
	for i := 0; i < NumFixed; i++ {
		c.Fixed[i] = make([]fr.Element, c.N)
	}
	c.Sigma = make([]int64, NumAdvice*c.N)
	for i := range c.Sigma {
		c.Sigma[i] = int64(i)
	}
	c.Tape = []TapeOp{
		{Kind: TapeInput, Imm: 0},
		{Kind: TapeConst, Imm: -3},
		{Kind: TapeAdd, A: 0, B: 1},
	}
	c.Rows = []RowRefs{
		{L: 2, R: -1, O: -1},
		{L: 0, R: 1, O: 2},
	}
	c.PublicSlots = []int32{2}
	c.Fixed[QL][0].SetOne()
	c.Spans = []Span{{Start: 1, End: 2, Label: "add"}}
	require.NoError(t, c.Validate())
	return c
}

func TestValidateRejectsBadStructure(t *testing.T) {
	c := tinyCircuit(t)
	c.N = 24
	require.ErrorIs(t, c.Validate(), ErrMalformedCircuit)

	c = tinyCircuit(t)
	c.Sigma[3] = c.Sigma[4]
	require.ErrorIs(t, c.Validate(), ErrMalformedCircuit)

	c = tinyCircuit(t)
	c.Tape = append(c.Tape, TapeOp{Kind: TapeMul, A: 5, B: 0})
	require.ErrorIs(t, c.Validate(), ErrMalformedCircuit)

	c = tinyCircuit(t)
	c.Rows[0].L = 99
	require.ErrorIs(t, c.Validate(), ErrMalformedCircuit)

	c = tinyCircuit(t)
	c.PublicSlots = nil
	require.ErrorIs(t, c.Validate(), ErrMalformedCircuit)
}

func TestTapeOpValidation(t *testing.T) {
	cases := []struct {
		op TapeOp
		ok bool
	}{
		{TapeOp{Kind: TapeConst, Imm: 7}, true},
		{TapeOp{Kind: TapeInput, Imm: -1}, false},
		{TapeOp{Kind: TapeMulAdd, A: -1, B: 0, C: 1}, true},
		{TapeOp{Kind: TapeMulAdd, A: 3, B: 0, C: 1}, false},
		{TapeOp{Kind: TapeRoundConst, Imm: 5}, true},
		{TapeOp{Kind: TapeRoundConst, Imm: -2}, false},
		{TapeOp{Kind: TapeLookup, A: 0, Table: 1}, false},
		{TapeOp{Kind: TapeLookup, A: 0, Table: 0}, true},
	}
	for _, tc := range cases {
		err := tc.op.validate(2, 3, 1)
		if tc.ok {
			require.NoError(t, err, "%v", tc.op)
		} else {
			require.Error(t, err, "%v", tc.op)
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	c := tinyCircuit(t)
	c.Tables = []TableSpec{{Kind: TableDiv, Bits: 6, Divisor: 16, Tag: 1}}
	c.GraphDigest[0] = 0xab

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))
	c2, err := Load(&buf)
	require.NoError(t, err)

	require.Equal(t, c.N, c2.N)
	require.Equal(t, c.NumPublic, c2.NumPublic)
	require.Equal(t, c.Sigma, c2.Sigma)
	require.Equal(t, c.Tables, c2.Tables)
	require.Equal(t, c.Tape, c2.Tape)
	require.Equal(t, c.Rows, c2.Rows)
	require.Equal(t, c.Spans, c2.Spans)
	require.Equal(t, c.GraphDigest, c2.GraphDigest)

	d1, err := c.Digest()
	require.NoError(t, err)
	d2, err := c2.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	// Corrupt one byte of the body and the load must fail loudly or parse
	// to a different digest; truncation must always fail.
	raw, err := c.MarshalBinary()
	require.NoError(t, err)
	_, err = Load(bytes.NewReader(raw[:len(raw)-2]))
	require.Error(t, err)
	_, err = Load(bytes.NewReader(raw[8:]))
	require.Error(t, err)
}

func TestGateEval(t *testing.T) {
	one := fr.One()
	var negOne, zero fr.Element
	negOne.Neg(&one)

	mk := func(v int64) fr.Element {
		var e fr.Element
		e.SetInt64(v)
		return e
	}

	// 3*4 - 12 through the multiplication wires.
	got := GateEval(zero, zero, one, negOne, zero, zero, mk(3), mk(4), mk(12), zero)
	require.True(t, got.IsZero())

	// Chained sum: l*r + o(next) - o with 2*5 + 3 = 13.
	got = GateEval(zero, zero, one, negOne, one, zero, mk(2), mk(5), mk(13), mk(3))
	require.True(t, got.IsZero())

	got = GateEval(zero, zero, one, negOne, zero, zero, mk(3), mk(4), mk(11), zero)
	require.False(t, got.IsZero())
}

func TestSpanFor(t *testing.T) {
	c := tinyCircuit(t)
	require.Equal(t, "add", c.SpanFor(1))
	require.Equal(t, "", c.SpanFor(0))
	require.Equal(t, "", c.SpanFor(5))
}

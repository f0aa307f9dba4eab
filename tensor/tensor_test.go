package tensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatMulPlanEval(t *testing.T) {
	p, err := MatMulPlan([]int{2, 3}, []int{3, 2})
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, p.OutDims)

	a := []int64{1, 2, 3, 4, 5, 6}
	b := []int64{7, 8, 9, 10, 11, 12}
	out, err := p.Eval(a, b)
	require.NoError(t, err)
	require.Equal(t, []int64{58, 64, 139, 154}, out)

	_, err = MatMulPlan([]int{2, 3}, []int{2, 2})
	require.Error(t, err)
}

func TestConv2DPlanEval(t *testing.T) {
	// 1x3x3 input, single 1x1x2x2 kernel of ones, stride 1, no padding:
	// each output is the sum of a 2x2 window.
	p, err := Conv2DPlan([]int{1, 3, 3}, []int{1, 1, 2, 2}, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, p.OutDims)

	ker := []int64{1, 1, 1, 1}
	in := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out, err := p.Eval(ker, in)
	require.NoError(t, err)
	require.Equal(t, []int64{12, 16, 24, 28}, out)
}

func TestConv2DPadding(t *testing.T) {
	// With pad 1 the corner window overlaps a single input element.
	p, err := Conv2DPlan([]int{1, 2, 2}, []int{1, 1, 2, 2}, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 3}, p.OutDims)
	require.Len(t, p.Terms[0], 1)
	require.Len(t, p.Terms[4], 4)

	ker := []int64{1, 1, 1, 1}
	in := []int64{1, 2, 3, 4}
	out, err := p.Eval(ker, in)
	require.NoError(t, err)
	require.Equal(t, int64(1), out[0])
	require.Equal(t, int64(10), out[4])
}

func TestSumPoolAndReduce(t *testing.T) {
	p, err := SumPool2DPlan([]int{1, 4, 4}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, p.OutDims)

	in := make([]int64, 16)
	for i := range in {
		in[i] = int64(i)
	}
	out, err := p.Eval(in, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 18, 42, 50}, out)

	r := ReduceSumPlan([]int{1, 4, 4})
	total, err := r.Eval(in, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{120}, total)
}

func TestElementwise(t *testing.T) {
	a := []int64{1, -2, 3}
	b := []int64{4, 5, -6}

	sum, err := AddVals(a, b)
	require.NoError(t, err)
	require.Equal(t, []int64{5, 3, -3}, sum)

	diff, err := SubVals(a, b)
	require.NoError(t, err)
	require.Equal(t, []int64{-3, -7, 9}, diff)

	prod, err := MulVals(a, b)
	require.NoError(t, err)
	require.Equal(t, []int64{4, -10, -18}, prod)

	_, err = AddVals(a, b[:2])
	require.Error(t, err)
}

func TestCheckedOverflow(t *testing.T) {
	_, err := CheckedMul(int64(1)<<32, int64(1)<<32)
	require.Error(t, err)
	_, err = CheckedAdd(macLimit, 1)
	require.Error(t, err)
	v, err := CheckedMul(-(int64(1) << 30), int64(1)<<30)
	require.NoError(t, err)
	require.Equal(t, -(int64(1) << 60), v)
}

func TestShapeHelpers(t *testing.T) {
	s, err := Pool2DShape([]int{3, 8, 8}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 4}, s)

	require.NoError(t, ReshapeCheck([]int{2, 3}, []int{6}))
	require.Error(t, ReshapeCheck([]int{2, 3}, []int{5}))

	tn := New([]int{2, 2}, 4, Public)
	require.Equal(t, 4, tn.Numel())
	_, err = tn.WithValues([]int64{1, 2, 3})
	require.Error(t, err)
	wv, err := tn.WithValues([]int64{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, uint(4), wv.Scale)
}

func TestVisibilityText(t *testing.T) {
	b, err := Hashed.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "hashed", string(b))

	var v Visibility
	require.NoError(t, v.UnmarshalText([]byte("encrypted")))
	require.Equal(t, Encrypted, v)
	require.Error(t, v.UnmarshalText([]byte("bogus")))
}

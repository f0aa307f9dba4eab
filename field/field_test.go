package field

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 7, -13, 1 << 40, -(1 << 40), MaxAbs, -MaxAbs} {
		e := FromInt64(v)
		got, err := ToInt64(e)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestNegativeEncoding(t *testing.T) {
	a := FromInt64(-5)
	b := FromInt64(5)
	var sum = a
	sum.Add(&sum, &b)
	require.True(t, sum.IsZero())
}

func TestQuantize(t *testing.T) {
	v, err := Quantize(1.5, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	v, err = Quantize(-1.25, 2)
	require.NoError(t, err)
	require.Equal(t, int64(-5), v)

	// half away from zero
	v, err = Quantize(0.5, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
	v, err = Quantize(-0.5, 0)
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)

	_, err = Quantize(1e300, 4)
	require.Error(t, err)
}

func TestRescaleDivRem(t *testing.T) {
	cases := []struct{ v, d, q, r int64 }{
		{7, 4, 1, 3},
		{-7, 4, -2, 1},
		{8, 4, 2, 0},
		{-8, 4, -2, 0},
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{-1, 16, -1, 15},
	}
	for _, c := range cases {
		q, r := RescaleDivRem(c.v, c.d)
		require.Equal(t, c.q, q, "v=%d d=%d", c.v, c.d)
		require.Equal(t, c.r, r, "v=%d d=%d", c.v, c.d)
		require.Equal(t, c.v, q*c.d+r)
		require.GreaterOrEqual(t, r, int64(0))
		require.Less(t, r, c.d)
	}
}

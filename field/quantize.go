package field

import (
	"fmt"
	"math"
)

// MaxAbs bounds the signed integers this package will encode. Anything that
// grows past it during the forward pass indicates a scale or model
// configuration problem rather than a value we could soundly range-check.
const MaxAbs = int64(1) << 52

// Quantize converts a float to a fixed-point integer at the given power-of-two
// scale, rounding half away from zero.
func Quantize(x float64, scale uint) (int64, error) {
	scaled := math.Round(x * float64(int64(1)<<scale))
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || math.Abs(scaled) > float64(MaxAbs) {
		return 0, fmt.Errorf("value %v not representable at scale %d", x, scale)
	}
	return int64(scaled), nil
}

// Dequantize converts a fixed-point integer back to a float.
func Dequantize(v int64, scale uint) float64 {
	return float64(v) / float64(int64(1)<<scale)
}

// QuantizeSlice converts a float slice at the given scale.
func QuantizeSlice(xs []float64, scale uint) ([]int64, error) {
	out := make([]int64, len(xs))
	for i, x := range xs {
		v, err := Quantize(x, scale)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// RescaleDivRem performs the fixed-point rescale division: v = q*d + r with
// r in [0, d). This is floor division; it is the single rounding policy for
// the whole system, used identically when synthesizing rescale constraints
// and when generating witnesses.
func RescaleDivRem(v, d int64) (q, r int64) {
	if d <= 0 {
		panic("rescale divisor must be positive")
	}
	q = v / d
	r = v % d
	if r < 0 {
		r += d
		q--
	}
	return q, r
}

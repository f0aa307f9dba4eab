package tensor

import (
	"fmt"
	"math/bits"
)

// macLimit bounds intermediate multiply-accumulate magnitudes well below
// int64 wraparound. Range checks against the field encoding happen later.
const macLimit = int64(1) << 62

// MacTerm is one contribution to a multiply-accumulate output element,
// referencing flat element indices of the two operands. B == -1 marks a
// plain linear term a[A].
type MacTerm struct {
	A int
	B int
}

// MacPlan lists, per flat output element, the terms whose sum produces it.
// The same plan drives both constraint layout and witness evaluation, so the
// two can never disagree on term order.
type MacPlan struct {
	OutDims []int
	Terms   [][]MacTerm
}

// MatMulPlan enumerates the products of a (m,k)x(k,n) matrix multiply.
// Term A indexes the left operand, B the right.
func MatMulPlan(a, b []int) (*MacPlan, error) {
	out, err := MatMulShape(a, b)
	if err != nil {
		return nil, err
	}
	m, k, n := a[0], a[1], b[1]
	p := &MacPlan{OutDims: out, Terms: make([][]MacTerm, m*n)}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			ts := make([]MacTerm, k)
			for l := 0; l < k; l++ {
				ts[l] = MacTerm{A: i*k + l, B: l*n + j}
			}
			p.Terms[i*n+j] = ts
		}
	}
	return p, nil
}

// Conv2DPlan enumerates the products of a 2D convolution. Term A indexes the
// (F,C,KH,KW) kernel, B the (C,H,W) input. Positions falling into padding
// contribute zero and are omitted.
func Conv2DPlan(in, ker []int, stride, pad int) (*MacPlan, error) {
	out, err := Conv2DShape(in, ker, stride, pad)
	if err != nil {
		return nil, err
	}
	c, h, w := in[0], in[1], in[2]
	f, kh, kw := ker[0], ker[2], ker[3]
	oh, ow := out[1], out[2]
	p := &MacPlan{OutDims: out, Terms: make([][]MacTerm, f*oh*ow)}
	for of := 0; of < f; of++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				var ts []MacTerm
				for ic := 0; ic < c; ic++ {
					for ky := 0; ky < kh; ky++ {
						iy := oy*stride + ky - pad
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*stride + kx - pad
							if ix < 0 || ix >= w {
								continue
							}
							ts = append(ts, MacTerm{
								A: ((of*c+ic)*kh+ky)*kw + kx,
								B: (ic*h+iy)*w + ix,
							})
						}
					}
				}
				p.Terms[(of*oh+oy)*ow+ox] = ts
			}
		}
	}
	return p, nil
}

// SumPool2DPlan enumerates the window sums of a kxk pool over a (C,H,W)
// input. All terms are linear.
func SumPool2DPlan(in []int, k, stride int) (*MacPlan, error) {
	out, err := Pool2DShape(in, k, stride)
	if err != nil {
		return nil, err
	}
	c, h, w := in[0], in[1], in[2]
	oh, ow := out[1], out[2]
	p := &MacPlan{OutDims: out, Terms: make([][]MacTerm, c*oh*ow)}
	for ic := 0; ic < c; ic++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				ts := make([]MacTerm, 0, k*k)
				for ky := 0; ky < k; ky++ {
					for kx := 0; kx < k; kx++ {
						ts = append(ts, MacTerm{A: (ic*h+oy*stride+ky)*w + ox*stride + kx, B: -1})
					}
				}
				p.Terms[(ic*oh+oy)*ow+ox] = ts
			}
		}
	}
	return p, nil
}

// ReduceSumPlan sums every element of a tensor into a single scalar.
func ReduceSumPlan(in []int) *MacPlan {
	n := Numel(in)
	ts := make([]MacTerm, n)
	for i := range ts {
		ts[i] = MacTerm{A: i, B: -1}
	}
	return &MacPlan{OutDims: []int{1}, Terms: [][]MacTerm{ts}}
}

// Eval runs the plan over operand values. b may be nil for all-linear plans.
func (p *MacPlan) Eval(a, b []int64) ([]int64, error) {
	out := make([]int64, len(p.Terms))
	for o, ts := range p.Terms {
		var acc int64
		for _, t := range ts {
			v := a[t.A]
			if t.B >= 0 {
				var err error
				v, err = CheckedMul(v, b[t.B])
				if err != nil {
					return nil, err
				}
			}
			var err error
			acc, err = CheckedAdd(acc, v)
			if err != nil {
				return nil, err
			}
		}
		out[o] = acc
	}
	return out, nil
}

// CheckedMul multiplies with wraparound detection.
func CheckedMul(a, b int64) (int64, error) {
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(abs64(a), abs64(b))
	if hi != 0 || lo > uint64(macLimit) {
		return 0, fmt.Errorf("product of %d and %d exceeds accumulator range", a, b)
	}
	v := int64(lo)
	if neg {
		v = -v
	}
	return v, nil
}

// CheckedAdd adds with wraparound detection.
func CheckedAdd(a, b int64) (int64, error) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) || s > macLimit || s < -macLimit {
		return 0, fmt.Errorf("sum of %d and %d exceeds accumulator range", a, b)
	}
	return s, nil
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// AddVals, SubVals and MulVals apply checked elementwise arithmetic.
func AddVals(a, b []int64) ([]int64, error) { return zip(a, b, CheckedAdd) }
func SubVals(a, b []int64) ([]int64, error) {
	return zip(a, b, func(x, y int64) (int64, error) {
		if y == -1<<63 {
			return 0, fmt.Errorf("cannot negate %d", y)
		}
		return CheckedAdd(x, -y)
	})
}
func MulVals(a, b []int64) ([]int64, error) { return zip(a, b, CheckedMul) }

func zip(a, b []int64, f func(int64, int64) (int64, error)) ([]int64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("elementwise operands differ in length: %d vs %d", len(a), len(b))
	}
	out := make([]int64, len(a))
	for i := range a {
		v, err := f(a[i], b[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

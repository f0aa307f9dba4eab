package backend

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/setup"
)

type witnessPolys struct {
	a, b, c, m, h, zl, zp []fr.Element // blinded, coefficient form
}

func bigInt(x int64) *big.Int {
	return new(big.Int).SetInt64(x)
}

// quotient divides the combined constraint polynomial by the vanishing
// polynomial. All constraints are evaluated on a multiplicative coset eight
// times the domain, large enough for the permutation product's degree, and
// interpolated back. A nonzero high coefficient means the assignment does
// not satisfy some constraint.
func quotient(pk *setup.ProvingKey, public []fr.Element, ch *challenges, w *witnessPolys) ([]fr.Element, error) {
	n := int(pk.Domain.Cardinality)
	ext := fft.NewDomain(uint64(8 * n))
	m := int(ext.Cardinality)

	onCoset := func(coeffs []fr.Element) []fr.Element {
		v := make([]fr.Element, m)
		copy(v, coeffs)
		ext.FFT(v, fft.DIF, fft.OnCoset())
		fft.BitReverse(v)
		return v
	}

	a := onCoset(w.a)
	b := onCoset(w.b)
	c := onCoset(w.c)
	mul := onCoset(w.m)
	h := onCoset(w.h)
	zl := onCoset(w.zl)
	zp := onCoset(w.zp)
	fx := make([][]fr.Element, setup.NumFixedPolys)
	for i := range fx {
		fx[i] = onCoset(pk.Fixed[i])
	}

	piE := make([]fr.Element, n)
	for i := range public {
		piE[i].Neg(&public[i])
	}
	pi := onCoset(coeffsOf(pk.Domain, piE))

	// First Lagrange polynomial: every coefficient is 1/n.
	lzC := make([]fr.Element, n)
	for i := range lzC {
		lzC[i] = pk.Domain.CardinalityInv
	}
	lz := onCoset(lzC)

	pts := make([]fr.Element, m)
	pts[0] = ext.FrMultiplicativeGen
	for k := 1; k < m; k++ {
		pts[k].Mul(&pts[k-1], &ext.Generator)
	}

	// 1/Z_H on the coset repeats with period eight.
	zhVals := make([]fr.Element, 8)
	var gN, eighth fr.Element
	gN.Exp(ext.FrMultiplicativeGen, bigInt(int64(n)))
	eighth.Exp(ext.Generator, bigInt(int64(n)))
	var one fr.Element
	one.SetOne()
	zhVals[0].Sub(&gN, &one)
	cur := gN
	for j := 1; j < 8; j++ {
		cur.Mul(&cur, &eighth)
		zhVals[j].Sub(&cur, &one)
	}
	zhInv := fr.BatchInvert(zhVals)

	var ks [circuit.NumAdvice]fr.Element
	ks[0].SetOne()
	ks[1] = pk.Domain.FrMultiplicativeGen
	ks[2].Mul(&ks[1], &ks[1])

	var theta2 fr.Element
	theta2.Mul(&ch.theta, &ch.theta)
	var alphas [6]fr.Element
	alphas[0].SetOne()
	for i := 1; i < 6; i++ {
		alphas[i].Mul(&alphas[i-1], &ch.alpha)
	}

	q := make([]fr.Element, m)
	var acc, term, u1, u2, u3 fr.Element
	for k := 0; k < m; k++ {
		kk := (k + 8) & (m - 1)

		// Gate: qL*a + qR*b + qM*a*b + qO*c + qNext*c(wX) + qC + PI.
		acc.Mul(&fx[circuit.QL][k], &a[k])
		term.Mul(&fx[circuit.QR][k], &b[k])
		acc.Add(&acc, &term)
		term.Mul(&a[k], &b[k])
		term.Mul(&term, &fx[circuit.QM][k])
		acc.Add(&acc, &term)
		term.Mul(&fx[circuit.QO][k], &c[k])
		acc.Add(&acc, &term)
		term.Mul(&fx[circuit.QNext][k], &c[kk])
		acc.Add(&acc, &term)
		acc.Add(&acc, &fx[circuit.QC][k])
		acc.Add(&acc, &pi[k])

		// Permutation: zp*prod(w+bp*k*x+g) - zp(wX)*prod(w+bp*S+g).
		u1.Mul(&ks[0], &pts[k])
		u1.Mul(&u1, &ch.betaP)
		u1.Add(&u1, &a[k])
		u1.Add(&u1, &ch.gamma)
		u2.Mul(&ks[1], &pts[k])
		u2.Mul(&u2, &ch.betaP)
		u2.Add(&u2, &b[k])
		u2.Add(&u2, &ch.gamma)
		u3.Mul(&ks[2], &pts[k])
		u3.Mul(&u3, &ch.betaP)
		u3.Add(&u3, &c[k])
		u3.Add(&u3, &ch.gamma)
		term.Mul(&u1, &u2)
		term.Mul(&term, &u3)
		term.Mul(&term, &zp[k])

		u1.Mul(&fx[setup.FixedS1][k], &ch.betaP)
		u1.Add(&u1, &a[k])
		u1.Add(&u1, &ch.gamma)
		u2.Mul(&fx[setup.FixedS2][k], &ch.betaP)
		u2.Add(&u2, &b[k])
		u2.Add(&u2, &ch.gamma)
		u3.Mul(&fx[setup.FixedS3][k], &ch.betaP)
		u3.Add(&u3, &c[k])
		u3.Add(&u3, &ch.gamma)
		u1.Mul(&u1, &u2)
		u1.Mul(&u1, &u3)
		u1.Mul(&u1, &zp[kk])
		term.Sub(&term, &u1)
		term.Mul(&term, &alphas[1])
		acc.Add(&acc, &term)

		// Permutation boundary: LZ*(zp-1).
		term.Sub(&zp[k], &one)
		term.Mul(&term, &lz[k])
		term.Mul(&term, &alphas[2])
		acc.Add(&acc, &term)

		// Lookup helper: h*(beta+f)*(beta+t) - qLk*(beta+t) + qT*m*(beta+f).
		u1.Mul(&ch.theta, &a[k])
		u1.Add(&u1, &fx[circuit.QTag][k])
		u2.Mul(&theta2, &c[k])
		u1.Add(&u1, &u2)
		u1.Add(&u1, &ch.beta)
		u2.Mul(&ch.theta, &fx[circuit.TIn][k])
		u2.Add(&u2, &fx[circuit.TTag][k])
		u3.Mul(&theta2, &fx[circuit.TOut][k])
		u2.Add(&u2, &u3)
		u2.Add(&u2, &ch.beta)
		term.Mul(&h[k], &u1)
		term.Mul(&term, &u2)
		u3.Mul(&fx[circuit.QLk][k], &u2)
		term.Sub(&term, &u3)
		u3.Mul(&fx[circuit.QT][k], &mul[k])
		u3.Mul(&u3, &u1)
		term.Add(&term, &u3)
		term.Mul(&term, &alphas[3])
		acc.Add(&acc, &term)

		// Lookup running sum step: zl(wX) - zl - h.
		term.Sub(&zl[kk], &zl[k])
		term.Sub(&term, &h[k])
		term.Mul(&term, &alphas[4])
		acc.Add(&acc, &term)

		// Lookup boundary: LZ*zl.
		term.Mul(&lz[k], &zl[k])
		term.Mul(&term, &alphas[5])
		acc.Add(&acc, &term)

		q[k].Mul(&acc, &zhInv[k&7])
	}

	ext.FFTInverse(q, fft.DIF, fft.OnCoset())
	fft.BitReverse(q)

	want := 3*chunkLen(n) - 2
	for i := want; i < m; i++ {
		if !q[i].IsZero() {
			return nil, ErrUnsatisfied
		}
	}
	return q[:want], nil
}

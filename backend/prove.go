package backend

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/graphproof/graphproof/checker"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/setup"
)

// ErrUnsatisfied means the assignment violates the circuit; the quotient
// does not exist. Run the mock prover on the same assignment to locate the
// failing row.
var ErrUnsatisfied = errors.New("assignment does not satisfy the circuit")

// ErrSerialization reports key or assignment shapes that do not fit the
// circuit.
var ErrSerialization = errors.New("malformed proving input")

type proveConfig struct {
	seed []byte
}

type Option func(*proveConfig)

// WithBlindingSeed makes proving deterministic: the commitment blinders are
// derived from the seed and the public inputs instead of crypto/rand. Two
// calls with equal keys, assignments and seeds produce identical bytes.
func WithBlindingSeed(seed [32]byte) Option {
	return func(c *proveConfig) { c.seed = append([]byte(nil), seed[:]...) }
}

// blinder draws masking coefficients from a keccak chain.
type blinder struct {
	state [32]byte
	ctr   uint64
}

func newBlinder(seed []byte, bind [32]byte) (*blinder, error) {
	if seed == nil {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
	}
	return &blinder{state: keccak(seed, bind[:])}, nil
}

func (b *blinder) draw() fr.Element {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], b.ctr)
	b.ctr++
	out := keccak(b.state[:], ctr[:])
	var x fr.Element
	x.SetBytes(out[:])
	return x
}

// mask adds Z_H times a random polynomial of the given coefficient count.
// Evaluations on the domain are unchanged; the commitment and off-domain
// evaluations hide the column.
func (b *blinder) mask(coeffs []fr.Element, order int) []fr.Element {
	n := len(coeffs)
	out := make([]fr.Element, n+order)
	copy(out, coeffs)
	for i := 0; i < order; i++ {
		r := b.draw()
		out[i].Sub(&out[i], &r)
		out[n+i].Add(&out[n+i], &r)
	}
	return out
}

// proverLogger tags prover output with the circuit it runs over.
func proverLogger(c *circuit.Circuit) zerolog.Logger {
	return logger.Logger().With().Str("module", "prover").Int("domain", c.N).Logger()
}

// Prove generates an argument that the assignment satisfies the circuit.
// The assignment is trusted to be well formed; run witness generation, not
// hand-built columns.
func Prove(pk *setup.ProvingKey, circ *circuit.Circuit, asg *circuit.Assignment, opts ...Option) (*Proof, error) {
	log := proverLogger(circ)
	start := time.Now()
	cfg := &proveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	cd, err := circ.Digest()
	if err != nil {
		return nil, err
	}
	if cd != pk.Vk.CircuitDigest {
		return nil, ErrKeyMismatch
	}
	n := circ.N
	if len(asg.L) != n || len(asg.R) != n || len(asg.O) != n || len(asg.M) != n {
		return nil, fmt.Errorf("%w: assignment columns want %d rows", ErrSerialization, n)
	}
	if len(asg.Public) != circ.NumPublic {
		return nil, fmt.Errorf("%w: assignment carries %d public inputs, circuit wants %d",
			ErrSerialization, len(asg.Public), circ.NumPublic)
	}
	// Refuse unsatisfiable assignments before any commitment work. The
	// quotient remainder check below would also catch them, three rounds
	// and many multiexps later, with no row to point at.
	if err := checker.Satisfied(circ, asg); err != nil {
		return nil, err
	}
	domain := pk.Domain

	proof := &Proof{PIDigest: PublicInputDigest(asg.Public)}
	bl, err := newBlinder(cfg.seed, proof.PIDigest)
	if err != nil {
		return nil, err
	}
	ch := newChallenges(pk.Vk, asg.Public)

	// Round one: commit the advice and multiplicity columns.
	aC := bl.mask(coeffsOf(domain, asg.L), 2)
	bC := bl.mask(coeffsOf(domain, asg.R), 2)
	cC := bl.mask(coeffsOf(domain, asg.O), 3)
	mC := bl.mask(coeffsOf(domain, asg.M), 2)
	if proof.A, err = kzg.Commit(aC, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.B, err = kzg.Commit(bC, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.C, err = kzg.Commit(cC, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.M, err = kzg.Commit(mC, pk.Kzg); err != nil {
		return nil, err
	}
	ch.round1(proof.A, proof.B, proof.C, proof.M)

	// Round two: lookup helper, lookup running sum, permutation product.
	hEv := lookupHelper(circ, asg, ch.theta, ch.beta)
	zlEv := runningSum(hEv)
	zpEv := grandProduct(circ, asg, domain, ch.betaP, ch.gamma)
	hC := bl.mask(coeffsOf(domain, hEv), 2)
	zlC := bl.mask(coeffsOf(domain, zlEv), 3)
	zpC := bl.mask(coeffsOf(domain, zpEv), 3)
	if proof.H, err = kzg.Commit(hC, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.ZL, err = kzg.Commit(zlC, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.ZP, err = kzg.Commit(zpC, pk.Kzg); err != nil {
		return nil, err
	}
	ch.round2(proof.H, proof.ZL, proof.ZP)

	// Round three: quotient.
	t, err := quotient(pk, asg.Public, ch, &witnessPolys{
		a: aC, b: bC, c: cC, m: mC, h: hC, zl: zlC, zp: zpC,
	})
	if err != nil {
		return nil, err
	}
	cl := chunkLen(n)
	t1 := append(append([]fr.Element(nil), t[:cl]...), bl.draw())
	t2 := append(append([]fr.Element(nil), t[cl:2*cl]...), bl.draw())
	t2[0].Sub(&t2[0], &t1[cl])
	t3 := append([]fr.Element(nil), t[2*cl:]...)
	t3[0].Sub(&t3[0], &t2[cl])
	if proof.T1, err = kzg.Commit(t1, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.T2, err = kzg.Commit(t2, pk.Kzg); err != nil {
		return nil, err
	}
	if proof.T3, err = kzg.Commit(t3, pk.Kzg); err != nil {
		return nil, err
	}
	ch.round3(proof.T1, proof.T2, proof.T3)

	// Round four: evaluations at zeta and omega*zeta.
	zeta := ch.zeta
	var zetaN1, zetaN2, omegaZeta fr.Element
	zetaN1.Exp(zeta, bigInt(int64(cl)))
	zetaN2.Mul(&zetaN1, &zetaN1)
	omegaZeta.Mul(&zeta, &domain.Generator)

	folded := make([]fr.Element, cl+1)
	copy(folded, t1)
	axpy(folded, t2, zetaN1)
	axpy(folded, t3, zetaN2)

	zetaPolys := make([][]fr.Element, NumEval)
	zetaPolys[EvT] = folded
	zetaPolys[EvA], zetaPolys[EvB], zetaPolys[EvC] = aC, bC, cC
	zetaPolys[EvM], zetaPolys[EvH] = mC, hC
	zetaPolys[EvZL], zetaPolys[EvZP] = zlC, zpC
	for i := 0; i < setup.NumFixedPolys; i++ {
		zetaPolys[fixedEvalIndex(i)] = pk.Fixed[i]
	}
	for i, p := range zetaPolys {
		proof.Evals[i] = evalPoly(p, zeta)
	}
	proof.EvalsShift[EvwC] = evalPoly(cC, omegaZeta)
	proof.EvalsShift[EvwZL] = evalPoly(zlC, omegaZeta)
	proof.EvalsShift[EvwZP] = evalPoly(zpC, omegaZeta)
	ch.bindEvals(proof.Evals, proof.EvalsShift)

	// Round five: batched openings.
	pz := make([]fr.Element, cl+1)
	var vp fr.Element
	vp.SetOne()
	for _, p := range zetaPolys {
		axpy(pz, p, vp)
		vp.Mul(&vp, &ch.v)
	}
	opZ, err := kzg.Open(pz, zeta, pk.Kzg)
	if err != nil {
		return nil, err
	}
	proof.Wz = opZ.H

	pw := make([]fr.Element, len(zpC))
	copy(pw, cC)
	var v2 fr.Element
	v2.Mul(&ch.v, &ch.v)
	axpy(pw, zlC, ch.v)
	axpy(pw, zpC, v2)
	opW, err := kzg.Open(pw, omegaZeta, pk.Kzg)
	if err != nil {
		return nil, err
	}
	proof.Wzw = opW.H
	ch.bindOpenings(proof.Wz, proof.Wzw)

	log.Debug().Int("publicInputs", circ.NumPublic).Dur("took", time.Since(start)).Msg("proof generated")
	return proof, nil
}

// coeffsOf interpolates natural-order evaluations into coefficient form.
func coeffsOf(domain *fft.Domain, evals []fr.Element) []fr.Element {
	v := append([]fr.Element(nil), evals...)
	domain.FFTInverse(v, fft.DIF)
	fft.BitReverse(v)
	return v
}

func evalPoly(p []fr.Element, x fr.Element) fr.Element {
	var acc fr.Element
	for i := len(p) - 1; i >= 0; i-- {
		acc.Mul(&acc, &x)
		acc.Add(&acc, &p[i])
	}
	return acc
}

// axpy adds scale*src into dst coefficient-wise.
func axpy(dst, src []fr.Element, scale fr.Element) {
	var t fr.Element
	for i := range src {
		t.Mul(&src[i], &scale)
		dst[i].Add(&dst[i], &t)
	}
}

// lookupHelper evaluates the logarithmic-derivative column on the domain:
// rows issuing a query contribute 1/(beta+f), table rows absorb their
// multiplicity as m/(beta+t).
func lookupHelper(circ *circuit.Circuit, asg *circuit.Assignment, theta, beta fr.Element) []fr.Element {
	n := circ.N
	var theta2 fr.Element
	theta2.Mul(&theta, &theta)

	den := make([]fr.Element, 2*n)
	var t fr.Element
	for r := 0; r < n; r++ {
		// beta + qTag + theta*l + theta^2*o
		den[r] = beta
		den[r].Add(&den[r], &circ.Fixed[circuit.QTag][r])
		t.Mul(&theta, &asg.L[r])
		den[r].Add(&den[r], &t)
		t.Mul(&theta2, &asg.O[r])
		den[r].Add(&den[r], &t)
		// beta + tTag + theta*tIn + theta^2*tOut
		den[n+r] = beta
		den[n+r].Add(&den[n+r], &circ.Fixed[circuit.TTag][r])
		t.Mul(&theta, &circ.Fixed[circuit.TIn][r])
		den[n+r].Add(&den[n+r], &t)
		t.Mul(&theta2, &circ.Fixed[circuit.TOut][r])
		den[n+r].Add(&den[n+r], &t)
	}
	inv := fr.BatchInvert(den)

	h := make([]fr.Element, n)
	for r := 0; r < n; r++ {
		h[r].Mul(&circ.Fixed[circuit.QLk][r], &inv[r])
		t.Mul(&circ.Fixed[circuit.QT][r], &asg.M[r])
		t.Mul(&t, &inv[n+r])
		h[r].Sub(&h[r], &t)
	}
	return h
}

func runningSum(h []fr.Element) []fr.Element {
	z := make([]fr.Element, len(h))
	for r := 1; r < len(h); r++ {
		z[r].Add(&z[r-1], &h[r-1])
	}
	return z
}

// grandProduct evaluates the permutation column: the running product of
// identity-encoded over sigma-encoded wire factors.
func grandProduct(circ *circuit.Circuit, asg *circuit.Assignment, domain *fft.Domain, betaP, gamma fr.Element) []fr.Element {
	n := circ.N
	cols := [circuit.NumAdvice][]fr.Element{asg.L, asg.R, asg.O}
	var ks [circuit.NumAdvice]fr.Element
	ks[0].SetOne()
	ks[1] = domain.FrMultiplicativeGen
	ks[2].Mul(&ks[1], &ks[1])

	pow := make([]fr.Element, n)
	pow[0].SetOne()
	for r := 1; r < n; r++ {
		pow[r].Mul(&pow[r-1], &domain.Generator)
	}

	num := make([]fr.Element, n)
	den := make([]fr.Element, n)
	var f, s fr.Element
	for r := 0; r < n; r++ {
		num[r].SetOne()
		den[r].SetOne()
		for col := 0; col < circuit.NumAdvice; col++ {
			f.Mul(&ks[col], &pow[r])
			f.Mul(&f, &betaP)
			f.Add(&f, &cols[col][r])
			f.Add(&f, &gamma)
			num[r].Mul(&num[r], &f)

			target := circ.Sigma[col*n+r]
			s.Mul(&ks[target/int64(n)], &pow[target%int64(n)])
			s.Mul(&s, &betaP)
			s.Add(&s, &cols[col][r])
			s.Add(&s, &gamma)
			den[r].Mul(&den[r], &s)
		}
	}
	inv := fr.BatchInvert(den)

	z := make([]fr.Element, n)
	z[0].SetOne()
	for r := 1; r < n; r++ {
		z[r].Mul(&z[r-1], &num[r-1])
		z[r].Mul(&z[r], &inv[r-1])
	}
	return z
}

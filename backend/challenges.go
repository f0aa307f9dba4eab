package backend

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/graphproof/graphproof/setup"
)

const transcriptLabel = "graphproof-v1"

// challenges walks the Fiat-Shamir schedule. Prover and verifier drive the
// same state machine with the same inputs; the round methods must be called
// in order.
type challenges struct {
	t *Transcript

	theta fr.Element // lookup row compression
	beta  fr.Element // lookup denominator shift
	betaP fr.Element // permutation shift
	gamma fr.Element // permutation offset
	alpha fr.Element // constraint combination
	zeta  fr.Element // evaluation point
	v     fr.Element // opening batch
	u     fr.Element // opening pair fold
}

func newChallenges(vk *setup.VerifyingKey, public []fr.Element) *challenges {
	c := &challenges{t: NewTranscript(transcriptLabel)}
	d := vk.Digest()
	c.t.AppendBytes(d[:])
	for i := range public {
		c.t.AppendFr(public[i])
	}
	return c
}

func (c *challenges) round1(a, b, cc, m bn254.G1Affine) {
	c.t.AppendPoint(a)
	c.t.AppendPoint(b)
	c.t.AppendPoint(cc)
	c.t.AppendPoint(m)
	c.theta = c.t.Challenge()
	c.beta = c.t.Challenge()
	c.betaP = c.t.Challenge()
	c.gamma = c.t.Challenge()
}

func (c *challenges) round2(h, zl, zp bn254.G1Affine) {
	c.t.AppendPoint(h)
	c.t.AppendPoint(zl)
	c.t.AppendPoint(zp)
	c.alpha = c.t.Challenge()
}

func (c *challenges) round3(t1, t2, t3 bn254.G1Affine) {
	c.t.AppendPoint(t1)
	c.t.AppendPoint(t2)
	c.t.AppendPoint(t3)
	c.zeta = c.t.Challenge()
}

func (c *challenges) bindEvals(evals [NumEval]fr.Element, shift [NumEvalShift]fr.Element) {
	for i := range evals {
		c.t.AppendFr(evals[i])
	}
	for i := range shift {
		c.t.AppendFr(shift[i])
	}
	c.v = c.t.Challenge()
}

func (c *challenges) bindOpenings(wz, wzw bn254.G1Affine) {
	c.t.AppendPoint(wz)
	c.t.AppendPoint(wzw)
	c.u = c.t.Challenge()
}

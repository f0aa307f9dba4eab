package backend

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/setup"
	"github.com/graphproof/graphproof/utils"
)

// Claim is a deferred pairing check: the proof is valid iff
// e(L, [tau]_2) == e(R, [1]_2). Claims from proofs under the same reference
// string can be folded and checked together.
type Claim struct {
	L, R bn254.G1Affine
}

// Verify checks a proof against the verifying key and public inputs.
func Verify(vk *setup.VerifyingKey, proof *Proof, public []fr.Element) error {
	claim, err := VerifyToClaim(vk, proof, public)
	if err != nil {
		return err
	}
	return VerifyClaim(vk, claim)
}

// VerifyClaim settles a deferred pairing claim.
func VerifyClaim(vk *setup.VerifyingKey, claim Claim) error {
	var negR bn254.G1Affine
	negR.Neg(&claim.R)
	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{claim.L, negR},
		[]bn254.G2Affine{vk.G2[1], vk.G2[0]},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !ok {
		return ErrInvalidProof
	}
	return nil
}

const claimMagic uint64 = 0x47505246434C4D31 // "GPRFCLM1"

func (c *Claim) MarshalBinary() []byte {
	o := &utils.OutputBuf{}
	o.AppendUint64(claimMagic)
	o.AppendG1(c.L)
	o.AppendG1(c.R)
	return o.Bytes()
}

func (c *Claim) UnmarshalBinary(data []byte) error {
	in := utils.NewInputBuf(data)
	if in.ReadUint64() != claimMagic {
		return fmt.Errorf("%w: bad claim header", ErrMalformedProof)
	}
	c.L = in.ReadG1()
	c.R = in.ReadG1()
	if err := in.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return nil
}

// VerifyToClaim runs every check except the final pairing and returns the
// deferred pairing claim. Aggregation folds many claims into one pairing.
func VerifyToClaim(vk *setup.VerifyingKey, proof *Proof, public []fr.Element) (Claim, error) {
	if len(public) != vk.NumPublic {
		return Claim{}, fmt.Errorf("%w: got %d public inputs, circuit wants %d",
			ErrPublicInputMismatch, len(public), vk.NumPublic)
	}
	if PublicInputDigest(public) != proof.PIDigest {
		return Claim{}, ErrPublicInputMismatch
	}

	ch := newChallenges(vk, public)
	ch.round1(proof.A, proof.B, proof.C, proof.M)
	ch.round2(proof.H, proof.ZL, proof.ZP)
	ch.round3(proof.T1, proof.T2, proof.T3)
	ch.bindEvals(proof.Evals, proof.EvalsShift)
	ch.bindOpenings(proof.Wz, proof.Wzw)

	if err := checkIdentity(vk, proof, public, ch); err != nil {
		return Claim{}, err
	}
	return foldOpenings(vk, proof, ch)
}

// checkIdentity recomputes the constraint combination at zeta from the
// claimed evaluations and compares it with Z_H(zeta) times the quotient.
func checkIdentity(vk *setup.VerifyingKey, proof *Proof, public []fr.Element, ch *challenges) error {
	n := int64(vk.N)
	ev := &proof.Evals

	var zetaN, zh, one fr.Element
	one.SetOne()
	zetaN.Exp(ch.zeta, bigInt(n))
	zh.Sub(&zetaN, &one)

	// Lagrange evaluations at zeta for row zero and the public rows:
	// L_i(zeta) = w^i * (zeta^n - 1) / (n * (zeta - w^i)).
	rows := len(public)
	if rows == 0 {
		rows = 1
	}
	dens := make([]fr.Element, rows)
	omegaI := make([]fr.Element, rows)
	omegaI[0].SetOne()
	for i := 1; i < rows; i++ {
		omegaI[i].Mul(&omegaI[i-1], &vk.Generator)
	}
	for i := 0; i < rows; i++ {
		dens[i].Sub(&ch.zeta, &omegaI[i])
	}
	inv := fr.BatchInvert(dens)
	var nInv, zhOverN fr.Element
	nInv.SetUint64(vk.N)
	nInv.Inverse(&nInv)
	zhOverN.Mul(&zh, &nInv)

	var lz, pi, li, term fr.Element
	lz.Mul(&omegaI[0], &zhOverN)
	lz.Mul(&lz, &inv[0])
	for i := range public {
		li.Mul(&omegaI[i], &zhOverN)
		li.Mul(&li, &inv[i])
		term.Mul(&li, &public[i])
		pi.Sub(&pi, &term)
	}

	var theta2 fr.Element
	theta2.Mul(&ch.theta, &ch.theta)
	var alphas [6]fr.Element
	alphas[0].SetOne()
	for i := 1; i < 6; i++ {
		alphas[i].Mul(&alphas[i-1], &ch.alpha)
	}

	fxv := func(i int) *fr.Element { return &ev[fixedEvalIndex(i)] }

	var acc, u1, u2, u3 fr.Element
	acc.Mul(fxv(circuit.QL), &ev[EvA])
	term.Mul(fxv(circuit.QR), &ev[EvB])
	acc.Add(&acc, &term)
	term.Mul(&ev[EvA], &ev[EvB])
	term.Mul(&term, fxv(circuit.QM))
	acc.Add(&acc, &term)
	term.Mul(fxv(circuit.QO), &ev[EvC])
	acc.Add(&acc, &term)
	term.Mul(fxv(circuit.QNext), &proof.EvalsShift[EvwC])
	acc.Add(&acc, &term)
	acc.Add(&acc, fxv(circuit.QC))
	acc.Add(&acc, &pi)

	var shift2 fr.Element
	shift2.Mul(&vk.CosetShift, &vk.CosetShift)
	u1.Mul(&ch.betaP, &ch.zeta)
	u1.Add(&u1, &ev[EvA])
	u1.Add(&u1, &ch.gamma)
	u2.Mul(&vk.CosetShift, &ch.zeta)
	u2.Mul(&u2, &ch.betaP)
	u2.Add(&u2, &ev[EvB])
	u2.Add(&u2, &ch.gamma)
	u3.Mul(&shift2, &ch.zeta)
	u3.Mul(&u3, &ch.betaP)
	u3.Add(&u3, &ev[EvC])
	u3.Add(&u3, &ch.gamma)
	term.Mul(&u1, &u2)
	term.Mul(&term, &u3)
	term.Mul(&term, &ev[EvZP])

	u1.Mul(&ev[EvS1], &ch.betaP)
	u1.Add(&u1, &ev[EvA])
	u1.Add(&u1, &ch.gamma)
	u2.Mul(&ev[EvS2], &ch.betaP)
	u2.Add(&u2, &ev[EvB])
	u2.Add(&u2, &ch.gamma)
	u3.Mul(&ev[EvS3], &ch.betaP)
	u3.Add(&u3, &ev[EvC])
	u3.Add(&u3, &ch.gamma)
	u1.Mul(&u1, &u2)
	u1.Mul(&u1, &u3)
	u1.Mul(&u1, &proof.EvalsShift[EvwZP])
	term.Sub(&term, &u1)
	term.Mul(&term, &alphas[1])
	acc.Add(&acc, &term)

	term.Sub(&ev[EvZP], &one)
	term.Mul(&term, &lz)
	term.Mul(&term, &alphas[2])
	acc.Add(&acc, &term)

	u1.Mul(&ch.theta, &ev[EvA])
	u1.Add(&u1, &ev[EvQTag])
	u2.Mul(&theta2, &ev[EvC])
	u1.Add(&u1, &u2)
	u1.Add(&u1, &ch.beta)
	u2.Mul(&ch.theta, &ev[EvTIn])
	u2.Add(&u2, &ev[EvTTag])
	u3.Mul(&theta2, &ev[EvTOut])
	u2.Add(&u2, &u3)
	u2.Add(&u2, &ch.beta)
	term.Mul(&ev[EvH], &u1)
	term.Mul(&term, &u2)
	u3.Mul(&ev[EvQLk], &u2)
	term.Sub(&term, &u3)
	u3.Mul(&ev[EvQT], &ev[EvM])
	u3.Mul(&u3, &u1)
	term.Add(&term, &u3)
	term.Mul(&term, &alphas[3])
	acc.Add(&acc, &term)

	term.Sub(&proof.EvalsShift[EvwZL], &ev[EvZL])
	term.Sub(&term, &ev[EvH])
	term.Mul(&term, &alphas[4])
	acc.Add(&acc, &term)

	term.Mul(&lz, &ev[EvZL])
	term.Mul(&term, &alphas[5])
	acc.Add(&acc, &term)

	var rhs fr.Element
	rhs.Mul(&zh, &ev[EvT])
	if !acc.Equal(&rhs) {
		return fmt.Errorf("%w: constraint identity fails at evaluation point", ErrInvalidProof)
	}
	return nil
}

// foldOpenings batches the two opening proofs into one deferred pairing.
func foldOpenings(vk *setup.VerifyingKey, proof *Proof, ch *challenges) (Claim, error) {
	cl := int64(chunkLen(int(vk.N)))
	var zetaCl, zetaCl2, omegaZeta fr.Element
	zetaCl.Exp(ch.zeta, bigInt(cl))
	zetaCl2.Mul(&zetaCl, &zetaCl)
	omegaZeta.Mul(&ch.zeta, &vk.Generator)

	var one fr.Element
	one.SetOne()
	var foldedT bn254.G1Affine
	if _, err := foldedT.MultiExp(
		[]bn254.G1Affine{proof.T1, proof.T2, proof.T3},
		[]fr.Element{one, zetaCl, zetaCl2},
		ecc.MultiExpConfig{},
	); err != nil {
		return Claim{}, err
	}

	points := make([]bn254.G1Affine, NumEval)
	points[EvT] = foldedT
	points[EvA], points[EvB], points[EvC] = proof.A, proof.B, proof.C
	points[EvM], points[EvH] = proof.M, proof.H
	points[EvZL], points[EvZP] = proof.ZL, proof.ZP
	for i := 0; i < setup.NumFixedPolys; i++ {
		points[fixedEvalIndex(i)] = vk.Fixed[i]
	}
	vPow := make([]fr.Element, NumEval)
	vPow[0].SetOne()
	for i := 1; i < NumEval; i++ {
		vPow[i].Mul(&vPow[i-1], &ch.v)
	}
	var pz bn254.G1Affine
	if _, err := pz.MultiExp(points, vPow, ecc.MultiExpConfig{}); err != nil {
		return Claim{}, err
	}
	var ez, t fr.Element
	for i := 0; i < NumEval; i++ {
		t.Mul(&vPow[i], &proof.Evals[i])
		ez.Add(&ez, &t)
	}

	var v2 fr.Element
	v2.Mul(&ch.v, &ch.v)
	var pw bn254.G1Affine
	if _, err := pw.MultiExp(
		[]bn254.G1Affine{proof.C, proof.ZL, proof.ZP},
		[]fr.Element{one, ch.v, v2},
		ecc.MultiExpConfig{},
	); err != nil {
		return Claim{}, err
	}
	var ew fr.Element
	ew = proof.EvalsShift[EvwC]
	t.Mul(&ch.v, &proof.EvalsShift[EvwZL])
	ew.Add(&ew, &t)
	t.Mul(&v2, &proof.EvalsShift[EvwZP])
	ew.Add(&ew, &t)

	// accL = Wz + u*Wzw
	var accL bn254.G1Affine
	if _, err := accL.MultiExp(
		[]bn254.G1Affine{proof.Wz, proof.Wzw},
		[]fr.Element{one, ch.u},
		ecc.MultiExpConfig{},
	); err != nil {
		return Claim{}, err
	}

	// accR = zeta*Wz + u*omega*zeta*Wzw + Pz + u*Pw - E*G1
	var uwz, e, negE fr.Element
	uwz.Mul(&ch.u, &omegaZeta)
	e = ez
	t.Mul(&ch.u, &ew)
	e.Add(&e, &t)
	negE.Neg(&e)
	var accR bn254.G1Affine
	if _, err := accR.MultiExp(
		[]bn254.G1Affine{proof.Wz, proof.Wzw, pz, pw, vk.G1Gen},
		[]fr.Element{ch.zeta, uwz, one, ch.u, negE},
		ecc.MultiExpConfig{},
	); err != nil {
		return Claim{}, err
	}
	return Claim{L: accL, R: accR}, nil
}

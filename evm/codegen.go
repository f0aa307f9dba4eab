package evm

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/logger"
	"github.com/ethereum/go-ethereum/core/vm"
	"golang.org/x/crypto/sha3"

	"github.com/graphproof/graphproof/backend"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/setup"
)

// Calldata layout, matching Proof.Calldata: twelve uncompressed points,
// the zeta evaluations, the shifted evaluations, then the public inputs.
const (
	cdA   = 0x000
	cdB   = 0x040
	cdC   = 0x080
	cdM   = 0x0c0
	cdH   = 0x100
	cdZL  = 0x140
	cdZP  = 0x180
	cdT1  = 0x1c0
	cdT2  = 0x200
	cdT3  = 0x240
	cdWz  = 0x280
	cdWzw = 0x2c0

	cdEvals = 0x300
	cdShift = cdEvals + 32*backend.NumEval
	cdPub   = cdShift + 32*backend.NumEvalShift
)

func keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CalldataLayout describes the byte layout a generated verifier reads, for
// integrators assembling calldata outside this module.
type CalldataLayout struct {
	Points     int // offset of the twelve 64-byte commitment points
	Evals      int // offset of the zeta evaluations
	EvalsShift int // offset of the shifted evaluations
	Public     int // offset of the public input words
	Size       int // total calldata bytes

	PublicWords int
	// OnchainWords indexes the public words that must come from attested
	// on-chain values rather than from the prover.
	OnchainWords []int
}

// DescribeCalldata reports the layout of the verifier generated for a key.
func DescribeCalldata(vk *setup.VerifyingKey) CalldataLayout {
	l := CalldataLayout{
		Points:      cdA,
		Evals:       cdEvals,
		EvalsShift:  cdShift,
		Public:      cdPub,
		Size:        cdPub + 32*vk.NumPublic,
		PublicWords: vk.NumPublic,
	}
	for _, r := range vk.OnchainRows {
		l.OnchainWords = append(l.OnchainWords, int(r))
	}
	return l
}

// GenerateVerifier emits runtime bytecode that verifies proofs for one
// verifying key. The program takes Proof.Calldata input, returns a single
// word 1 on acceptance and reverts otherwise. Key material is baked into
// the code as constants, so the program carries no storage and no
// constructor.
func GenerateVerifier(vk *setup.VerifyingKey) ([]byte, error) {
	log := logger.Logger()
	g := &gen{a: &asm{}, rMod: fr.Modulus(), pMod: fp.Modulus()}
	g.revert = g.a.newLabel()
	m := vk.NumPublic
	n := int64(vk.N)

	theta := g.slot()
	beta := g.slot()
	betaP := g.slot()
	gamma := g.slot()
	alpha := g.slot()
	zeta := g.slot()
	v := g.slot()
	u := g.slot()
	zetaN := g.slot()
	zh := g.slot()
	zhOverN := g.slot()
	pi := g.slot()
	lz := g.slot()
	theta2 := g.slot()
	al2 := g.slot()
	al3 := g.slot()
	al4 := g.slot()
	al5 := g.slot()
	tmp1 := g.slot()
	u1 := g.slot()
	u2 := g.slot()
	u3 := g.slot()
	acc := g.slot()
	term := g.slot()
	ez := g.slot()
	ew := g.slot()
	vp := g.slot()
	v2 := g.slot()
	eFold := g.slot()
	negE := g.slot()
	zetaCl := g.slot()
	zetaCl2 := g.slot()
	omegaZeta := g.slot()
	uwz := g.slot()

	ft := g.point()
	pz := g.point()
	pw := g.point()
	accL := g.point()
	accR := g.point()
	ptmp := g.point()

	ev := func(i int) source { return g.cd(cdEvals + 32*uint32(i)) }
	evs := func(i int) source { return g.cd(cdShift + 32*uint32(i)) }
	fx := func(i int) source { return ev(backend.EvQL + i) }

	// Reject any calldata that is not exactly one proof plus the public
	// inputs.
	g.a.pushInt(uint64(cdPub + 32*m))
	g.a.op(vm.CALLDATASIZE, vm.EQ, vm.ISZERO)
	g.a.pushLabel(g.revert)
	g.a.op(vm.JUMPI)

	// The transcript chain up to the key digest is known at generation
	// time, so the program starts from the precomputed state.
	label := keccak256([]byte("graphproof-v1"))
	vkd := vk.Digest()
	state := keccak256(label[:], vkd[:])
	g.a.pushBytes32(state)
	g.store(memState)

	for i := 0; i < m; i++ {
		g.absorbCd(cdPub+32*uint32(i), 32)
	}
	for _, off := range []uint32{cdA, cdB, cdC, cdM} {
		g.absorbCd(off, 64)
	}
	g.challenge(theta)
	g.challenge(beta)
	g.challenge(betaP)
	g.challenge(gamma)
	for _, off := range []uint32{cdH, cdZL, cdZP} {
		g.absorbCd(off, 64)
	}
	g.challenge(alpha)
	for _, off := range []uint32{cdT1, cdT2, cdT3} {
		g.absorbCd(off, 64)
	}
	g.challenge(zeta)
	for i := 0; i < backend.NumEval+backend.NumEvalShift; i++ {
		g.absorbCd(cdEvals+32*uint32(i), 32)
	}
	g.challenge(v)
	g.absorbCd(cdWz, 64)
	g.absorbCd(cdWzw, 64)
	g.challenge(u)

	// Vanishing polynomial and Lagrange terms at zeta.
	var invN fr.Element
	invN.SetUint64(vk.N)
	invN.Inverse(&invN)
	g.expmod(zetaN, g.mem(zeta), big.NewInt(n))
	g.submod(zh, g.mem(zetaN), g.immInt(1))
	g.mulmod(zhOverN, g.mem(zh), g.imm(invN))

	g.submod(tmp1, g.mem(zeta), g.immInt(1))
	g.invmod(tmp1, g.mem(tmp1))
	g.mulmod(lz, g.mem(zhOverN), g.mem(tmp1))

	g.a.pushInt(0)
	g.store(pi)
	var omI fr.Element
	omI.SetOne()
	for i := 0; i < m; i++ {
		g.submod(tmp1, g.mem(zeta), g.imm(omI))
		g.invmod(tmp1, g.mem(tmp1))
		g.mulmod(tmp1, g.mem(zhOverN), g.mem(tmp1))
		g.mulmod(tmp1, g.mem(tmp1), g.imm(omI))
		g.mulmod(tmp1, g.mem(tmp1), g.cd(cdPub+32*uint32(i)))
		g.submod(pi, g.mem(pi), g.mem(tmp1))
		omI.Mul(&omI, &vk.Generator)
	}

	g.mulmod(theta2, g.mem(theta), g.mem(theta))
	g.mulmod(al2, g.mem(alpha), g.mem(alpha))
	g.mulmod(al3, g.mem(al2), g.mem(alpha))
	g.mulmod(al4, g.mem(al3), g.mem(alpha))
	g.mulmod(al5, g.mem(al4), g.mem(alpha))

	// Gate constraint.
	g.mulmod(acc, fx(circuit.QL), ev(backend.EvA))
	g.mulmod(term, fx(circuit.QR), ev(backend.EvB))
	g.addmod(acc, g.mem(acc), g.mem(term))
	g.mulmod(term, ev(backend.EvA), ev(backend.EvB))
	g.mulmod(term, g.mem(term), fx(circuit.QM))
	g.addmod(acc, g.mem(acc), g.mem(term))
	g.mulmod(term, fx(circuit.QO), ev(backend.EvC))
	g.addmod(acc, g.mem(acc), g.mem(term))
	g.mulmod(term, fx(circuit.QNext), evs(backend.EvwC))
	g.addmod(acc, g.mem(acc), g.mem(term))
	g.addmod(acc, g.mem(acc), fx(circuit.QC))
	g.addmod(acc, g.mem(acc), g.mem(pi))

	// Permutation constraint.
	var shift2 fr.Element
	shift2.Mul(&vk.CosetShift, &vk.CosetShift)
	g.mulmod(u1, g.mem(betaP), g.mem(zeta))
	g.addmod(u1, g.mem(u1), ev(backend.EvA))
	g.addmod(u1, g.mem(u1), g.mem(gamma))
	g.mulmod(u2, g.imm(vk.CosetShift), g.mem(zeta))
	g.mulmod(u2, g.mem(u2), g.mem(betaP))
	g.addmod(u2, g.mem(u2), ev(backend.EvB))
	g.addmod(u2, g.mem(u2), g.mem(gamma))
	g.mulmod(u3, g.imm(shift2), g.mem(zeta))
	g.mulmod(u3, g.mem(u3), g.mem(betaP))
	g.addmod(u3, g.mem(u3), ev(backend.EvC))
	g.addmod(u3, g.mem(u3), g.mem(gamma))
	g.mulmod(term, g.mem(u1), g.mem(u2))
	g.mulmod(term, g.mem(term), g.mem(u3))
	g.mulmod(term, g.mem(term), ev(backend.EvZP))

	g.mulmod(u1, ev(backend.EvS1), g.mem(betaP))
	g.addmod(u1, g.mem(u1), ev(backend.EvA))
	g.addmod(u1, g.mem(u1), g.mem(gamma))
	g.mulmod(u2, ev(backend.EvS2), g.mem(betaP))
	g.addmod(u2, g.mem(u2), ev(backend.EvB))
	g.addmod(u2, g.mem(u2), g.mem(gamma))
	g.mulmod(u3, ev(backend.EvS3), g.mem(betaP))
	g.addmod(u3, g.mem(u3), ev(backend.EvC))
	g.addmod(u3, g.mem(u3), g.mem(gamma))
	g.mulmod(u1, g.mem(u1), g.mem(u2))
	g.mulmod(u1, g.mem(u1), g.mem(u3))
	g.mulmod(u1, g.mem(u1), evs(backend.EvwZP))
	g.submod(term, g.mem(term), g.mem(u1))
	g.mulmod(term, g.mem(term), g.mem(alpha))
	g.addmod(acc, g.mem(acc), g.mem(term))

	// Permutation boundary.
	g.submod(term, ev(backend.EvZP), g.immInt(1))
	g.mulmod(term, g.mem(term), g.mem(lz))
	g.mulmod(term, g.mem(term), g.mem(al2))
	g.addmod(acc, g.mem(acc), g.mem(term))

	// Lookup helper constraint.
	g.mulmod(u1, g.mem(theta), ev(backend.EvA))
	g.addmod(u1, g.mem(u1), fx(circuit.QTag))
	g.mulmod(tmp1, g.mem(theta2), ev(backend.EvC))
	g.addmod(u1, g.mem(u1), g.mem(tmp1))
	g.addmod(u1, g.mem(u1), g.mem(beta))
	g.mulmod(u2, g.mem(theta), fx(circuit.TIn))
	g.addmod(u2, g.mem(u2), fx(circuit.TTag))
	g.mulmod(tmp1, g.mem(theta2), fx(circuit.TOut))
	g.addmod(u2, g.mem(u2), g.mem(tmp1))
	g.addmod(u2, g.mem(u2), g.mem(beta))
	g.mulmod(term, ev(backend.EvH), g.mem(u1))
	g.mulmod(term, g.mem(term), g.mem(u2))
	g.mulmod(tmp1, fx(circuit.QLk), g.mem(u2))
	g.submod(term, g.mem(term), g.mem(tmp1))
	g.mulmod(tmp1, fx(circuit.QT), ev(backend.EvM))
	g.mulmod(tmp1, g.mem(tmp1), g.mem(u1))
	g.addmod(term, g.mem(term), g.mem(tmp1))
	g.mulmod(term, g.mem(term), g.mem(al3))
	g.addmod(acc, g.mem(acc), g.mem(term))

	// Lookup running sum step.
	g.submod(term, evs(backend.EvwZL), ev(backend.EvZL))
	g.submod(term, g.mem(term), ev(backend.EvH))
	g.mulmod(term, g.mem(term), g.mem(al4))
	g.addmod(acc, g.mem(acc), g.mem(term))

	// Lookup boundary.
	g.mulmod(term, g.mem(lz), ev(backend.EvZL))
	g.mulmod(term, g.mem(term), g.mem(al5))
	g.addmod(acc, g.mem(acc), g.mem(term))

	// acc must equal Z_H(zeta) * T(zeta).
	g.mulmod(tmp1, g.mem(zh), ev(backend.EvT))
	g.requireEq(g.mem(acc), g.mem(tmp1))

	// Opening scalars.
	g.expmod(zetaCl, g.mem(zeta), big.NewInt(n+3))
	g.mulmod(zetaCl2, g.mem(zetaCl), g.mem(zetaCl))
	g.mulmod(omegaZeta, g.mem(zeta), g.imm(vk.Generator))
	g.mulmod(uwz, g.mem(u), g.mem(omegaZeta))

	g.a.pushInt(0)
	g.store(ez)
	g.a.pushInt(1)
	g.store(vp)
	for i := 0; i < backend.NumEval; i++ {
		g.mulmod(tmp1, g.mem(vp), ev(i))
		g.addmod(ez, g.mem(ez), g.mem(tmp1))
		g.mulmod(vp, g.mem(vp), g.mem(v))
	}
	evs(backend.EvwC)()
	g.store(ew)
	g.mulmod(tmp1, g.mem(v), evs(backend.EvwZL))
	g.addmod(ew, g.mem(ew), g.mem(tmp1))
	g.mulmod(v2, g.mem(v), g.mem(v))
	g.mulmod(tmp1, g.mem(v2), evs(backend.EvwZP))
	g.addmod(ew, g.mem(ew), g.mem(tmp1))
	g.mulmod(eFold, g.mem(u), g.mem(ew))
	g.addmod(eFold, g.mem(ez), g.mem(eFold))
	g.submod(negE, g.immInt(0), g.mem(eFold))

	// Folded quotient commitment.
	g.writePt(ft, cdPt(cdT1))
	g.ecMul(ptmp, cdPt(cdT2), g.mem(zetaCl))
	g.ecAdd(ft, memPt(ft), memPt(ptmp))
	g.ecMul(ptmp, cdPt(cdT3), g.mem(zetaCl2))
	g.ecAdd(ft, memPt(ft), memPt(ptmp))

	// Zeta batch commitment.
	g.writePt(pz, memPt(ft))
	g.mem(v)()
	g.store(vp)
	refs := []ptRef{
		cdPt(cdA), cdPt(cdB), cdPt(cdC), cdPt(cdM),
		cdPt(cdH), cdPt(cdZL), cdPt(cdZP),
	}
	for i := 0; i < setup.NumFixedPolys; i++ {
		refs = append(refs, immPt(vk.Fixed[i]))
	}
	for _, ref := range refs {
		g.ecMul(ptmp, ref, g.mem(vp))
		g.ecAdd(pz, memPt(pz), memPt(ptmp))
		g.mulmod(vp, g.mem(vp), g.mem(v))
	}

	// Shifted batch commitment.
	g.writePt(pw, cdPt(cdC))
	g.ecMul(ptmp, cdPt(cdZL), g.mem(v))
	g.ecAdd(pw, memPt(pw), memPt(ptmp))
	g.ecMul(ptmp, cdPt(cdZP), g.mem(v2))
	g.ecAdd(pw, memPt(pw), memPt(ptmp))

	// accL = Wz + u*Wzw.
	g.writePt(accL, cdPt(cdWz))
	g.ecMul(ptmp, cdPt(cdWzw), g.mem(u))
	g.ecAdd(accL, memPt(accL), memPt(ptmp))

	// accR = zeta*Wz + u*omega*zeta*Wzw + Pz + u*Pw - E*G1.
	g.ecMul(accR, cdPt(cdWz), g.mem(zeta))
	g.ecMul(ptmp, cdPt(cdWzw), g.mem(uwz))
	g.ecAdd(accR, memPt(accR), memPt(ptmp))
	g.ecAdd(accR, memPt(accR), memPt(pz))
	g.ecMul(ptmp, memPt(pw), g.mem(u))
	g.ecAdd(accR, memPt(accR), memPt(ptmp))
	g.ecMul(ptmp, immPt(vk.G1Gen), g.mem(negE))
	g.ecAdd(accR, memPt(accR), memPt(ptmp))

	// Negate accR for the pairing equation.
	g.a.push(g.pMod)
	g.mem(accR + 32)()
	g.a.push(g.pMod)
	g.a.op(vm.SUB, vm.MOD)
	g.store(accR + 32)

	// e(accL, [tau]_2) * e(-accR, [1]_2) == 1.
	g.writePt(memBuf, memPt(accL))
	g.writeG2(memBuf+64, vk.G2[1])
	g.writePt(memBuf+192, memPt(accR))
	g.writeG2(memBuf+256, vk.G2[0])
	g.staticcall(addrPairing, memBuf, 384, memBuf, 32)
	g.mem(memBuf)()
	g.a.op(vm.ISZERO)
	g.a.pushLabel(g.revert)
	g.a.op(vm.JUMPI)

	g.a.pushInt(1)
	g.a.pushInt(0)
	g.a.op(vm.MSTORE)
	g.a.pushInt(32)
	g.a.pushInt(0)
	g.a.op(vm.RETURN)

	g.a.place(g.revert)
	g.a.pushInt(0)
	g.a.pushInt(0)
	g.a.op(vm.REVERT)

	code, err := g.a.finalize()
	if err != nil {
		return nil, err
	}
	log.Info().Int("bytes", len(code)).Int("publicInputs", m).Msg("verifier bytecode generated")
	return code, nil
}

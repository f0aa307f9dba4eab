package evm

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/core/vm"
)

// Memory map of the generated program. The first three words are keccak
// scratch, then the transcript state, then scalar and point registers,
// then the precompile call buffer.
const (
	memScratch = 0x0000
	memState   = 0x00a0
	memSlots   = 0x00c0 // scalar registers, allocated in sequence
	memPoints  = 0x0600 // 64-byte point registers
	memBuf     = 0x0800 // precompile input/output buffer
)

const (
	addrExpMod  = 0x05
	addrEcAdd   = 0x06
	addrEcMul   = 0x07
	addrPairing = 0x08
)

type gen struct {
	a      *asm
	revert *label
	rMod   *big.Int // fr modulus
	pMod   *big.Int // fp modulus
	nSlots uint32
	nPts   uint32
}

// slot allocates a scalar register.
func (g *gen) slot() uint32 {
	off := memSlots + 32*g.nSlots
	g.nSlots++
	if off+32 > memPoints {
		panic("scalar registers exhausted")
	}
	return off
}

// point allocates a 64-byte point register.
func (g *gen) point() uint32 {
	off := memPoints + 64*g.nPts
	g.nPts++
	if off+64 > memBuf {
		panic("point registers exhausted")
	}
	return off
}

// A source pushes one word on the stack.
type source func()

func (g *gen) mem(off uint32) source {
	return func() {
		g.a.pushInt(uint64(off))
		g.a.op(vm.MLOAD)
	}
}

func (g *gen) cd(off uint32) source {
	return func() {
		g.a.pushInt(uint64(off))
		g.a.op(vm.CALLDATALOAD)
	}
}

func (g *gen) imm(x fr.Element) source {
	return func() {
		g.a.pushBytes32(x.Bytes())
	}
}

func (g *gen) immInt(v uint64) source {
	return func() {
		g.a.pushInt(v)
	}
}

// store pops the stack top into a memory slot.
func (g *gen) store(off uint32) {
	g.a.pushInt(uint64(off))
	g.a.op(vm.MSTORE)
}

func (g *gen) pushR() {
	g.a.push(g.rMod)
}

// mulmod sets dst = x*y mod r.
func (g *gen) mulmod(dst uint32, x, y source) {
	g.pushR()
	y()
	x()
	g.a.op(vm.MULMOD)
	g.store(dst)
}

// addmod sets dst = x+y mod r.
func (g *gen) addmod(dst uint32, x, y source) {
	g.pushR()
	y()
	x()
	g.a.op(vm.ADDMOD)
	g.store(dst)
}

// submod sets dst = x-y mod r, assuming y < r.
func (g *gen) submod(dst uint32, x, y source) {
	g.pushR()
	y()
	g.pushR()
	g.a.op(vm.SUB)
	x()
	g.a.op(vm.ADDMOD)
	g.store(dst)
}

// staticcall invokes a precompile and jumps to revert on failure.
func (g *gen) staticcall(addr uint64, argsOff, argsLen, retOff, retLen uint32) {
	g.a.pushInt(uint64(retLen))
	g.a.pushInt(uint64(retOff))
	g.a.pushInt(uint64(argsLen))
	g.a.pushInt(uint64(argsOff))
	g.a.pushInt(addr)
	g.a.op(vm.GAS, vm.STATICCALL, vm.ISZERO)
	g.a.pushLabel(g.revert)
	g.a.op(vm.JUMPI)
}

// expmod sets dst = base^exp mod r via the modexp precompile.
func (g *gen) expmod(dst uint32, base source, exp *big.Int) {
	for i := 0; i < 3; i++ {
		g.a.pushInt(32)
		g.a.pushInt(uint64(memBuf + 32*i))
		g.a.op(vm.MSTORE)
	}
	base()
	g.store(memBuf + 96)
	g.a.push(exp)
	g.store(memBuf + 128)
	g.pushR()
	g.store(memBuf + 160)
	g.staticcall(addrExpMod, memBuf, 192, dst, 32)
}

// invmod sets dst = x^-1 mod r by Fermat exponentiation.
func (g *gen) invmod(dst uint32, x source) {
	g.expmod(dst, x, new(big.Int).Sub(g.rMod, big.NewInt(2)))
}

// ptRef names a G1 point: proof calldata, a memory register, or a key
// constant baked into the code.
type ptRef struct {
	cd  bool
	mem bool
	off uint32
	imm *bn254.G1Affine
}

func cdPt(off uint32) ptRef  { return ptRef{cd: true, off: off} }
func memPt(off uint32) ptRef { return ptRef{mem: true, off: off} }
func immPt(p bn254.G1Affine) ptRef {
	return ptRef{imm: &p}
}

// writePt copies a point into memory at dst.
func (g *gen) writePt(dst uint32, p ptRef) {
	switch {
	case p.cd:
		g.a.pushInt(64)
		g.a.pushInt(uint64(p.off))
		g.a.pushInt(uint64(dst))
		g.a.op(vm.CALLDATACOPY)
	case p.mem:
		g.mem(p.off)()
		g.store(dst)
		g.mem(p.off + 32)()
		g.store(dst + 32)
	default:
		var x, y big.Int
		p.imm.X.BigInt(&x)
		p.imm.Y.BigInt(&y)
		g.a.push(&x)
		g.store(dst)
		g.a.push(&y)
		g.store(dst + 32)
	}
}

// writeG2 stores a G2 constant in precompile encoding: imaginary limb
// before real, X before Y.
func (g *gen) writeG2(dst uint32, p bn254.G2Affine) {
	coords := []*big.Int{
		p.X.A1.BigInt(new(big.Int)),
		p.X.A0.BigInt(new(big.Int)),
		p.Y.A1.BigInt(new(big.Int)),
		p.Y.A0.BigInt(new(big.Int)),
	}
	for i, c := range coords {
		g.a.push(c)
		g.store(dst + 32*uint32(i))
	}
}

// ecMul sets dst = scalar * p.
func (g *gen) ecMul(dst uint32, p ptRef, scalar source) {
	g.writePt(memBuf, p)
	scalar()
	g.store(memBuf + 64)
	g.staticcall(addrEcMul, memBuf, 96, dst, 64)
}

// ecAdd sets dst = p + q.
func (g *gen) ecAdd(dst uint32, p, q ptRef) {
	g.writePt(memBuf, p)
	g.writePt(memBuf+64, q)
	g.staticcall(addrEcAdd, memBuf, 128, dst, 64)
}

// absorbCd extends the transcript with calldata bytes.
func (g *gen) absorbCd(cdOff, size uint32) {
	g.mem(memState)()
	g.store(memScratch)
	g.a.pushInt(uint64(size))
	g.a.pushInt(uint64(cdOff))
	g.a.pushInt(memScratch + 32)
	g.a.op(vm.CALLDATACOPY)
	g.a.pushInt(uint64(32 + size))
	g.a.pushInt(memScratch)
	g.a.op(vm.KECCAK256)
	g.store(memState)
}

// challenge squeezes the state into dst and ratchets.
func (g *gen) challenge(dst uint32) {
	g.pushR()
	g.mem(memState)()
	g.a.op(vm.MOD)
	g.store(dst)

	g.mem(memState)()
	g.store(memScratch)
	g.a.pushInt(1)
	g.a.pushInt(memScratch + 32)
	g.a.op(vm.MSTORE8)
	g.a.pushInt(33)
	g.a.pushInt(memScratch)
	g.a.op(vm.KECCAK256)
	g.store(memState)
}

// requireEq jumps to revert unless the two sources are equal.
func (g *gen) requireEq(x, y source) {
	y()
	x()
	g.a.op(vm.EQ, vm.ISZERO)
	g.a.pushLabel(g.revert)
	g.a.op(vm.JUMPI)
}

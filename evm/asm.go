// Package evm generates a standalone on-chain verifier for one verifying
// key. The output is raw runtime bytecode: it reads a proof and the public
// inputs from calldata, replays the transcript with keccak, checks the
// evaluation identity with modular arithmetic, and settles the batched
// opening with the pairing precompile. No Solidity involved.
package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/vm"
)

// asm is a one-pass bytecode emitter with two-byte jump labels patched at
// the end.
type asm struct {
	code   []byte
	labels []*label
}

type label struct {
	pos    int // byte offset of the JUMPDEST, -1 until placed
	fixups []int
}

func (a *asm) newLabel() *label {
	l := &label{pos: -1}
	a.labels = append(a.labels, l)
	return l
}

func (a *asm) op(ops ...vm.OpCode) {
	for _, o := range ops {
		a.code = append(a.code, byte(o))
	}
}

// push emits the shortest PUSH for the value.
func (a *asm) push(v *big.Int) {
	if v.Sign() < 0 {
		panic("push negative")
	}
	b := v.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	if len(b) > 32 {
		panic("push over 32 bytes")
	}
	a.code = append(a.code, byte(vm.PUSH1)+byte(len(b)-1))
	a.code = append(a.code, b...)
}

func (a *asm) pushInt(v uint64) {
	a.push(new(big.Int).SetUint64(v))
}

func (a *asm) pushBytes32(b [32]byte) {
	a.push(new(big.Int).SetBytes(b[:]))
}

// pushLabel emits a PUSH2 whose value is patched to the label's offset.
func (a *asm) pushLabel(l *label) {
	a.code = append(a.code, byte(vm.PUSH2))
	l.fixups = append(l.fixups, len(a.code))
	a.code = append(a.code, 0, 0)
}

func (a *asm) place(l *label) {
	if l.pos >= 0 {
		panic("label placed twice")
	}
	l.pos = len(a.code)
	a.op(vm.JUMPDEST)
}

func (a *asm) finalize() ([]byte, error) {
	if len(a.code) > 0xffff {
		return nil, fmt.Errorf("program too large: %d bytes", len(a.code))
	}
	for _, l := range a.labels {
		if l.pos < 0 {
			return nil, fmt.Errorf("unplaced label with %d uses", len(l.fixups))
		}
		for _, f := range l.fixups {
			a.code[f] = byte(l.pos >> 8)
			a.code[f+1] = byte(l.pos)
		}
	}
	return a.code, nil
}

package circuit

import "fmt"

// TapeOpKind enumerates witness tape instructions. The tape is a flat
// program producing one field element per instruction; rows then reference
// tape slots, so laying out a gate and valuing it can never diverge.
type TapeOpKind uint8

const (
	// TapeConst loads the signed constant Imm.
	TapeConst TapeOpKind = iota
	// TapeInput loads element Imm of the flattened input stream.
	TapeInput
	// TapeKey loads the stream cipher key supplied with the inputs.
	TapeKey
	// TapeRoundConst loads MiMC round constant Imm.
	TapeRoundConst
	// TapeAdd, TapeSub, TapeMul combine slots A and B.
	TapeAdd
	TapeSub
	TapeMul
	// TapeMulAdd computes slot A + slot B * slot C; A may be -1 for zero.
	TapeMulAdd
	// TapeLookup applies table Table to the integer value of slot A.
	TapeLookup
)

var tapeNames = map[TapeOpKind]string{
	TapeConst:      "const",
	TapeInput:      "input",
	TapeKey:        "key",
	TapeRoundConst: "roundconst",
	TapeAdd:        "add",
	TapeSub:        "sub",
	TapeMul:        "mul",
	TapeMulAdd:     "muladd",
	TapeLookup:     "lookup",
}

func (k TapeOpKind) String() string {
	if s, ok := tapeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("tapeop(%d)", uint8(k))
}

// TapeOp is one tape instruction. Operand slots must precede the
// instruction's own slot.
type TapeOp struct {
	Kind    TapeOpKind
	A, B, C int32
	Imm     int64
	Table   int32
}

func (op TapeOp) validate(slot, tapeLen, numTables int) error {
	bad := func(why string) error {
		return fmt.Errorf("%w: tape slot %d (%s): %s", ErrMalformedCircuit, slot, op.Kind, why)
	}
	earlier := func(s int32) bool { return s >= 0 && int(s) < slot }
	switch op.Kind {
	case TapeConst, TapeKey:
	case TapeInput:
		if op.Imm < 0 {
			return bad("negative input index")
		}
	case TapeRoundConst:
		if op.Imm < 0 {
			return bad("negative round index")
		}
	case TapeAdd, TapeSub, TapeMul:
		if !earlier(op.A) || !earlier(op.B) {
			return bad("operand does not precede the instruction")
		}
	case TapeMulAdd:
		if op.A != -1 && !earlier(op.A) {
			return bad("addend does not precede the instruction")
		}
		if !earlier(op.B) || !earlier(op.C) {
			return bad("factor does not precede the instruction")
		}
	case TapeLookup:
		if !earlier(op.A) {
			return bad("operand does not precede the instruction")
		}
		if op.Table < 0 || int(op.Table) >= numTables {
			return bad("table index out of range")
		}
	default:
		return bad("unknown instruction")
	}
	return nil
}

// Package witness values a compiled circuit: it executes the tape program
// over concrete inputs, fills the advice columns row by row, and counts
// lookup multiplicities.
package witness

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/field"
	"github.com/graphproof/graphproof/gadget"
)

// ErrWitnessMismatch reports inputs that do not fit the circuit's tape.
var ErrWitnessMismatch = errors.New("inputs do not match the circuit")

// Generate executes the circuit tape over a flattened input stream. key is
// required only when the circuit carries encrypted tensors.
func Generate(c *circuit.Circuit, stream []int64, key *fr.Element) (*circuit.Assignment, error) {
	vals, err := runTape(c, stream, key)
	if err != nil {
		return nil, err
	}

	a := circuit.NewAssignment(c)
	at := func(slot int32) fr.Element {
		if slot < 0 {
			return fr.Element{}
		}
		return vals[slot]
	}
	for r, refs := range c.Rows {
		a.L[r] = at(refs.L)
		a.R[r] = at(refs.R)
		a.O[r] = at(refs.O)
	}
	for i, s := range c.PublicSlots {
		a.Public[i] = vals[s]
	}
	if err := fillMultiplicities(c, a); err != nil {
		return nil, err
	}
	return a, nil
}

func runTape(c *circuit.Circuit, stream []int64, key *fr.Element) ([]fr.Element, error) {
	for i, v := range stream {
		if v > field.MaxAbs || v < -field.MaxAbs {
			return nil, fmt.Errorf("%w: input %d out of range", gadget.ErrOutOfRangeValue, i)
		}
	}
	consts := gadget.Constants()
	vals := make([]fr.Element, len(c.Tape))
	for i, op := range c.Tape {
		switch op.Kind {
		case circuit.TapeConst:
			vals[i] = field.FromInt64(op.Imm)
		case circuit.TapeInput:
			if int(op.Imm) >= len(stream) {
				return nil, fmt.Errorf("%w: circuit reads input %d, stream has %d values",
					ErrWitnessMismatch, op.Imm, len(stream))
			}
			vals[i] = field.FromInt64(stream[op.Imm])
		case circuit.TapeKey:
			if key == nil {
				return nil, fmt.Errorf("%w: circuit expects a stream cipher key", ErrWitnessMismatch)
			}
			vals[i] = *key
		case circuit.TapeRoundConst:
			if int(op.Imm) >= len(consts) {
				return nil, fmt.Errorf("%w: round constant %d", circuit.ErrMalformedCircuit, op.Imm)
			}
			vals[i] = consts[op.Imm]
		case circuit.TapeAdd:
			vals[i].Add(&vals[op.A], &vals[op.B])
		case circuit.TapeSub:
			vals[i].Sub(&vals[op.A], &vals[op.B])
		case circuit.TapeMul:
			vals[i].Mul(&vals[op.A], &vals[op.B])
		case circuit.TapeMulAdd:
			vals[i].Mul(&vals[op.B], &vals[op.C])
			if op.A >= 0 {
				vals[i].Add(&vals[i], &vals[op.A])
			}
		case circuit.TapeLookup:
			v, err := field.ToInt64(vals[op.A])
			if err != nil {
				return nil, fmt.Errorf("%w: lookup input: %v", gadget.ErrOutOfRangeValue, err)
			}
			out, err := gadget.EvalTable(c.Tables[op.Table], v)
			if err != nil {
				return nil, err
			}
			vals[i] = field.FromInt64(out)
		default:
			return nil, fmt.Errorf("%w: tape op %s", circuit.ErrMalformedCircuit, op.Kind)
		}
	}
	return vals, nil
}

// fillMultiplicities counts how often each merged-table row is looked up.
// Table rows are laid out contiguously in tag order from row zero.
func fillMultiplicities(c *circuit.Circuit, a *circuit.Assignment) error {
	offsets := make(map[int64]int, len(c.Tables))
	half := make(map[int64]int64, len(c.Tables))
	off := 0
	for _, t := range c.Tables {
		offsets[t.Tag] = off
		half[t.Tag] = int64(1) << (t.Bits - 1)
		off += t.Rows()
	}
	one := fr.One()
	for r := range c.Rows {
		if !c.Fixed[circuit.QLk][r].IsOne() {
			continue
		}
		tag := c.Fixed[circuit.QTag][r]
		tagInt, err := field.ToInt64(tag)
		if err != nil {
			return fmt.Errorf("%w: lookup tag at row %d", circuit.ErrMalformedCircuit, r)
		}
		in, err := field.ToInt64(a.L[r])
		if err != nil {
			return fmt.Errorf("%w: lookup input at row %d: %v", gadget.ErrOutOfRangeValue, r, err)
		}
		base, ok := offsets[tagInt]
		if !ok {
			return fmt.Errorf("%w: unknown lookup tag %d at row %d", circuit.ErrMalformedCircuit, tagInt, r)
		}
		a.M[base+int(in+half[tagInt])].Add(&a.M[base+int(in+half[tagInt])], &one)
	}
	return nil
}

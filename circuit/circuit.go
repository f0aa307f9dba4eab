// Package circuit defines the compiled constraint system: a single
// universal gate over three advice columns, a wiring permutation, and one
// merged tagged lookup table.
//
// Every row must satisfy
//
//	qL*l + qR*r + qM*l*r + qO*o + qNext*o(next) + qC + PI = 0
//
// where PI carries the negated public inputs on the first NumPublic rows.
// Rows with qLk = 1 assert that (qTag, l, o) appears among the table rows
// (tTag, tIn, tOut); rows with qT = 1 are the live table rows. Copy
// constraints identify advice cells through the Sigma permutation over wire
// indices column*N + row.
package circuit

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Fixed column indices.
const (
	QL = iota
	QR
	QM
	QO
	QNext
	QC
	QLk
	QTag
	QT
	TTag
	TIn
	TOut
	NumFixed
)

// Advice column indices, used to form wire ids.
const (
	ColL = iota
	ColR
	ColO
	NumAdvice
)

// MinRows keeps domains large enough for blinding and the running columns.
const MinRows = 16

// TableKind selects the function a lookup table tabulates.
type TableKind uint8

const (
	// TableRelu maps v to max(v, 0).
	TableRelu TableKind = iota
	// TableSigmoid maps v to round(sigmoid(v / 2^Fracs) * 2^Fracs).
	TableSigmoid
	// TableDiv maps v to the floor quotient of v by Divisor.
	TableDiv
)

func (k TableKind) String() string {
	switch k {
	case TableRelu:
		return "relu"
	case TableSigmoid:
		return "sigmoid"
	case TableDiv:
		return "div"
	default:
		return fmt.Sprintf("table(%d)", uint8(k))
	}
}

// TableSpec describes one logical lookup table inside the merged region.
// The domain is [-2^(Bits-1), 2^(Bits-1)). Tags start at 1 and keep merged
// tables disjoint.
type TableSpec struct {
	Kind    TableKind
	Bits    uint
	Fracs   uint  // fixed-point scale for TableSigmoid
	Divisor int64 // for TableDiv
	Tag     int64
}

// Rows returns the number of merged-region rows the table occupies.
func (t TableSpec) Rows() int { return 1 << t.Bits }

// Span labels a half-open row range with the graph node that produced it,
// for constraint failure reports.
type Span struct {
	Start int
	End   int
	Label string
}

// RowRefs names the tape slots assigned to a row's advice cells. A negative
// slot means the cell stays zero.
type RowRefs struct {
	L, R, O int32
}

// Circuit is the full compiled artifact. Fixed columns and Sigma determine
// the proving and verifying keys; Tape and Rows drive witness generation.
type Circuit struct {
	N         int // row count, power of two
	NumPublic int
	// OutputScale is the fixed-point scale of the model output, needed to
	// dequantize public output words.
	OutputScale uint

	Fixed [NumFixed][]fr.Element
	// Sigma is the copy-constraint permutation over [0, 3N).
	Sigma []int64

	Tables []TableSpec
	Spans  []Span

	// Witness layout. Rows covers the first len(Rows) rows; the remainder
	// is zero advice. PublicSlots names the tape slot behind each public
	// input, in row order.
	Tape        []TapeOp
	Rows        []RowRefs
	PublicSlots []int32

	// OnchainRows lists the public rows whose words the verifier sources
	// from attested on-chain values, in ascending order.
	OnchainRows []int32

	GraphDigest [32]byte
}

var ErrMalformedCircuit = errors.New("malformed circuit")

// Validate checks structural consistency after construction or load.
func (c *Circuit) Validate() error {
	if c.N < MinRows || c.N&(c.N-1) != 0 {
		return fmt.Errorf("%w: row count %d is not a power of two >= %d", ErrMalformedCircuit, c.N, MinRows)
	}
	if c.NumPublic < 0 || c.NumPublic > len(c.Rows) {
		return fmt.Errorf("%w: %d public rows with %d laid-out rows", ErrMalformedCircuit, c.NumPublic, len(c.Rows))
	}
	if len(c.Rows) > c.N {
		return fmt.Errorf("%w: %d rows laid out in a domain of %d", ErrMalformedCircuit, len(c.Rows), c.N)
	}
	for i := 0; i < NumFixed; i++ {
		if len(c.Fixed[i]) != c.N {
			return fmt.Errorf("%w: fixed column %d has %d rows, want %d", ErrMalformedCircuit, i, len(c.Fixed[i]), c.N)
		}
	}
	if len(c.Sigma) != NumAdvice*c.N {
		return fmt.Errorf("%w: sigma has %d entries, want %d", ErrMalformedCircuit, len(c.Sigma), NumAdvice*c.N)
	}
	seen := make([]bool, len(c.Sigma))
	for i, s := range c.Sigma {
		if s < 0 || int(s) >= len(c.Sigma) || seen[s] {
			return fmt.Errorf("%w: sigma is not a permutation at %d", ErrMalformedCircuit, i)
		}
		seen[s] = true
	}
	if len(c.PublicSlots) != c.NumPublic {
		return fmt.Errorf("%w: %d public slots for %d public rows", ErrMalformedCircuit, len(c.PublicSlots), c.NumPublic)
	}
	for i, op := range c.Tape {
		if err := op.validate(i, len(c.Tape), len(c.Tables)); err != nil {
			return err
		}
	}
	checkSlot := func(s int32) bool { return s >= -1 && int(s) < len(c.Tape) }
	for i, r := range c.Rows {
		if !checkSlot(r.L) || !checkSlot(r.R) || !checkSlot(r.O) {
			return fmt.Errorf("%w: row %d references a bad tape slot", ErrMalformedCircuit, i)
		}
	}
	for i, s := range c.PublicSlots {
		if s < 0 || int(s) >= len(c.Tape) {
			return fmt.Errorf("%w: public slot %d references bad tape slot %d", ErrMalformedCircuit, i, s)
		}
	}
	for i, r := range c.OnchainRows {
		if r < 0 || int(r) >= c.NumPublic {
			return fmt.Errorf("%w: onchain row %d out of the public range", ErrMalformedCircuit, r)
		}
		if i > 0 && r <= c.OnchainRows[i-1] {
			return fmt.Errorf("%w: onchain rows out of order at %d", ErrMalformedCircuit, i)
		}
	}
	return nil
}

// SpanFor returns the label covering a row, if any.
func (c *Circuit) SpanFor(row int) string {
	for _, s := range c.Spans {
		if row >= s.Start && row < s.End {
			return s.Label
		}
	}
	return ""
}

// GateEval computes the universal gate at one row given the advice values
// and the next row's output. The public-input term is not included.
func GateEval(ql, qr, qm, qo, qnext, qc, l, r, o, onext fr.Element) fr.Element {
	var acc, t fr.Element
	acc.Mul(&ql, &l)
	t.Mul(&qr, &r)
	acc.Add(&acc, &t)
	t.Mul(&qm, &l).Mul(&t, &r)
	acc.Add(&acc, &t)
	t.Mul(&qo, &o)
	acc.Add(&acc, &t)
	t.Mul(&qnext, &onext)
	acc.Add(&acc, &t)
	acc.Add(&acc, &qc)
	return acc
}

// Assignment is a fully materialized witness: the advice columns, the
// lookup multiplicities, and the public input values.
type Assignment struct {
	L, R, O []fr.Element
	M       []fr.Element
	Public  []fr.Element
}

// NewAssignment allocates zeroed columns for a circuit.
func NewAssignment(c *Circuit) *Assignment {
	return &Assignment{
		L:      make([]fr.Element, c.N),
		R:      make([]fr.Element, c.N),
		O:      make([]fr.Element, c.N),
		M:      make([]fr.Element, c.N),
		Public: make([]fr.Element, c.NumPublic),
	}
}

// Wire returns the advice value behind a wire id column*N + row.
func (a *Assignment) Wire(c *Circuit, wire int64) fr.Element {
	col, row := int(wire)/c.N, int(wire)%c.N
	switch col {
	case ColL:
		return a.L[row]
	case ColR:
		return a.R[row]
	default:
		return a.O[row]
	}
}

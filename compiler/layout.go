package compiler

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/field"
	"github.com/graphproof/graphproof/gadget"
	"github.com/graphproof/graphproof/tensor"
	"github.com/graphproof/graphproof/utils"
)

const noSlot int32 = -1

// rowQ carries the fixed-column values of one row under construction.
type rowQ = [circuit.NumFixed]fr.Element

type rowBuild struct {
	q    rowQ
	refs circuit.RowRefs
}

type cellRef struct {
	col int32
	row int32
}

type tableKey struct {
	kind    circuit.TableKind
	bits    uint
	fracs   uint
	divisor int64
}

// layout accumulates tape instructions, gate rows and cell placements, then
// freezes them into a Circuit. Placing one tape slot in several cells copy
// constrains those cells through the permutation.
type layout struct {
	tape  []circuit.TapeOp
	rows  []rowBuild
	place [][]cellRef
	spans []circuit.Span

	tables   []circuit.TableSpec
	tableIdx map[tableKey]int32

	numPublic   int
	piCursor    int
	publicSlots []int32
	onchainRows []int32

	constCache  map[int64]int32
	pinnedCache map[int64]bool
	roundCache  map[int64]int32
	keySlot     int32

	one, negOne fr.Element
}

func newLayout(numPublic int) *layout {
	lo := &layout{
		tableIdx:    make(map[tableKey]int32),
		constCache:  make(map[int64]int32),
		pinnedCache: make(map[int64]bool),
		roundCache:  make(map[int64]int32),
		numPublic:   numPublic,
		keySlot:     noSlot,
		one:         fr.One(),
	}
	lo.negOne.Neg(&lo.one)
	for i := 0; i < numPublic; i++ {
		var q rowQ
		q[circuit.QL] = lo.one
		lo.rows = append(lo.rows, rowBuild{q: q, refs: circuit.RowRefs{L: noSlot, R: noSlot, O: noSlot}})
	}
	return lo
}

func (lo *layout) slot(op circuit.TapeOp) int32 {
	lo.tape = append(lo.tape, op)
	lo.place = append(lo.place, nil)
	return int32(len(lo.tape) - 1)
}

func (lo *layout) constSlot(v int64) int32 {
	if s, ok := lo.constCache[v]; ok {
		return s
	}
	s := lo.slot(circuit.TapeOp{Kind: circuit.TapeConst, Imm: v})
	lo.constCache[v] = s
	return s
}

func (lo *layout) roundSlot(j int) int32 {
	if s, ok := lo.roundCache[int64(j)]; ok {
		return s
	}
	s := lo.slot(circuit.TapeOp{Kind: circuit.TapeRoundConst, Imm: int64(j)})
	lo.roundCache[int64(j)] = s
	return s
}

func (lo *layout) key() int32 {
	if lo.keySlot == noSlot {
		lo.keySlot = lo.slot(circuit.TapeOp{Kind: circuit.TapeKey})
	}
	return lo.keySlot
}

func (lo *layout) placeCell(slot, col, row int32) {
	if slot >= 0 {
		lo.place[slot] = append(lo.place[slot], cellRef{col: col, row: row})
	}
}

// addGate appends one row. Negative slots leave the cell at zero.
func (lo *layout) addGate(q rowQ, l, r, o int32) int32 {
	row := int32(len(lo.rows))
	lo.rows = append(lo.rows, rowBuild{q: q, refs: circuit.RowRefs{L: l, R: r, O: o}})
	lo.placeCell(l, circuit.ColL, row)
	lo.placeCell(r, circuit.ColR, row)
	lo.placeCell(o, circuit.ColO, row)
	return row
}

// span labels the rows emitted by fn for constraint failure reports.
func (lo *layout) span(label string, fn func() error) error {
	start := len(lo.rows)
	if err := fn(); err != nil {
		return err
	}
	if end := len(lo.rows); end > start {
		lo.spans = append(lo.spans, circuit.Span{Start: start, End: end, Label: label})
	}
	return nil
}

// bindPublic assigns slot to the next reserved public-input row.
func (lo *layout) bindPublic(slot int32) error {
	if lo.piCursor >= lo.numPublic {
		return fmt.Errorf("public input rows exhausted")
	}
	lo.rows[lo.piCursor].refs.L = slot
	lo.placeCell(slot, circuit.ColL, int32(lo.piCursor))
	lo.publicSlots = append(lo.publicSlots, slot)
	lo.piCursor++
	return nil
}

// bindOnchain binds like bindPublic and records the row as chain-attested,
// so the calldata description can point integrators at it.
func (lo *layout) bindOnchain(slot int32) error {
	lo.onchainRows = append(lo.onchainRows, int32(lo.piCursor))
	return lo.bindPublic(slot)
}

// table returns the merged-region index of a spec, materializing it on
// first use. Tags start at 1.
func (lo *layout) table(kind circuit.TableKind, bits, fracs uint, divisor int64) int32 {
	k := tableKey{kind: kind, bits: bits, fracs: fracs, divisor: divisor}
	if idx, ok := lo.tableIdx[k]; ok {
		return idx
	}
	idx := int32(len(lo.tables))
	lo.tables = append(lo.tables, circuit.TableSpec{
		Kind:    kind,
		Bits:    bits,
		Fracs:   fracs,
		Divisor: divisor,
		Tag:     int64(idx + 1),
	})
	lo.tableIdx[k] = idx
	return idx
}

// pinConst forces a cell to a circuit constant through the qC column.
func (lo *layout) pinConst(slot int32, v int64) {
	var q rowQ
	q[circuit.QL] = lo.one
	q[circuit.QC] = field.FromInt64(-v)
	lo.addGate(q, slot, noSlot, noSlot)
}

// pinnedConstSlot returns a constant slot that is pinned by a gate, pinning
// it at most once however many sites share it.
func (lo *layout) pinnedConstSlot(v int64) int32 {
	s := lo.constSlot(v)
	if !lo.pinnedCache[v] {
		lo.pinConst(s, v)
		lo.pinnedCache[v] = true
	}
	return s
}

// macChain lays out a multiply-accumulate as a run of chained rows, each
// adding one term to a suffix sum carried on the output column. The result
// lives on the chain's first row.
func (lo *layout) macChain(terms []tensor.MacTerm, aSlots, bSlots []int32) int32 {
	k := len(terms)
	if k == 0 {
		return lo.pinnedConstSlot(0)
	}
	partials := make([]int32, k)
	for i := k - 1; i >= 0; i-- {
		t := terms[i]
		switch {
		case i == k-1 && t.B < 0:
			partials[i] = aSlots[t.A]
		case i == k-1:
			partials[i] = lo.slot(circuit.TapeOp{Kind: circuit.TapeMulAdd, A: noSlot, B: aSlots[t.A], C: bSlots[t.B]})
		case t.B < 0:
			partials[i] = lo.slot(circuit.TapeOp{Kind: circuit.TapeAdd, A: partials[i+1], B: aSlots[t.A]})
		default:
			partials[i] = lo.slot(circuit.TapeOp{Kind: circuit.TapeMulAdd, A: partials[i+1], B: aSlots[t.A], C: bSlots[t.B]})
		}
	}
	for i, t := range terms {
		var q rowQ
		l, r := aSlots[t.A], noSlot
		if t.B >= 0 {
			q[circuit.QM] = lo.one
			r = bSlots[t.B]
		} else {
			q[circuit.QL] = lo.one
		}
		q[circuit.QO] = lo.negOne
		if i < k-1 {
			q[circuit.QNext] = lo.one
		}
		lo.addGate(q, l, r, partials[i])
	}
	return partials[0]
}

// binOp lays out one elementwise row.
func (lo *layout) binOp(kind circuit.TapeOpKind, x, y int32) int32 {
	out := lo.slot(circuit.TapeOp{Kind: kind, A: x, B: y})
	var q rowQ
	switch kind {
	case circuit.TapeAdd:
		q[circuit.QL], q[circuit.QR] = lo.one, lo.one
	case circuit.TapeSub:
		q[circuit.QL] = lo.one
		q[circuit.QR] = lo.negOne
	default:
		q[circuit.QM] = lo.one
	}
	q[circuit.QO] = lo.negOne
	lo.addGate(q, x, y, out)
	return out
}

// lookupRow constrains (in, out) to lie in a table through the merged
// lookup argument.
func (lo *layout) lookupRow(tableIdx, in int32) int32 {
	out := lo.slot(circuit.TapeOp{Kind: circuit.TapeLookup, A: in, Table: tableIdx})
	var q rowQ
	q[circuit.QLk] = lo.one
	q[circuit.QTag].SetInt64(lo.tables[tableIdx].Tag)
	lo.addGate(q, in, noSlot, out)
	return out
}

// finalize pads the layout to a power-of-two domain, overlays the merged
// table region, and closes every placement list into a sigma cycle.
func (lo *layout) finalize(graphBytes []byte) (*circuit.Circuit, error) {
	if lo.piCursor != lo.numPublic {
		return nil, fmt.Errorf("bound %d public inputs, reserved %d", lo.piCursor, lo.numPublic)
	}
	tableRows := 0
	for _, t := range lo.tables {
		tableRows += t.Rows()
	}
	need := len(lo.rows)
	if tableRows > need {
		need = tableRows
	}
	if need < circuit.MinRows {
		need = circuit.MinRows
	}
	n := utils.NextPowerOfTwo(need)
	if n > 1<<MaxLogRows {
		return nil, fmt.Errorf("%w: %d rows, %d table rows", ErrDegreeOverflow, len(lo.rows), tableRows)
	}

	c := &circuit.Circuit{
		N:           n,
		NumPublic:   lo.numPublic,
		Tables:      lo.tables,
		Spans:       lo.spans,
		Tape:        lo.tape,
		PublicSlots: lo.publicSlots,
		OnchainRows: lo.onchainRows,
	}
	for i := 0; i < circuit.NumFixed; i++ {
		c.Fixed[i] = make([]fr.Element, n)
	}
	c.Rows = make([]circuit.RowRefs, len(lo.rows))
	for r, rb := range lo.rows {
		for i := 0; i < circuit.NumFixed; i++ {
			c.Fixed[i][r] = rb.q[i]
		}
		c.Rows[r] = rb.refs
	}

	row := 0
	for _, spec := range lo.tables {
		rows, err := gadget.TableRows(spec)
		if err != nil {
			return nil, err
		}
		for _, tr := range rows {
			c.Fixed[circuit.QT][row] = lo.one
			c.Fixed[circuit.TTag][row] = field.FromInt64(tr.Tag)
			c.Fixed[circuit.TIn][row] = field.FromInt64(tr.In)
			c.Fixed[circuit.TOut][row] = field.FromInt64(tr.Out)
			row++
		}
	}

	c.Sigma = make([]int64, circuit.NumAdvice*n)
	for i := range c.Sigma {
		c.Sigma[i] = int64(i)
	}
	wire := func(cr cellRef) int64 { return int64(cr.col)*int64(n) + int64(cr.row) }
	for _, cells := range lo.place {
		if len(cells) < 2 {
			continue
		}
		for i, cr := range cells {
			next := cells[(i+1)%len(cells)]
			c.Sigma[wire(cr)] = wire(next)
		}
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(graphBytes)
	copy(c.GraphDigest[:], h.Sum(nil))

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

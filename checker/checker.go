// Package checker verifies a full assignment against every constraint
// family of a circuit without any cryptography: gates row by row, lookup
// membership and multiplicities, copy constraints, and public input
// bindings. It reports concrete failures for debugging, the way a prover
// run never could.
package checker

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"

	"github.com/graphproof/graphproof/circuit"
)

// ErrConstraintViolation is returned by Satisfied when any check fails.
var ErrConstraintViolation = errors.New("constraint violation")

// MaxViolations bounds how many failures a check collects before stopping.
const MaxViolations = 32

// Violation pinpoints one failed constraint.
type Violation struct {
	Kind   string
	Row    int
	Label  string
	Detail string
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s constraint failed at row %d", v.Kind, v.Row)
	if v.Label != "" {
		s += " in " + v.Label
	}
	if v.Detail != "" {
		s += ": " + v.Detail
	}
	return s
}

// Check runs every constraint family and returns all violations found, up
// to MaxViolations. A nil result means the assignment satisfies the
// circuit.
func Check(c *circuit.Circuit, a *circuit.Assignment) []Violation {
	var vs []Violation
	add := func(v Violation) bool {
		v.Label = c.SpanFor(v.Row)
		vs = append(vs, v)
		return len(vs) < MaxViolations
	}

	if len(a.L) != c.N || len(a.R) != c.N || len(a.O) != c.N || len(a.M) != c.N {
		return []Violation{{Kind: "shape", Detail: "advice column length does not match the domain"}}
	}
	if len(a.Public) != c.NumPublic {
		return []Violation{{Kind: "public", Detail: fmt.Sprintf("%d public inputs, circuit expects %d", len(a.Public), c.NumPublic)}}
	}

	if !checkGates(c, a, add) {
		return vs
	}
	if !checkPublic(c, a, add) {
		return vs
	}
	if !checkLookups(c, a, add) {
		return vs
	}
	checkCopies(c, a, add)
	return vs
}

// Satisfied is the pass/fail form of Check.
func Satisfied(c *circuit.Circuit, a *circuit.Assignment) error {
	vs := Check(c, a)
	if len(vs) == 0 {
		return nil
	}
	msg := vs[0].String()
	if len(vs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(vs)-1)
	}
	return fmt.Errorf("%w: %s", ErrConstraintViolation, msg)
}

// checkGates shards the row range across workers; every row is independent.
// Shards cover contiguous ranges, so merging them in order keeps violations
// sorted by row.
func checkGates(c *circuit.Circuit, a *circuit.Assignment, add func(Violation) bool) bool {
	workers := runtime.GOMAXPROCS(0)
	if workers > c.N/circuit.MinRows {
		workers = 1
	}
	chunk := (c.N + workers - 1) / workers
	shards := make([][]Violation, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > c.N {
			hi = c.N
		}
		out := &shards[w]
		g.Go(func() error {
			for r := lo; r < hi; r++ {
				got := circuit.GateEval(
					c.Fixed[circuit.QL][r], c.Fixed[circuit.QR][r], c.Fixed[circuit.QM][r],
					c.Fixed[circuit.QO][r], c.Fixed[circuit.QNext][r], c.Fixed[circuit.QC][r],
					a.L[r], a.R[r], a.O[r], a.O[(r+1)%c.N],
				)
				if r < c.NumPublic {
					got.Sub(&got, &a.Public[r])
				}
				if !got.IsZero() {
					*out = append(*out, Violation{Kind: "gate", Row: r, Detail: "evaluates to " + got.String()})
					if len(*out) >= MaxViolations {
						return nil
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, shard := range shards {
		for _, v := range shard {
			if !add(v) {
				return false
			}
		}
	}
	return true
}

func checkPublic(c *circuit.Circuit, a *circuit.Assignment, add func(Violation) bool) bool {
	for i := 0; i < c.NumPublic; i++ {
		if !a.L[i].Equal(&a.Public[i]) {
			if !add(Violation{Kind: "public", Row: i,
				Detail: fmt.Sprintf("advice %s, public input %s", a.L[i].String(), a.Public[i].String())}) {
				return false
			}
		}
	}
	return true
}

func checkLookups(c *circuit.Circuit, a *circuit.Assignment, add func(Violation) bool) bool {
	type entry struct{ tag, in, out fr.Element }
	tableRow := make(map[entry]int)
	counts := make(map[int]uint64)
	for r := 0; r < c.N; r++ {
		if c.Fixed[circuit.QT][r].IsOne() {
			tableRow[entry{c.Fixed[circuit.TTag][r], c.Fixed[circuit.TIn][r], c.Fixed[circuit.TOut][r]}] = r
		}
	}
	for r := 0; r < c.N; r++ {
		if !c.Fixed[circuit.QLk][r].IsOne() {
			continue
		}
		e := entry{c.Fixed[circuit.QTag][r], a.L[r], a.O[r]}
		tr, ok := tableRow[e]
		if !ok {
			if !add(Violation{Kind: "lookup", Row: r,
				Detail: fmt.Sprintf("(%s, %s) is not in table %s", a.L[r].String(), a.O[r].String(), e.tag.String())}) {
				return false
			}
			continue
		}
		counts[tr]++
	}
	for r := 0; r < c.N; r++ {
		var want fr.Element
		want.SetUint64(counts[r])
		if !a.M[r].Equal(&want) {
			if !add(Violation{Kind: "multiplicity", Row: r,
				Detail: fmt.Sprintf("multiplicity %s, %d lookups land here", a.M[r].String(), counts[r])}) {
				return false
			}
		}
	}
	return true
}

func checkCopies(c *circuit.Circuit, a *circuit.Assignment, add func(Violation) bool) bool {
	for w := int64(0); w < int64(len(c.Sigma)); w++ {
		t := c.Sigma[w]
		if t == w {
			continue
		}
		x, y := a.Wire(c, w), a.Wire(c, t)
		if !x.Equal(&y) {
			if !add(Violation{Kind: "copy", Row: int(w) % c.N,
				Detail: fmt.Sprintf("wire %d = %s, wire %d = %s", w, x.String(), t, y.String())}) {
				return false
			}
		}
	}
	return true
}

// Package gadget supplies the building blocks the compiler lays out and the
// witness generator evaluates: lookup table contents and the MiMC
// permutation. Both sides call the same functions, so layout and values
// agree by construction.
package gadget

import (
	"errors"
	"fmt"
	"math"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/field"
)

// ErrOutOfRangeValue reports a value outside its lookup table domain,
// usually a sign the circuit's lookup bits are too small for the data.
var ErrOutOfRangeValue = errors.New("value outside lookup range")

// TableRow is one (tag, in, out) row of the merged lookup region.
type TableRow struct {
	Tag, In, Out int64
}

// TableRows materializes a spec over its domain [-2^(b-1), 2^(b-1)).
func TableRows(spec circuit.TableSpec) ([]TableRow, error) {
	half := int64(1) << (spec.Bits - 1)
	rows := make([]TableRow, 0, 2*half)
	for v := -half; v < half; v++ {
		out, err := EvalTable(spec, v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, TableRow{Tag: spec.Tag, In: v, Out: out})
	}
	return rows, nil
}

// EvalTable applies a table's function to one domain value.
func EvalTable(spec circuit.TableSpec, v int64) (int64, error) {
	half := int64(1) << (spec.Bits - 1)
	if v < -half || v >= half {
		return 0, fmt.Errorf("%w: %d with %d-bit table", ErrOutOfRangeValue, v, spec.Bits)
	}
	switch spec.Kind {
	case circuit.TableRelu:
		if v < 0 {
			return 0, nil
		}
		return v, nil
	case circuit.TableSigmoid:
		unit := float64(int64(1) << spec.Fracs)
		x := float64(v) / unit
		return int64(math.Round(unit / (1 + math.Exp(-x)))), nil
	case circuit.TableDiv:
		q, _ := field.RescaleDivRem(v, spec.Divisor)
		return q, nil
	default:
		return 0, fmt.Errorf("unknown table kind %d", spec.Kind)
	}
}

// Package field maps the signed fixed-point integers used by the graph
// runtime onto the BN254 scalar field and back. Negative values are encoded
// as p - |v|, so the integer range must stay well below p/2 on both sides.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Modulus returns the BN254 scalar field modulus.
func Modulus() *big.Int {
	return fr.Modulus()
}

// FromInt64 encodes a signed integer as a field element.
func FromInt64(v int64) fr.Element {
	var e fr.Element
	if v >= 0 {
		e.SetUint64(uint64(v))
		return e
	}
	e.SetUint64(uint64(-v))
	e.Neg(&e)
	return e
}

// ToInt64 decodes a field element produced by FromInt64. It fails if the
// element does not fit the signed 64-bit range on either side of zero.
func ToInt64(e fr.Element) (int64, error) {
	var b big.Int
	e.BigInt(&b)
	if b.IsInt64() {
		return b.Int64(), nil
	}
	var neg big.Int
	neg.Sub(fr.Modulus(), &b)
	if neg.IsInt64() {
		return -neg.Int64(), nil
	}
	return 0, fmt.Errorf("field element %s does not fit int64", e.String())
}

// FromInt64Slice encodes a slice of signed integers.
func FromInt64Slice(vs []int64) []fr.Element {
	out := make([]fr.Element, len(vs))
	for i, v := range vs {
		out[i] = FromInt64(v)
	}
	return out
}

// One returns the multiplicative identity.
func One() fr.Element {
	var e fr.Element
	e.SetOne()
	return e
}

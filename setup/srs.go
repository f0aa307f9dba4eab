// Package setup derives the structured reference string and the proving
// and verifying keys for a compiled circuit. Key derivation is fully
// deterministic: the same circuit and SRS always produce byte-identical
// keys.
package setup

import (
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"golang.org/x/crypto/sha3"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/utils"
)

// srsHeadroom keeps a few powers beyond the domain for blinded polynomials
// and quotient chunks.
const srsHeadroom = 8

// MinSRSSize returns the smallest SRS that can carry proofs for a circuit.
func MinSRSSize(c *circuit.Circuit) int {
	return c.N + srsHeadroom
}

// NewSRS generates a development reference string from a seed. The toxic
// scalar is derived by hashing the seed, so this is NOT a trusted setup;
// production deployments load a ceremony transcript instead.
func NewSRS(size int, seed [32]byte) (*kzg.SRS, error) {
	if size < circuit.MinRows {
		return nil, fmt.Errorf("srs size %d below the minimum domain", size)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(seed[:])
	h.Write([]byte("srs tau"))
	tau := new(big.Int).SetBytes(h.Sum(nil))
	mod := new(big.Int).Sub(fr.Modulus(), big.NewInt(3))
	tau.Mod(tau, mod).Add(tau, big.NewInt(2))

	srs, err := kzg.NewSRS(uint64(utils.NextPowerOfTwo(size)), tau)
	if err != nil {
		return nil, fmt.Errorf("generate srs: %w", err)
	}
	return srs, nil
}

// SaveSRS writes an SRS in the gnark-crypto binary form.
func SaveSRS(w io.Writer, srs *kzg.SRS) error {
	_, err := srs.WriteTo(w)
	return err
}

// LoadSRS reads an SRS written by SaveSRS or produced by an external
// ceremony in the same format.
func LoadSRS(r io.Reader) (*kzg.SRS, error) {
	srs := new(kzg.SRS)
	if _, err := srs.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read srs: %w", err)
	}
	return srs, nil
}

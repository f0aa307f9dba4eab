// Package backend implements the polynomial commitment argument: proving,
// verification, and the proof wire format. The scheme is a PLONK variant
// with a multiplicity column and a logarithmic-derivative lookup, committed
// with KZG on BN254.
package backend

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

// Transcript is a keccak256 chain. Every absorbed item extends the chain as
// state = keccak(state || item); a challenge is the state reduced mod r,
// followed by a one-byte ratchet so back-to-back challenges differ. The
// layout uses only keccak and big-endian words so an EVM verifier can walk
// the same chain.
type Transcript struct {
	state [32]byte
}

// NewTranscript starts a chain from a domain separation label.
func NewTranscript(label string) *Transcript {
	t := &Transcript{}
	t.state = keccak([]byte(label))
	return t
}

func keccak(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (t *Transcript) absorb(data []byte) {
	t.state = keccak(t.state[:], data)
}

func (t *Transcript) AppendBytes(b []byte) {
	t.absorb(b)
}

// AppendFr absorbs a field element as 32 big-endian bytes.
func (t *Transcript) AppendFr(x fr.Element) {
	b := x.Bytes()
	t.absorb(b[:])
}

// AppendPoint absorbs a G1 point as its two coordinates, 32 big-endian
// bytes each. The point at infinity absorbs as 64 zero bytes, matching the
// EVM precompile encoding.
func (t *Transcript) AppendPoint(p bn254.G1Affine) {
	var buf [64]byte
	x := p.X.Bytes()
	y := p.Y.Bytes()
	copy(buf[:32], x[:])
	copy(buf[32:], y[:])
	t.absorb(buf[:])
}

// Challenge squeezes one field element and ratchets the state.
func (t *Transcript) Challenge() fr.Element {
	var c fr.Element
	c.SetBytes(t.state[:])
	t.state = keccak(t.state[:], []byte{0x01})
	return c
}

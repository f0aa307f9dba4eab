package backend

import (
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/setup"
	"github.com/graphproof/graphproof/utils"
)

var (
	// ErrInvalidProof means the proof does not verify against the key and
	// public inputs.
	ErrInvalidProof = errors.New("proof verification failed")
	// ErrPublicInputMismatch means the proof was generated for different
	// public inputs than the ones supplied.
	ErrPublicInputMismatch = errors.New("public inputs do not match proof")
	// ErrMalformedProof means the proof bytes do not decode.
	ErrMalformedProof = errors.New("malformed proof")
	// ErrKeyMismatch means the key was derived from a different circuit.
	ErrKeyMismatch = errors.New("key does not match circuit")
)

// Evaluation order at zeta. The folded quotient comes first, then witness
// polynomials, then the preprocessed polynomials in verifying key order.
const (
	EvT = iota
	EvA
	EvB
	EvC
	EvM
	EvH
	EvZL
	EvZP
	EvQL
	EvQR
	EvQM
	EvQO
	EvQNext
	EvQC
	EvQLk
	EvQTag
	EvQT
	EvTTag
	EvTIn
	EvTOut
	EvS1
	EvS2
	EvS3
	NumEval
)

// Shifted evaluations at omega*zeta.
const (
	EvwC = iota
	EvwZL
	EvwZP
	NumEvalShift
)

// Proof is a complete argument for one circuit execution.
type Proof struct {
	// Round one: advice and multiplicity commitments.
	A, B, C, M kzg.Digest
	// Round two: lookup helper, lookup running sum, permutation product.
	H, ZL, ZP kzg.Digest
	// Round three: quotient chunks.
	T1, T2, T3 kzg.Digest
	// Openings.
	Wz, Wzw    bn254.G1Affine
	Evals      [NumEval]fr.Element
	EvalsShift [NumEvalShift]fr.Element

	// PIDigest commits to the public inputs the proof was built for. It is
	// not part of the argument; verifiers use it to tell a wrong-input
	// failure from a corrupted proof.
	PIDigest [32]byte
}

const proofMagic uint64 = 0x4750524650524631 // "GPRFPRF1"

// PublicInputDigest hashes public inputs the way proofs record them.
func PublicInputDigest(public []fr.Element) [32]byte {
	buf := make([]byte, 0, 32*len(public))
	for i := range public {
		b := public[i].Bytes()
		buf = append(buf, b[:]...)
	}
	return keccak(buf)
}

func (p *Proof) points() []*bn254.G1Affine {
	return []*bn254.G1Affine{
		&p.A, &p.B, &p.C, &p.M,
		&p.H, &p.ZL, &p.ZP,
		&p.T1, &p.T2, &p.T3,
		&p.Wz, &p.Wzw,
	}
}

// MarshalBinary encodes the proof: twelve points, the evaluations, and the
// public input digest.
func (p *Proof) MarshalBinary() []byte {
	o := &utils.OutputBuf{}
	o.AppendUint64(proofMagic)
	for _, pt := range p.points() {
		o.AppendG1(*pt)
	}
	for i := range p.Evals {
		o.AppendFr(p.Evals[i])
	}
	for i := range p.EvalsShift {
		o.AppendFr(p.EvalsShift[i])
	}
	o.AppendBytes(p.PIDigest[:])
	return o.Bytes()
}

func (p *Proof) UnmarshalBinary(data []byte) error {
	in := utils.NewInputBuf(data)
	if in.ReadUint64() != proofMagic {
		return fmt.Errorf("%w: bad header", ErrMalformedProof)
	}
	for _, pt := range p.points() {
		*pt = in.ReadG1()
	}
	for i := range p.Evals {
		p.Evals[i] = in.ReadFr()
	}
	for i := range p.EvalsShift {
		p.EvalsShift[i] = in.ReadFr()
	}
	d := in.ReadBytes()
	if len(d) != 32 {
		return fmt.Errorf("%w: bad digest", ErrMalformedProof)
	}
	copy(p.PIDigest[:], d)
	if err := in.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return nil
}

// WriteProof writes the binary encoding to w.
func WriteProof(w io.Writer, p *Proof) error {
	_, err := w.Write(p.MarshalBinary())
	return err
}

// ReadProof decodes a proof written by WriteProof.
func ReadProof(r io.Reader) (*Proof, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p := new(Proof)
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Calldata encodes the proof followed by the public inputs, each as 32
// big-endian bytes, the layout the generated on-chain verifier reads.
func (p *Proof) Calldata(public []fr.Element) []byte {
	out := make([]byte, 0, 12*64+(NumEval+NumEvalShift+len(public))*32)
	for _, pt := range p.points() {
		x := pt.X.Bytes()
		y := pt.Y.Bytes()
		out = append(out, x[:]...)
		out = append(out, y[:]...)
	}
	for i := range p.Evals {
		b := p.Evals[i].Bytes()
		out = append(out, b[:]...)
	}
	for i := range p.EvalsShift {
		b := p.EvalsShift[i].Bytes()
		out = append(out, b[:]...)
	}
	for i := range public {
		b := public[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// chunkLen is the coefficient count of the first two quotient chunks; the
// quotient has degree 3n+6 so three chunks of this size cover it.
func chunkLen(n int) int {
	return n + 3
}

// fixedEvalIndex maps a verifying key polynomial index to its slot in the
// zeta evaluation list.
func fixedEvalIndex(i int) int {
	return EvQL + i
}

func init() {
	// The evaluation list and the verifying key enumerate the fixed
	// polynomials in the same order.
	if NumEval-EvQL != setup.NumFixedPolys || EvQL+circuit.NumFixed != EvS1 {
		panic("fixed polynomial order out of sync")
	}
}

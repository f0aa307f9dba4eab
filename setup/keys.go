package setup

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark/logger"
	"golang.org/x/crypto/sha3"

	"github.com/graphproof/graphproof/circuit"
)

// Fixed polynomial order: the circuit's twelve fixed columns followed by
// the three permutation polynomials.
const (
	FixedS1 = circuit.NumFixed + iota
	FixedS2
	FixedS3
	NumFixedPolys
)

var ErrSRSTooSmall = errors.New("srs has too few powers for the circuit")

// ProvingKey carries everything the prover needs beyond the circuit: the
// domain, the commitment powers, and the preprocessed polynomials in
// coefficient form.
type ProvingKey struct {
	Domain *fft.Domain
	Kzg    kzg.ProvingKey
	Fixed  [NumFixedPolys][]fr.Element
	Vk     *VerifyingKey
}

// VerifyingKey pins the circuit: commitments to the fixed polynomials, the
// domain parameters, and the pairing points of the reference string.
type VerifyingKey struct {
	N          uint64
	NumPublic  int
	Generator  fr.Element // domain generator
	CosetShift fr.Element // wire columns use shifts 1, g, g^2
	Fixed      [NumFixedPolys]kzg.Digest
	G1Gen      bn254.G1Affine
	G2         [2]bn254.G2Affine // [1]_2 and [tau]_2

	// OnchainRows marks the public words the verifying side must source
	// from attested on-chain values.
	OnchainRows []int32

	CircuitDigest [32]byte
}

// Keys preprocesses a circuit against an SRS.
func Keys(c *circuit.Circuit, srs *kzg.SRS) (*ProvingKey, *VerifyingKey, error) {
	log := logger.Logger()
	if len(srs.Pk.G1) < MinSRSSize(c) {
		return nil, nil, fmt.Errorf("%w: %d powers, need %d", ErrSRSTooSmall, len(srs.Pk.G1), MinSRSSize(c))
	}
	digest, err := c.Digest()
	if err != nil {
		return nil, nil, err
	}

	n := c.N
	domain := fft.NewDomain(uint64(n))
	vk := &VerifyingKey{
		N:             uint64(n),
		NumPublic:     c.NumPublic,
		Generator:     domain.Generator,
		CosetShift:    domain.FrMultiplicativeGen,
		G1Gen:         srs.Vk.G1,
		G2:            srs.Vk.G2,
		OnchainRows:   append([]int32(nil), c.OnchainRows...),
		CircuitDigest: digest,
	}
	pk := &ProvingKey{Domain: domain, Kzg: srs.Pk, Vk: vk}

	for i := 0; i < circuit.NumFixed; i++ {
		pk.Fixed[i] = toCoefficients(domain, c.Fixed[i])
	}
	for col := 0; col < circuit.NumAdvice; col++ {
		pk.Fixed[FixedS1+col] = toCoefficients(domain, sigmaColumn(c, domain, col))
	}
	for i := range pk.Fixed {
		vk.Fixed[i], err = kzg.Commit(pk.Fixed[i], pk.Kzg)
		if err != nil {
			return nil, nil, fmt.Errorf("commit fixed polynomial %d: %w", i, err)
		}
	}
	log.Info().Int("domain", n).Int("publicInputs", c.NumPublic).Msg("keys derived")
	return pk, vk, nil
}

// sigmaColumn evaluates one permutation polynomial on the domain: row r of
// column col holds the shifted-domain encoding of the wire sigma sends
// (col, r) to.
func sigmaColumn(c *circuit.Circuit, domain *fft.Domain, col int) []fr.Element {
	n := c.N
	shifts := cosetShifts(domain)
	pow := make([]fr.Element, n)
	pow[0].SetOne()
	for r := 1; r < n; r++ {
		pow[r].Mul(&pow[r-1], &domain.Generator)
	}
	out := make([]fr.Element, n)
	for r := 0; r < n; r++ {
		target := c.Sigma[col*n+r]
		out[r].Mul(&shifts[target/int64(n)], &pow[target%int64(n)])
	}
	return out
}

func cosetShifts(domain *fft.Domain) [circuit.NumAdvice]fr.Element {
	var ks [circuit.NumAdvice]fr.Element
	ks[0].SetOne()
	ks[1] = domain.FrMultiplicativeGen
	ks[2].Mul(&ks[1], &ks[1])
	return ks
}

// toCoefficients interpolates natural-order evaluations on the domain.
func toCoefficients(domain *fft.Domain, evals []fr.Element) []fr.Element {
	coeffs := append([]fr.Element(nil), evals...)
	domain.FFTInverse(coeffs, fft.DIF)
	fft.BitReverse(coeffs)
	return coeffs
}

// Digest hashes the verifying key; transcripts start from it.
func (vk *VerifyingKey) Digest() [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(vk.MarshalBinary())
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

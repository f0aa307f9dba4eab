// Package graphproof wraps the most commonly used pipeline APIs and provides
// an entry point for proving model inference. It covers the full path from a
// computation graph to an on-chain verifier; callers with more specific needs
// can use the underlying packages directly.
package graphproof

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark/logger"

	"github.com/graphproof/graphproof/aggregator"
	"github.com/graphproof/graphproof/backend"
	"github.com/graphproof/graphproof/checker"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/compiler"
	"github.com/graphproof/graphproof/evm"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/setup"
	"github.com/graphproof/graphproof/witness"
)

// CompileResult represents the result of lowering a computation graph.
// It contains unexported fields and provides methods to retrieve the
// constraint system and to derive assignments for concrete model inputs.
type CompileResult struct {
	g *graph.Graph
	c *circuit.Circuit
}

// CompileModel lowers the given graph into a constraint system and returns
// a pointer to CompileResult along with any error encountered during the
// lowering process.
func CompileModel(g *graph.Graph) (*CompileResult, error) {
	log := logger.Logger()
	log.Info().Msg("compiling graph")

	c, err := compiler.Compile(g)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("rows", len(c.Rows)).
		Int("domain", c.N).
		Int("nbPublic", c.NumPublic).
		Int("nbTables", len(c.Tables)).
		Msg("compiled")
	return &CompileResult{g: g, c: c}, nil
}

// GetCircuit returns the lowered constraint system.
func (cr *CompileResult) GetCircuit() *circuit.Circuit {
	return cr.c
}

// GetGraph returns the graph the constraint system was lowered from.
func (cr *CompileResult) GetGraph() *graph.Graph {
	return cr.g
}

// GenWitness quantizes a model input at the graph's declared scales and runs
// the forward pass, producing a complete assignment. key is required when the
// graph carries encrypted tensors and ignored otherwise.
func (cr *CompileResult) GenWitness(mi *graph.ModelInput, key *fr.Element) (*circuit.Assignment, error) {
	quantized, err := cr.g.QuantizeInputs(mi)
	if err != nil {
		return nil, err
	}
	var stream []int64
	for _, q := range quantized {
		stream = append(stream, q...)
	}
	return witness.Generate(cr.c, stream, key)
}

// Mock checks an assignment against every constraint family without any
// cryptography. It reports the first violation with its row and label,
// which makes it the fastest way to debug a graph before running Setup.
func Mock(c *circuit.Circuit, a *circuit.Assignment) error {
	return checker.Satisfied(c, a)
}

// GenSRS derives a structured reference string of the given size from a
// seed. It is meant for tests and local development; production deployments
// load a ceremony transcript with setup.LoadSRS instead.
func GenSRS(size int, seed [32]byte) (*kzg.SRS, error) {
	return setup.NewSRS(size, seed)
}

// Setup specializes an SRS to a circuit, committing to its fixed columns
// and permutation. Repeated calls with the same circuit and SRS return the
// same key pair.
func Setup(c *circuit.Circuit, srs *kzg.SRS) (*setup.ProvingKey, *setup.VerifyingKey, error) {
	return setup.KeysCached(c, srs)
}

// Prove generates a proof that the assignment satisfies the circuit the
// proving key was derived from.
func Prove(pk *setup.ProvingKey, c *circuit.Circuit, a *circuit.Assignment, opts ...backend.Option) (*backend.Proof, error) {
	return backend.Prove(pk, c, a, opts...)
}

// WithBlindingSeed fixes the randomness used to blind committed polynomials,
// making proofs reproducible.
func WithBlindingSeed(seed [32]byte) backend.Option {
	return backend.WithBlindingSeed(seed)
}

// Verify checks a proof against a verifying key and the claimed public
// inputs, including one pairing.
func Verify(vk *setup.VerifyingKey, proof *backend.Proof, public []fr.Element) error {
	return backend.Verify(vk, proof, public)
}

// AggregateProofs verifies each entry up to its final pairing and folds the
// deferred claims into one, so a batch settles with a single pairing check.
func AggregateProofs(entries []aggregator.Entry) (backend.Claim, error) {
	return aggregator.Aggregate(entries)
}

// VerifyAggregate checks a batch of proofs end to end.
func VerifyAggregate(entries []aggregator.Entry) error {
	return aggregator.Verify(entries)
}

// CodegenEVM emits runtime bytecode that verifies proofs for vk on chain,
// together with the calldata layout callers must follow.
func CodegenEVM(vk *setup.VerifyingKey) ([]byte, evm.CalldataLayout, error) {
	code, err := evm.GenerateVerifier(vk)
	if err != nil {
		return nil, evm.CalldataLayout{}, err
	}
	return code, evm.DescribeCalldata(vk), nil
}

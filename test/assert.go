// Package test provides assertion helpers and a random model generator for
// exercising the full proving pipeline.
package test

import (
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/graphproof/graphproof"
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/setup"
)

type Assert struct {
	t *testing.T
}

func NewAssert(t *testing.T) *Assert {
	return &Assert{t: t}
}

// MockSucceeded derives a witness for mi and requires every constraint family
// to accept it. The assignment is returned for further tampering.
func (a *Assert) MockSucceeded(cr *graphproof.CompileResult, mi *graph.ModelInput, key *fr.Element) *circuit.Assignment {
	asg, err := cr.GenWitness(mi, key)
	if err != nil {
		a.t.Fatal(err)
	}
	if err := graphproof.Mock(cr.GetCircuit(), asg); err != nil {
		a.t.Fatal(err)
	}
	return asg
}

// MockFailed requires at least one constraint family to reject the assignment.
func (a *Assert) MockFailed(cr *graphproof.CompileResult, asg *circuit.Assignment) {
	if graphproof.Mock(cr.GetCircuit(), asg) == nil {
		a.t.Fatal("should fail")
	}
}

// ProveSucceeded runs setup, proving and verification end to end.
func (a *Assert) ProveSucceeded(cr *graphproof.CompileResult, asg *circuit.Assignment) {
	c := cr.GetCircuit()
	pk, vk, err := graphproof.Setup(c, a.srs(c))
	if err != nil {
		a.t.Fatal(err)
	}
	proof, err := graphproof.Prove(pk, c, asg)
	if err != nil {
		a.t.Fatal(err)
	}
	if err := graphproof.Verify(vk, proof, asg.Public); err != nil {
		a.t.Fatal(err)
	}
}

// ProveFailed requires proving to refuse the assignment.
func (a *Assert) ProveFailed(cr *graphproof.CompileResult, asg *circuit.Assignment) {
	c := cr.GetCircuit()
	pk, _, err := graphproof.Setup(c, a.srs(c))
	if err != nil {
		a.t.Fatal(err)
	}
	if _, err := graphproof.Prove(pk, c, asg); err == nil {
		a.t.Fatal("should fail")
	}
}

var (
	srsMu    sync.Mutex
	srsCache = map[int]*kzg.SRS{}
)

// srs returns a deterministic SRS big enough for c, shared across tests that
// need the same size.
func (a *Assert) srs(c *circuit.Circuit) *kzg.SRS {
	size := setup.MinSRSSize(c)
	srsMu.Lock()
	defer srsMu.Unlock()
	if s, ok := srsCache[size]; ok {
		return s
	}
	s, err := setup.NewSRS(size, [32]byte{0x5e, 0xed})
	if err != nil {
		a.t.Fatal(err)
	}
	srsCache[size] = s
	return s
}

// Package aggregator batches proof verification. Each proof reduces to a
// deferred pairing claim; claims fold pairwise under a transcript-derived
// scalar, and one pairing settles the whole batch.
package aggregator

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/graphproof/graphproof/backend"
	"github.com/graphproof/graphproof/setup"
)

var (
	// ErrEmptyBatch means there is nothing to aggregate.
	ErrEmptyBatch = errors.New("empty proof batch")
	// ErrIncompatibleSRS means the batch mixes verifying keys from
	// different reference strings; their claims cannot share a pairing.
	ErrIncompatibleSRS = errors.New("verifying keys use different reference strings")
)

const foldLabel = "graphproof-agg-v1"

// batchLogger tags aggregator output with the batch size.
func batchLogger(n int) zerolog.Logger {
	return logger.Logger().With().Str("module", "aggregator").Int("nbProofs", n).Logger()
}

// Entry is one proof in a batch. Entries may come from different circuits
// as long as their keys share a reference string.
type Entry struct {
	Vk     *setup.VerifyingKey
	Proof  *backend.Proof
	Public []fr.Element
}

// Fold combines two claims. The scalar binds both sides, so a left fold
// over a batch commits to every claim; folding is associative in the sense
// that pre-aggregated prefixes fold to the same claim as one pass.
func Fold(acc, next backend.Claim) backend.Claim {
	t := backend.NewTranscript(foldLabel)
	t.AppendPoint(acc.L)
	t.AppendPoint(acc.R)
	t.AppendPoint(next.L)
	t.AppendPoint(next.R)
	r := t.Challenge()

	var one fr.Element
	one.SetOne()
	var out backend.Claim
	if _, err := out.L.MultiExp(
		[]bn254.G1Affine{acc.L, next.L},
		[]fr.Element{one, r},
		ecc.MultiExpConfig{},
	); err != nil {
		panic(err)
	}
	if _, err := out.R.MultiExp(
		[]bn254.G1Affine{acc.R, next.R},
		[]fr.Element{one, r},
		ecc.MultiExpConfig{},
	); err != nil {
		panic(err)
	}
	return out
}

// Aggregate checks every entry's transcript and evaluation identity, then
// folds the deferred pairings into a single claim. An invalid entry
// surfaces as its verification error; a claim that folds cleanly still
// needs VerifyClaim against the shared reference string.
func Aggregate(entries []Entry) (backend.Claim, error) {
	log := batchLogger(len(entries))
	if len(entries) == 0 {
		return backend.Claim{}, ErrEmptyBatch
	}
	g2 := entries[0].Vk.G2
	for i := range entries {
		if entries[i].Vk.G2 != g2 {
			return backend.Claim{}, ErrIncompatibleSRS
		}
	}

	// Entries reduce independently; only the fold is ordered. The first
	// failing index wins so the surfaced error does not depend on timing.
	claims := make([]backend.Claim, len(entries))
	errs := make([]error, len(entries))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range entries {
		i := i
		g.Go(func() error {
			claims[i], errs[i] = backend.VerifyToClaim(entries[i].Vk, entries[i].Proof, entries[i].Public)
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range errs {
		if err != nil {
			return backend.Claim{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	acc := claims[0]
	for i := 1; i < len(claims); i++ {
		acc = Fold(acc, claims[i])
	}
	log.Debug().Msg("batch folded")
	return acc, nil
}

// Verify aggregates and settles the batch with one pairing.
func Verify(entries []Entry) error {
	claim, err := Aggregate(entries)
	if err != nil {
		return err
	}
	return backend.VerifyClaim(entries[0].Vk, claim)
}

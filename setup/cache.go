package setup

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"

	"github.com/graphproof/graphproof/circuit"
)

// cacheKey identifies one preprocessing result: the circuit and the exact
// reference string it was derived against.
type cacheKey struct {
	circ [32]byte
	tau  bn254.G2Affine
	size int
}

var (
	keyMu    sync.Mutex
	keyCache = map[cacheKey]*ProvingKey{}
)

// KeysCached memoizes Keys across proving sessions. Derivation is pure, so
// every caller shares one read-only key pair per (circuit, srs). Concurrent
// first calls may derive twice; the derivations are identical.
func KeysCached(c *circuit.Circuit, srs *kzg.SRS) (*ProvingKey, *VerifyingKey, error) {
	digest, err := c.Digest()
	if err != nil {
		return nil, nil, err
	}
	k := cacheKey{circ: digest, tau: srs.Vk.G2[1], size: len(srs.Pk.G1)}

	keyMu.Lock()
	pk, ok := keyCache[k]
	keyMu.Unlock()
	if ok {
		return pk, pk.Vk, nil
	}

	pk, vk, err := Keys(c, srs)
	if err != nil {
		return nil, nil, err
	}
	keyMu.Lock()
	keyCache[k] = pk
	keyMu.Unlock()
	return pk, vk, nil
}

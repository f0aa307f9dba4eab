package tensor

import "fmt"

// Visibility controls how a tensor is exposed by a proof.
type Visibility uint8

const (
	// Private tensors appear only as advice values.
	Private Visibility = iota
	// Public tensors are bound to the statement element by element.
	Public
	// Hashed tensors are bound through a MiMC digest published as a
	// single public input.
	Hashed
	// Encrypted tensors are bound through their MiMC stream ciphertext,
	// published as public inputs alongside a commitment to the key.
	Encrypted
	// Onchain tensors bind element by element like Public ones, but the
	// verifier sources the words from an attested on-chain value instead
	// of taking them from the prover.
	Onchain
)

var visNames = map[Visibility]string{
	Private:   "private",
	Public:    "public",
	Hashed:    "hashed",
	Encrypted: "encrypted",
	Onchain:   "onchain",
}

func (v Visibility) String() string {
	if s, ok := visNames[v]; ok {
		return s
	}
	return fmt.Sprintf("visibility(%d)", uint8(v))
}

func (v Visibility) MarshalText() ([]byte, error) {
	s, ok := visNames[v]
	if !ok {
		return nil, fmt.Errorf("unknown visibility %d", uint8(v))
	}
	return []byte(s), nil
}

func (v *Visibility) UnmarshalText(b []byte) error {
	for k, s := range visNames {
		if s == string(b) {
			*v = k
			return nil
		}
	}
	return fmt.Errorf("unknown visibility %q", string(b))
}

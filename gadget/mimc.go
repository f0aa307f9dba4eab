package gadget

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

var (
	mimcOnce  sync.Once
	mimcConst []fr.Element
)

// Constants returns the MiMC round constants as field elements.
func Constants() []fr.Element {
	mimcOnce.Do(func() {
		bigs := mimc.GetConstants()
		mimcConst = make([]fr.Element, len(bigs))
		for i := range bigs {
			mimcConst[i].SetBigInt(&bigs[i])
		}
	})
	return mimcConst
}

// Permute runs the keyed MiMC permutation in Miyaguchi-Preneel form,
// returning E_h(m) + h. Each round computes (m + h + c)^5.
func Permute(h, m fr.Element) fr.Element {
	for _, c := range Constants() {
		var t fr.Element
		t.Add(&m, &h).Add(&t, &c)
		m.Square(&t)
		m.Square(&m)
		m.Mul(&m, &t)
	}
	m.Add(&m, &h)
	return m
}

// DigestOf absorbs elements into a fresh MiMC state, matching the
// gnark-crypto digest over the same canonical blocks.
func DigestOf(elems []fr.Element) fr.Element {
	var h fr.Element
	for _, m := range elems {
		e := Permute(h, m)
		h.Add(&e, &m)
	}
	return h
}

// KeystreamAt derives the counter-mode keystream word at index i.
func KeystreamAt(key fr.Element, i int) fr.Element {
	var ctr fr.Element
	ctr.SetUint64(uint64(i))
	e := Permute(key, ctr)
	e.Add(&e, &ctr)
	return e
}

// CTREncrypt adds the keystream to each plaintext element.
func CTREncrypt(key fr.Element, ms []fr.Element) []fr.Element {
	cts := make([]fr.Element, len(ms))
	for i, m := range ms {
		ks := KeystreamAt(key, i)
		cts[i].Add(&m, &ks)
	}
	return cts
}

// KeyCommitment binds the encryption key into the public inputs.
func KeyCommitment(key fr.Element) fr.Element {
	return DigestOf([]fr.Element{key})
}

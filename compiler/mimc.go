package compiler

import (
	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/gadget"
)

// permute lays out the keyed MiMC permutation E_h(m) + h. Each round costs
// four rows: the keyed constant addition, two squarings and the final
// multiplication of the fifth power. h == noSlot means a zero state.
func (lo *layout) permute(h, m int32) int32 {
	consts := gadget.Constants()
	x := m
	for j := range consts {
		cSlot := lo.roundSlot(j)
		var u int32
		var q rowQ
		q[circuit.QL] = lo.one
		q[circuit.QC] = consts[j]
		q[circuit.QO] = lo.negOne
		if h == noSlot {
			u = lo.slot(circuit.TapeOp{Kind: circuit.TapeAdd, A: x, B: cSlot})
			lo.addGate(q, x, noSlot, u)
		} else {
			s := lo.slot(circuit.TapeOp{Kind: circuit.TapeAdd, A: x, B: h})
			u = lo.slot(circuit.TapeOp{Kind: circuit.TapeAdd, A: s, B: cSlot})
			q[circuit.QR] = lo.one
			lo.addGate(q, x, h, u)
		}
		t2 := lo.mulRow(u, u)
		t4 := lo.mulRow(t2, t2)
		x = lo.mulRow(t4, u)
	}
	if h == noSlot {
		return x
	}
	return lo.binOp(circuit.TapeAdd, x, h)
}

func (lo *layout) mulRow(x, y int32) int32 {
	return lo.binOp(circuit.TapeMul, x, y)
}

// mimcDigest absorbs element slots in Miyaguchi-Preneel form, matching
// gadget.DigestOf value for value.
func (lo *layout) mimcDigest(elems []int32) int32 {
	h := noSlot
	for _, m := range elems {
		e := lo.permute(h, m)
		h = lo.binOp(circuit.TapeAdd, e, m)
	}
	return h
}

// ctrEncrypt lays out the counter-mode stream cipher: ct_i = m_i + ks_i
// with ks_i = E_key(i) + key + i. It returns the ciphertext slots.
func (lo *layout) ctrEncrypt(key int32, ms []int32) []int32 {
	cts := make([]int32, len(ms))
	for i, m := range ms {
		ctr := lo.pinnedConstSlot(int64(i))
		e := lo.permute(key, ctr)
		ks := lo.binOp(circuit.TapeAdd, e, ctr)
		cts[i] = lo.binOp(circuit.TapeAdd, m, ks)
	}
	return cts
}

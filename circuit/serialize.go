package circuit

import (
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"

	"github.com/graphproof/graphproof/utils"
)

const circuitMagic uint64 = 0x4750524643495231

// MarshalBinary produces the deterministic encoding of the circuit.
func (c *Circuit) MarshalBinary() ([]byte, error) {
	o := &utils.OutputBuf{}
	o.AppendUint64(circuitMagic)
	o.AppendUint64(uint64(c.N))
	o.AppendUint64(uint64(c.NumPublic))
	o.AppendUint32(uint32(c.OutputScale))
	for i := 0; i < NumFixed; i++ {
		for _, e := range c.Fixed[i] {
			o.AppendFr(e)
		}
	}
	for _, s := range c.Sigma {
		o.AppendInt64(s)
	}
	o.AppendUint32(uint32(len(c.Tables)))
	for _, t := range c.Tables {
		o.AppendUint8(uint8(t.Kind))
		o.AppendUint32(uint32(t.Bits))
		o.AppendUint32(uint32(t.Fracs))
		o.AppendInt64(t.Divisor)
		o.AppendInt64(t.Tag)
	}
	o.AppendUint32(uint32(len(c.Spans)))
	for _, s := range c.Spans {
		o.AppendUint64(uint64(s.Start))
		o.AppendUint64(uint64(s.End))
		o.AppendBytes([]byte(s.Label))
	}
	o.AppendUint32(uint32(len(c.Tape)))
	for _, op := range c.Tape {
		o.AppendUint8(uint8(op.Kind))
		o.AppendUint32(uint32(op.A))
		o.AppendUint32(uint32(op.B))
		o.AppendUint32(uint32(op.C))
		o.AppendInt64(op.Imm)
		o.AppendUint32(uint32(op.Table))
	}
	o.AppendUint32(uint32(len(c.Rows)))
	for _, r := range c.Rows {
		o.AppendUint32(uint32(r.L))
		o.AppendUint32(uint32(r.R))
		o.AppendUint32(uint32(r.O))
	}
	o.AppendUint32(uint32(len(c.PublicSlots)))
	for _, s := range c.PublicSlots {
		o.AppendUint32(uint32(s))
	}
	o.AppendUint32(uint32(len(c.OnchainRows)))
	for _, r := range c.OnchainRows {
		o.AppendUint32(uint32(r))
	}
	o.AppendBytes(c.GraphDigest[:])
	return o.Bytes(), nil
}

// UnmarshalBinary parses and validates an encoded circuit.
func (c *Circuit) UnmarshalBinary(data []byte) error {
	in := utils.NewInputBuf(data)
	if in.ReadUint64() != circuitMagic {
		return fmt.Errorf("%w: bad magic", ErrMalformedCircuit)
	}
	c.N = int(in.ReadUint64())
	c.NumPublic = int(in.ReadUint64())
	c.OutputScale = uint(in.ReadUint32())
	if c.N < MinRows || c.N > 1<<28 {
		return fmt.Errorf("%w: implausible row count", ErrMalformedCircuit)
	}
	for i := 0; i < NumFixed; i++ {
		c.Fixed[i] = make([]fr.Element, c.N)
		for j := range c.Fixed[i] {
			c.Fixed[i][j] = in.ReadFr()
		}
	}
	c.Sigma = make([]int64, NumAdvice*c.N)
	for i := range c.Sigma {
		c.Sigma[i] = in.ReadInt64()
	}
	c.Tables = make([]TableSpec, in.ReadUint32())
	for i := range c.Tables {
		c.Tables[i] = TableSpec{
			Kind:    TableKind(in.ReadUint8()),
			Bits:    uint(in.ReadUint32()),
			Fracs:   uint(in.ReadUint32()),
			Divisor: in.ReadInt64(),
			Tag:     in.ReadInt64(),
		}
	}
	c.Spans = make([]Span, in.ReadUint32())
	for i := range c.Spans {
		c.Spans[i] = Span{
			Start: int(in.ReadUint64()),
			End:   int(in.ReadUint64()),
			Label: string(in.ReadBytes()),
		}
	}
	c.Tape = make([]TapeOp, in.ReadUint32())
	for i := range c.Tape {
		c.Tape[i] = TapeOp{
			Kind:  TapeOpKind(in.ReadUint8()),
			A:     int32(in.ReadUint32()),
			B:     int32(in.ReadUint32()),
			C:     int32(in.ReadUint32()),
			Imm:   in.ReadInt64(),
			Table: int32(in.ReadUint32()),
		}
	}
	c.Rows = make([]RowRefs, in.ReadUint32())
	for i := range c.Rows {
		c.Rows[i] = RowRefs{
			L: int32(in.ReadUint32()),
			R: int32(in.ReadUint32()),
			O: int32(in.ReadUint32()),
		}
	}
	c.PublicSlots = make([]int32, in.ReadUint32())
	for i := range c.PublicSlots {
		c.PublicSlots[i] = int32(in.ReadUint32())
	}
	if k := in.ReadUint32(); k > 0 {
		c.OnchainRows = make([]int32, k)
		for i := range c.OnchainRows {
			c.OnchainRows[i] = int32(in.ReadUint32())
		}
	}
	copy(c.GraphDigest[:], in.ReadBytes())
	if err := in.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCircuit, err)
	}
	return c.Validate()
}

// Save writes the encoding to w.
func (c *Circuit) Save(w io.Writer) error {
	bs, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

// Load reads a circuit written by Save.
func Load(r io.Reader) (*Circuit, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := new(Circuit)
	if err := c.UnmarshalBinary(bs); err != nil {
		return nil, err
	}
	return c, nil
}

// Digest returns the keccak256 hash of the encoding. Keys embed it so a
// proof can never be checked against the wrong circuit.
func (c *Circuit) Digest() ([32]byte, error) {
	var d [32]byte
	bs, err := c.MarshalBinary()
	if err != nil {
		return d, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(bs)
	copy(d[:], h.Sum(nil))
	return d, nil
}

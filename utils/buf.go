// Package utils holds the binary encoding primitives shared by every
// serialized artifact. Integers are little-endian, field elements 32-byte
// little-endian, curve points compressed.
package utils

import (
	"encoding/binary"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrShortBuffer reports a truncated or overlong artifact.
var ErrShortBuffer = errors.New("malformed buffer")

type OutputBuf struct {
	buf []byte
}

func (o *OutputBuf) AppendFr(x fr.Element) {
	be := x.Bytes()
	for i := 31; i >= 0; i-- {
		o.buf = append(o.buf, be[i])
	}
}

func (o *OutputBuf) AppendG1(p bn254.G1Affine) {
	b := p.Bytes()
	o.buf = append(o.buf, b[:]...)
}

func (o *OutputBuf) AppendG2(p bn254.G2Affine) {
	b := p.Bytes()
	o.buf = append(o.buf, b[:]...)
}

func (o *OutputBuf) AppendUint8(x uint8) {
	o.buf = append(o.buf, x)
}

func (o *OutputBuf) AppendUint32(x uint32) {
	o.buf = binary.LittleEndian.AppendUint32(o.buf, x)
}

func (o *OutputBuf) AppendUint64(x uint64) {
	o.buf = binary.LittleEndian.AppendUint64(o.buf, x)
}

func (o *OutputBuf) AppendInt64(x int64) {
	o.buf = binary.LittleEndian.AppendUint64(o.buf, uint64(x))
}

func (o *OutputBuf) AppendBytes(b []byte) {
	o.AppendUint32(uint32(len(b)))
	o.buf = append(o.buf, b...)
}

func (o *OutputBuf) Bytes() []byte {
	return o.buf
}

// InputBuf reads back what OutputBuf wrote. A short read poisons the buffer
// instead of panicking; callers check Close once at the end.
type InputBuf struct {
	buf []byte
	bad bool
}

func NewInputBuf(buf []byte) *InputBuf {
	return &InputBuf{buf: buf}
}

func (i *InputBuf) take(n int) []byte {
	if i.bad || len(i.buf) < n {
		i.bad = true
		return nil
	}
	b := i.buf[:n]
	i.buf = i.buf[n:]
	return b
}

func (i *InputBuf) ReadFr() fr.Element {
	var x fr.Element
	b := i.take(32)
	if b == nil {
		return x
	}
	var be [32]byte
	for j := 0; j < 32; j++ {
		be[j] = b[31-j]
	}
	if err := x.SetBytesCanonical(be[:]); err != nil {
		i.bad = true
	}
	return x
}

func (i *InputBuf) ReadG1() bn254.G1Affine {
	var p bn254.G1Affine
	b := i.take(bn254.SizeOfG1AffineCompressed)
	if b == nil {
		return p
	}
	if _, err := p.SetBytes(b); err != nil {
		i.bad = true
	}
	return p
}

func (i *InputBuf) ReadG2() bn254.G2Affine {
	var p bn254.G2Affine
	b := i.take(bn254.SizeOfG2AffineCompressed)
	if b == nil {
		return p
	}
	if _, err := p.SetBytes(b); err != nil {
		i.bad = true
	}
	return p
}

func (i *InputBuf) ReadUint8() uint8 {
	b := i.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (i *InputBuf) ReadUint32() uint32 {
	b := i.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (i *InputBuf) ReadUint64() uint64 {
	b := i.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (i *InputBuf) ReadInt64() int64 {
	return int64(i.ReadUint64())
}

func (i *InputBuf) ReadBytes() []byte {
	n := i.ReadUint32()
	if n > uint32(len(i.buf)) {
		i.bad = true
		return nil
	}
	b := i.take(int(n))
	return append([]byte(nil), b...)
}

// Close reports whether every read succeeded and the buffer was fully
// consumed.
func (i *InputBuf) Close() error {
	if i.bad || len(i.buf) != 0 {
		return ErrShortBuffer
	}
	return nil
}

package setup

import (
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"

	"github.com/graphproof/graphproof/utils"
)

const (
	vkMagic uint64 = 0x47505246564B3031 // "GPRFVK01"
	pkMagic uint64 = 0x47505246504B3031 // "GPRFPK01"
)

// MarshalBinary encodes the verifying key. The layout is fixed so that
// Digest is stable across runs.
func (vk *VerifyingKey) MarshalBinary() []byte {
	o := &utils.OutputBuf{}
	o.AppendUint64(vkMagic)
	o.AppendUint64(vk.N)
	o.AppendUint32(uint32(vk.NumPublic))
	o.AppendFr(vk.Generator)
	o.AppendFr(vk.CosetShift)
	for i := range vk.Fixed {
		o.AppendG1(vk.Fixed[i])
	}
	o.AppendG1(vk.G1Gen)
	o.AppendG2(vk.G2[0])
	o.AppendG2(vk.G2[1])
	o.AppendUint32(uint32(len(vk.OnchainRows)))
	for _, r := range vk.OnchainRows {
		o.AppendUint32(uint32(r))
	}
	o.AppendBytes(vk.CircuitDigest[:])
	return o.Bytes()
}

func (vk *VerifyingKey) UnmarshalBinary(data []byte) error {
	in := utils.NewInputBuf(data)
	if in.ReadUint64() != vkMagic {
		return fmt.Errorf("%w: bad verifying key header", utils.ErrShortBuffer)
	}
	vk.N = in.ReadUint64()
	vk.NumPublic = int(in.ReadUint32())
	vk.Generator = in.ReadFr()
	vk.CosetShift = in.ReadFr()
	for i := range vk.Fixed {
		vk.Fixed[i] = in.ReadG1()
	}
	vk.G1Gen = in.ReadG1()
	vk.G2[0] = in.ReadG2()
	vk.G2[1] = in.ReadG2()
	if k := in.ReadUint32(); k > 0 {
		vk.OnchainRows = make([]int32, k)
		for i := range vk.OnchainRows {
			vk.OnchainRows[i] = int32(in.ReadUint32())
		}
	}
	copy(vk.CircuitDigest[:], in.ReadBytes())
	return in.Close()
}

// Save writes the proving key, embedded verifying key included.
func (pk *ProvingKey) Save(w io.Writer) error {
	o := &utils.OutputBuf{}
	o.AppendUint64(pkMagic)
	o.AppendUint64(pk.Domain.Cardinality)
	o.AppendUint32(uint32(len(pk.Kzg.G1)))
	for i := range pk.Kzg.G1 {
		o.AppendG1(pk.Kzg.G1[i])
	}
	for i := range pk.Fixed {
		for j := range pk.Fixed[i] {
			o.AppendFr(pk.Fixed[i][j])
		}
	}
	o.AppendBytes(pk.Vk.MarshalBinary())
	_, err := w.Write(o.Bytes())
	return err
}

func LoadProvingKey(r io.Reader) (*ProvingKey, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	in := utils.NewInputBuf(data)
	if in.ReadUint64() != pkMagic {
		return nil, fmt.Errorf("%w: bad proving key header", utils.ErrShortBuffer)
	}
	pk := &ProvingKey{}
	n := in.ReadUint64()
	if n == 0 || n > 1<<28 {
		return nil, fmt.Errorf("%w: bad domain size", utils.ErrShortBuffer)
	}
	pk.Domain = fft.NewDomain(n)
	pk.Kzg.G1 = make([]bn254.G1Affine, in.ReadUint32())
	for i := range pk.Kzg.G1 {
		pk.Kzg.G1[i] = in.ReadG1()
	}
	for i := range pk.Fixed {
		pk.Fixed[i] = make([]fr.Element, n)
		for j := range pk.Fixed[i] {
			pk.Fixed[i][j] = in.ReadFr()
		}
	}
	pk.Vk = &VerifyingKey{}
	if err := pk.Vk.UnmarshalBinary(in.ReadBytes()); err != nil {
		return nil, err
	}
	return pk, in.Close()
}

func SaveProvingKey(path string, pk *ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pk.Save(f)
}

func SaveVerifyingKey(path string, vk *VerifyingKey) error {
	return os.WriteFile(path, vk.MarshalBinary(), 0o644)
}

func LoadVerifyingKey(path string) (*VerifyingKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vk := &VerifyingKey{}
	if err := vk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return vk, nil
}

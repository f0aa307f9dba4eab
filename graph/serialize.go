package graph

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/graphproof/graphproof/field"
)

const graphMagic uint64 = 0x4750524647523031

var canonicalMode cbor.EncMode

func init() {
	var err error
	canonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCanonical serializes the graph deterministically. Identical graphs
// always produce identical bytes, so digests over the result are stable.
func (g *Graph) MarshalCanonical() ([]byte, error) {
	body, err := canonicalMode.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	out := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(out, graphMagic)
	return append(out, body...), nil
}

// Save writes the canonical encoding to w.
func (g *Graph) Save(w io.Writer) error {
	bs, err := g.MarshalCanonical()
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

// Load reads a graph produced by Save and re-validates it.
func Load(r io.Reader) (*Graph, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read graph header: %w", err)
	}
	if binary.LittleEndian.Uint64(hdr[:]) != graphMagic {
		return nil, fmt.Errorf("not a graph file")
	}
	g := new(Graph)
	if err := cbor.NewDecoder(r).Decode(g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("loaded graph is invalid: %w", err)
	}
	return g, nil
}

// ModelInput carries floating-point model inputs, and optionally the outputs
// the caller expects, in the on-disk JSON layout.
type ModelInput struct {
	InputData  [][]float64 `json:"input_data"`
	OutputData [][]float64 `json:"output_data,omitempty"`
}

// LoadModelInput parses a JSON model input file.
func LoadModelInput(r io.Reader) (*ModelInput, error) {
	mi := new(ModelInput)
	if err := json.NewDecoder(r).Decode(mi); err != nil {
		return nil, fmt.Errorf("decode model input: %w", err)
	}
	return mi, nil
}

// QuantizeInputs converts the model input floats to fixed point at each
// graph input's declared scale.
func (g *Graph) QuantizeInputs(mi *ModelInput) ([][]int64, error) {
	if len(mi.InputData) != len(g.Inputs) {
		return nil, fmt.Errorf("model input has %d tensors, graph declares %d", len(mi.InputData), len(g.Inputs))
	}
	out := make([][]int64, len(g.Inputs))
	for i, id := range g.Inputs {
		shape := g.Nodes[id].Out
		if len(mi.InputData[i]) != shape.Numel() {
			return nil, fmt.Errorf("input %d has %d values, shape %v needs %d",
				i, len(mi.InputData[i]), shape.Dims, shape.Numel())
		}
		qs, err := field.QuantizeSlice(mi.InputData[i], shape.Scale)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = qs
	}
	return out, nil
}

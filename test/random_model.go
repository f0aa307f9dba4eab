package test

import (
	"fmt"
	"math/rand"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/graphproof/graphproof/circuit"
	"github.com/graphproof/graphproof/graph"
	"github.com/graphproof/graphproof/tensor"
)

type randomModelConfig struct {
	seed           int
	layers         randRange
	width          randRange
	scale          randRange
	biasPercent    int
	reluPercent    int
	sigmoidPercent int
	lookupBits     uint
}

type randRange struct {
	l int
	r int
}

func (rr *randRange) sample(r *rand.Rand) int {
	return r.Intn(rr.r-rr.l+1) + rr.l
}

type randomModelGenerator struct {
	conf   *randomModelConfig
	g      *graph.Graph
	key    *fr.Element
	inRows int
}

var inputVisChoices = []tensor.Visibility{
	tensor.Private, tensor.Public, tensor.Hashed, tensor.Encrypted, tensor.Onchain,
}
var paramVisChoices = []tensor.Visibility{tensor.Public, tensor.Hashed}
var outputVisChoices = []tensor.Visibility{tensor.Public, tensor.Onchain}

// newRandomModelGenerator builds a random layered model. The behavior is
// deterministic based on the seed. Weights, biases and inputs stay within
// [-2, 2] so every intermediate value fits the configured lookup range.
func newRandomModelGenerator(conf *randomModelConfig) (*randomModelGenerator, error) {
	rand := rand.New(rand.NewSource(int64(conf.seed)))

	scale := uint(conf.scale.sample(rand))
	inputVis := inputVisChoices[rand.Intn(len(inputVisChoices))]
	b := graph.NewBuilder(graph.Config{
		InputScale: scale,
		ParamScale: scale,
		InputVis:   inputVis,
		ParamVis:   paramVisChoices[rand.Intn(len(paramVisChoices))],
		OutputVis:  outputVisChoices[rand.Intn(len(outputVisChoices))],
		LookupBits: conf.lookupBits,
	})

	width := conf.width.sample(rand)
	cur := b.Input("x", []int{width, 1})
	inRows := width
	layers := conf.layers.sample(rand)
	for i := 0; i < layers; i++ {
		next := conf.width.sample(rand)
		w := b.ConstFloats(fmt.Sprintf("w%d", i), []int{next, width}, randomFloats(rand, next*width))
		cur = b.MatMul(w, cur)
		if rand.Intn(100) < conf.biasPercent {
			bias := b.ConstFloats(fmt.Sprintf("b%d", i), []int{next, 1}, randomFloats(rand, next))
			cur = b.Add(cur, bias)
		}
		op := rand.Intn(100)
		if op < conf.reluPercent {
			cur = b.Relu(cur)
		} else if op < conf.sigmoidPercent {
			cur = b.Sigmoid(cur)
		}
		width = next
	}
	g, err := b.Build(cur)
	if err != nil {
		return nil, err
	}

	rmg := &randomModelGenerator{conf: conf, g: g, inRows: inRows}
	if inputVis == tensor.Encrypted {
		var k fr.Element
		k.SetUint64(uint64(rand.Int63()))
		rmg.key = &k
	}
	return rmg, nil
}

func (rmg *randomModelGenerator) model() *graph.Graph {
	return rmg.g
}

// randomInput draws a model input in quarter steps over [-2, 2], deterministic
// in subSeed.
func (rmg *randomModelGenerator) randomInput(subSeed int) *graph.ModelInput {
	rand := rand.New(rand.NewSource(int64(subSeed)<<32 | int64(rmg.conf.seed)))
	data := make([]float64, rmg.inRows)
	for i := range data {
		data[i] = float64(rand.Intn(17)-8) / 4
	}
	return &graph.ModelInput{InputData: [][]float64{data}}
}

func randomFloats(r *rand.Rand, n int) []float64 {
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = float64(r.Intn(17)-8) / 4
	}
	return vs
}

// tamperConstrained flips one constrained cell, chosen by rnd, and reports the
// row it hit. Rows whose output column carries a gate or a lookup are always
// sensitive to the change.
func tamperConstrained(rnd *rand.Rand, c *circuit.Circuit, a *circuit.Assignment) int {
	var rows []int
	for r := 0; r < len(c.Rows); r++ {
		if !c.Fixed[circuit.QO][r].IsZero() || !c.Fixed[circuit.QLk][r].IsZero() {
			rows = append(rows, r)
		}
	}
	r := rows[rnd.Intn(len(rows))]
	var one fr.Element
	one.SetOne()
	a.O[r].Add(&a.O[r], &one)
	return r
}

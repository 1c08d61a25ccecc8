package agent

import (
	"os"
	"path/filepath"

	deep "github.com/patrikeh/go-deep"
	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// Approximator maps input features to a reward estimate and can be moved
// towards a target.
type Approximator interface {
	Inputs() int
	Predict(in []float64) engine.Reward
	// SetReward takes one training step towards target.
	SetReward(in []float64, target engine.Reward)
	Save(path string) error
	Clone() Approximator
}

// AddToReward moves the estimate of in by delta, keeping the target inside
// [0, 1].
func AddToReward(a Approximator, in []float64, delta engine.Reward) {
	target := a.Predict(in).Add(delta)
	target.Clamp()
	a.SetReward(in, target)
}

// DefaultLearningRate is the step size of one SetReward.
const DefaultLearningRate = 0.1

// NeuralApproximator is a go-deep network with sigmoid hidden units and
// linear outputs, trained by one incremental gradient step per SetReward.
type NeuralApproximator struct {
	net  *deep.Neural
	rate float64
}

// NewNeuralApproximator creates a network with inputs inputs, one hidden
// layer of hidden units (none when hidden is 0) and the five reward
// outputs. Weights start uniform in [-0.5, 0.5) drawn from rng.
func NewNeuralApproximator(inputs, hidden int, rng *engine.RNG) *NeuralApproximator {
	layout := []int{engine.NumOutputs}
	if hidden > 0 {
		layout = []int{hidden, engine.NumOutputs}
	}
	net := deep.NewNeural(&deep.Config{
		Inputs:     inputs,
		Layout:     layout,
		Activation: deep.ActivationSigmoid,
		Mode:       deep.ModeRegression,
		Weight:     func() float64 { return float64(rng.Float32()) - 0.5 },
		Bias:       true,
	})
	return &NeuralApproximator{net: net, rate: DefaultLearningRate}
}

// LoadNeuralApproximator reads a network written by Save.
func LoadNeuralApproximator(path string) (*NeuralApproximator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	net, err := deep.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &NeuralApproximator{net: net, rate: DefaultLearningRate}, nil
}

func (n *NeuralApproximator) Inputs() int { return n.net.Config.Inputs }

func (n *NeuralApproximator) Predict(in []float64) engine.Reward {
	out := n.net.Predict(in)
	var r engine.Reward
	for i := 0; i < engine.NumOutputs && i < len(out); i++ {
		r[i] = float32(out[i])
	}
	return r
}

// SetReward runs the network forward on in and back-propagates the error
// against target once, output layer linear and hidden layers sigmoid.
func (n *NeuralApproximator) SetReward(in []float64, target engine.Reward) {
	if err := n.net.Forward(in); err != nil {
		return
	}
	layers := n.net.Layers
	deltas := make([][]float64, len(layers))

	last := len(layers) - 1
	deltas[last] = make([]float64, len(layers[last].Neurons))
	for j, neuron := range layers[last].Neurons {
		deltas[last][j] = float64(target[j]) - neuron.Value
	}
	for l := last - 1; l >= 0; l-- {
		deltas[l] = make([]float64, len(layers[l].Neurons))
		for j, neuron := range layers[l].Neurons {
			var sum float64
			for k, s := range neuron.Out {
				sum += s.Weight * deltas[l+1][k]
			}
			deltas[l][j] = neuron.Value * (1 - neuron.Value) * sum
		}
	}

	for l, layer := range layers {
		for j, neuron := range layer.Neurons {
			step := n.rate * deltas[l][j]
			for _, s := range neuron.In {
				s.Weight += step * s.In
			}
		}
	}
}

// Save writes the network as JSON, creating the directory.
func (n *NeuralApproximator) Save(path string) error {
	data, err := n.net.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding network")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Clone deep-copies the weights. The copy does not share the random
// source of the original.
func (n *NeuralApproximator) Clone() Approximator {
	dump := n.net.Dump()
	cfg := *dump.Config
	cfg.Weight = deep.NewUniform(1, 0)
	dump.Config = &cfg
	return &NeuralApproximator{net: deep.FromDump(dump), rate: n.rate}
}

// Package neuralnet evaluates gnubg feed-forward networks and computes the
// hand-crafted race, contact and crashed inputs they were trained on.
package neuralnet

import (
	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/floats"
)

// NumOutputs is the output width of every gnubg evaluation net: win,
// win gammon, win backgammon, lose gammon, lose backgammon.
const NumOutputs = 5

// NeuralNet is a single hidden layer network with sigmoid activations on
// both layers. Weights are stored row-major per input (hidden layer) and per
// output (output layer) so that each row feeds gonum's vector kernels.
type NeuralNet struct {
	CInput      int
	CHidden     int
	COutput     int
	NTrained    int32
	BetaHidden  float32
	BetaOutput  float32
	hidden      [][]float64 // [input][hidden]
	output      [][]float64 // [output][hidden]
	hiddenThres []float64
	outputThres []float64
}

func newNeuralNet(cInput, cHidden, cOutput int, betaHidden, betaOutput float32) *NeuralNet {
	nn := &NeuralNet{
		CInput:      cInput,
		CHidden:     cHidden,
		COutput:     cOutput,
		BetaHidden:  betaHidden,
		BetaOutput:  betaOutput,
		hidden:      make([][]float64, cInput),
		output:      make([][]float64, cOutput),
		hiddenThres: make([]float64, cHidden),
		outputThres: make([]float64, cOutput),
	}
	for i := range nn.hidden {
		nn.hidden[i] = make([]float64, cHidden)
	}
	for i := range nn.output {
		nn.output[i] = make([]float64, cHidden)
	}
	return nn
}

// sigmoid is gnubg's 1 / (1 + e^x); callers pass the negated activation.
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(x))
}

// Evaluate runs the network on input and writes COutput values to output.
// Zero inputs are skipped, which makes the sparse gnubg encodings cheap.
func (nn *NeuralNet) Evaluate(input, output []float32) {
	act := make([]float64, nn.CHidden)
	copy(act, nn.hiddenThres)

	for i, x := range input[:nn.CInput] {
		switch x {
		case 0:
		case 1:
			floats.Add(act, nn.hidden[i])
		default:
			floats.AddScaled(act, float64(x), nn.hidden[i])
		}
	}

	for j := range act {
		act[j] = float64(sigmoid(-nn.BetaHidden * float32(act[j])))
	}

	for k := 0; k < nn.COutput; k++ {
		r := nn.outputThres[k] + floats.Dot(act, nn.output[k])
		output[k] = sigmoid(-nn.BetaOutput * float32(r))
	}
}

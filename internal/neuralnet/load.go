package neuralnet

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrBadNet is returned when a network header describes an impossible net.
var ErrBadNet = errors.New("invalid network header")

type netHeader struct {
	CInput, CHidden, COutput uint32
	NTrained                 int32
	BetaHidden, BetaOutput   float32
}

func (h netHeader) check() error {
	if h.CInput < 1 || h.CHidden < 1 || h.COutput < 1 || h.NTrained < 0 ||
		h.BetaHidden <= 0 || h.BetaOutput <= 0 {
		return errors.Wrapf(ErrBadNet, "%d/%d/%d beta %g/%g",
			h.CInput, h.CHidden, h.COutput, h.BetaHidden, h.BetaOutput)
	}
	return nil
}

func (h netHeader) net() *NeuralNet {
	nn := newNeuralNet(int(h.CInput), int(h.CHidden), int(h.COutput), h.BetaHidden, h.BetaOutput)
	nn.NTrained = h.NTrained
	return nn
}

// readBinaryNet reads one little-endian network record as written by gnubg.
func readBinaryNet(r io.Reader) (*NeuralNet, error) {
	var h netHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err := h.check(); err != nil {
		return nil, err
	}
	nn := h.net()

	row := make([]float32, nn.CHidden)
	for i := range nn.hidden {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, errors.Wrapf(err, "reading hidden weights of input %d", i)
		}
		widen(nn.hidden[i], row)
	}
	for k := range nn.output {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, errors.Wrapf(err, "reading weights of output %d", k)
		}
		widen(nn.output[k], row)
	}
	if err := binary.Read(r, binary.LittleEndian, row); err != nil {
		return nil, errors.Wrap(err, "reading hidden thresholds")
	}
	widen(nn.hiddenThres, row)

	out := make([]float32, nn.COutput)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, errors.Wrap(err, "reading output thresholds")
	}
	widen(nn.outputThres, out)

	return nn, nil
}

// readTextNet reads one network from the whitespace separated text format.
func readTextNet(r *bufio.Reader) (*NeuralNet, error) {
	var h netHeader
	if _, err := fmt.Fscan(r, &h.CInput, &h.CHidden, &h.COutput, &h.NTrained,
		&h.BetaHidden, &h.BetaOutput); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err := h.check(); err != nil {
		return nil, err
	}
	nn := h.net()

	sections := make([][]float64, 0, nn.CInput+nn.COutput+2)
	sections = append(sections, nn.hidden...)
	sections = append(sections, nn.output...)
	sections = append(sections, nn.hiddenThres, nn.outputThres)

	var v float32
	for s, dst := range sections {
		for i := range dst {
			if _, err := fmt.Fscan(r, &v); err != nil {
				return nil, errors.Wrapf(err, "reading weight %d of block %d", i, s)
			}
			dst[i] = float64(v)
		}
	}
	return nn, nil
}

func widen(dst []float64, src []float32) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

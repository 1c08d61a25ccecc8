package neuralnet

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Binary weights file constants.
const (
	WeightsMagicBinary = 472.3782
	weightsTextHeader  = "GNU Backgammon"
)

var (
	// ErrNotWeights is returned for files without the gnubg weights header.
	ErrNotWeights = errors.New("not a gnubg weights file")
	// ErrNetShape is returned when a loaded net does not match its encoder.
	ErrNetShape = errors.New("network shape does not match its inputs")
)

// Weights holds the three evaluation nets. gnubg files written after 0.15
// append pruning nets; those are left unread.
type Weights struct {
	Contact *NeuralNet
	Race    *NeuralNet
	Crashed *NeuralNet
	Version string
}

// LoadWeights tries the binary file first and falls back to the text file.
// Either path may be empty.
func LoadWeights(binPath, textPath string) (*Weights, error) {
	var firstErr error
	if binPath != "" {
		w, err := LoadWeightsBinary(binPath)
		if err == nil {
			return w, nil
		}
		firstErr = err
	}
	if textPath != "" {
		w, err := LoadWeightsText(textPath)
		if err == nil {
			return w, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no weights file given")
	}
	return nil, firstErr
}

// LoadWeightsBinary loads gnubg.wd.
func LoadWeightsBinary(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening weights file")
	}
	defer f.Close()

	w, err := ReadWeightsBinary(bufio.NewReader(f))
	return w, errors.Wrap(err, path)
}

// ReadWeightsBinary reads the magic, the version and the three nets.
func ReadWeightsBinary(r io.Reader) (*Weights, error) {
	var head [2]float32
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return nil, errors.Wrap(ErrNotWeights, err.Error())
	}
	if math32.Abs(head[0]-WeightsMagicBinary) > 0.001 {
		return nil, errors.Wrapf(ErrNotWeights, "magic %g", head[0])
	}
	if head[1] < 1 || head[1] > 2 {
		return nil, errors.Wrapf(ErrNotWeights, "unsupported binary version %g", head[1])
	}

	w := &Weights{Version: fmt.Sprintf("%.2f", head[1])}
	for _, slot := range w.slots() {
		nn, err := readBinaryNet(r)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s net", slot.name)
		}
		*slot.net = nn
	}
	return w, w.Validate()
}

// LoadWeightsText loads gnubg.weights.
func LoadWeightsText(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening weights file")
	}
	defer f.Close()

	w, err := ReadWeightsText(f)
	return w, errors.Wrap(err, path)
}

// ReadWeightsText reads the "GNU Backgammon <version>" header and the three nets.
func ReadWeightsText(r io.Reader) (*Weights, error) {
	br := bufio.NewReader(r)

	var gnu, bg, version string
	if _, err := fmt.Fscan(br, &gnu, &bg, &version); err != nil || gnu+" "+bg != weightsTextHeader {
		return nil, ErrNotWeights
	}

	w := &Weights{Version: version}
	for _, slot := range w.slots() {
		nn, err := readTextNet(br)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s net", slot.name)
		}
		*slot.net = nn
	}
	return w, w.Validate()
}

type netSlot struct {
	name   string
	net    **NeuralNet
	inputs int
}

// slots lists the nets in file order.
func (w *Weights) slots() []netSlot {
	return []netSlot{
		{"contact", &w.Contact, NumContactInputs},
		{"race", &w.Race, NumRaceInputs},
		{"crashed", &w.Crashed, NumContactInputs},
	}
}

// Validate checks every net against the width of its input encoder.
func (w *Weights) Validate() error {
	for _, slot := range w.slots() {
		nn := *slot.net
		if nn == nil {
			return errors.Wrapf(ErrNetShape, "%s net missing", slot.name)
		}
		if nn.CInput != slot.inputs || nn.COutput != NumOutputs {
			return errors.Wrapf(ErrNetShape, "%s net is %d -> %d, want %d -> %d",
				slot.name, nn.CInput, nn.COutput, slot.inputs, NumOutputs)
		}
	}
	return nil
}

// String returns a summary of the loaded nets.
func (w *Weights) String() string {
	s := "gnubg weights " + w.Version
	for _, slot := range w.slots() {
		nn := *slot.net
		s += fmt.Sprintf("\n  %-8s %d -> %d -> %d", slot.name, nn.CInput, nn.CHidden, nn.COutput)
	}
	return s
}

// EvaluateContact evaluates a contact position. Side 1 is on roll.
func (w *Weights) EvaluateContact(board Board) [NumOutputs]float32 {
	var in [NumContactInputs]float32
	ContactInputs(board, in[:])
	return evaluate(w.Contact, in[:])
}

// EvaluateCrashed evaluates a contact position where one side is crashed.
func (w *Weights) EvaluateCrashed(board Board) [NumOutputs]float32 {
	var in [NumContactInputs]float32
	CrashedInputs(board, in[:])
	return evaluate(w.Crashed, in[:])
}

// EvaluateRace evaluates a position without contact.
func (w *Weights) EvaluateRace(board Board) [NumOutputs]float32 {
	var in [NumRaceInputs]float32
	RaceInputs(board, in[:])
	return evaluate(w.Race, in[:])
}

func evaluate(nn *NeuralNet, in []float32) [NumOutputs]float32 {
	var out [NumOutputs]float32
	nn.Evaluate(in, out[:])
	return out
}

package agent

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// Pubeval is Tesauro's linear benchmark evaluator: a dot product of the
// pubeval encoding with separate race and contact weights. The race
// weights are used when the position before the move has no contact.
type Pubeval struct {
	base
	race    []float64
	contact []float64
	x       []float64
}

// NewPubeval loads the weights from <basePath>/agents/pubeval/WT.race and
// WT.cntc.
func NewPubeval(eng *engine.Engine, basePath string) (*Pubeval, error) {
	a := &Pubeval{base: newBase(eng, basePath, "Pubeval", "pubeval"), x: make([]float64, PubevalInputs)}

	var err error
	if a.race, err = readPubevalWeights(filepath.Join(a.path, "WT.race")); err != nil {
		return nil, errors.Wrap(err, "loading race weights")
	}
	if a.contact, err = readPubevalWeights(filepath.Join(a.path, "WT.cntc")); err != nil {
		return nil, errors.Wrap(err, "loading contact weights")
	}
	return a, nil
}

// NewPubevalWeights creates a pubeval agent from weights in memory.
func NewPubevalWeights(eng *engine.Engine, basePath string, race, contact []float64) (*Pubeval, error) {
	if len(race) != PubevalInputs || len(contact) != PubevalInputs {
		return nil, errors.Errorf("pubeval needs %d weights, got %d and %d", PubevalInputs, len(race), len(contact))
	}
	a := &Pubeval{base: newBase(eng, basePath, "Pubeval", "pubeval"), x: make([]float64, PubevalInputs)}
	a.race = append([]float64(nil), race...)
	a.contact = append([]float64(nil), contact...)
	return a, nil
}

func readPubevalWeights(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := make([]float64, 0, PubevalInputs)
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for len(w) < PubevalInputs && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: weight %d", path, len(w))
		}
		w = append(w, v)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if len(w) < PubevalInputs {
		return nil, errors.Errorf("%s: %d of %d weights", path, len(w), PubevalInputs)
	}
	return w, nil
}

// EvaluatePosition scores the position for the side that just moved. Only
// finished games go to the exact evaluator; everything else is scored
// as race or contact.
func (a *Pubeval) EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	if c == engine.ClassOver {
		return engine.EvalOver(b, a.variant), c, nil
	}

	race := engine.ClassifyContact(a.current) == engine.ClassRace
	pubevalInputs(b.Swapped(), a.x)

	var r engine.Reward
	if race {
		r[engine.Win] = float32(floats.Dot(a.race, a.x))
		return r, engine.ClassRace, nil
	}
	r[engine.Win] = float32(floats.Dot(a.contact, a.x))
	return r, engine.ClassContact, nil
}

package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// recorder is an Approximator that remembers the last target.
type recorder struct {
	value  engine.Reward
	target engine.Reward
}

func (r *recorder) Inputs() int { return 1 }
func (r *recorder) Predict([]float64) engine.Reward { return r.value }
func (r *recorder) SetReward(_ []float64, target engine.Reward) { r.target = target }
func (r *recorder) Save(string) error { return nil }
func (r *recorder) Clone() Approximator { c := *r; return &c }

func TestAddToRewardClamps(t *testing.T) {
	r := &recorder{value: engine.Reward{0.9, 0.1, 0.5, 0, 0, 0}}
	AddToReward(r, nil, engine.Reward{0.5, -0.5, 0.25, 0, 0, 0})

	want := engine.Reward{1, 0, 0.75, 0, 0, 0}
	if r.target != want {
		t.Errorf("target = %v, want %v", r.target, want)
	}
}

func TestNeuralApproximatorLearns(t *testing.T) {
	rng := engine.NewRNG(3, 0)
	n := NewNeuralApproximator(4, 0, rng)
	in := []float64{1, 0.5, 0, 0.25}
	target := engine.Reward{0.8, 0.2, 0.05, 0.1, 0.01, 0}

	dist := func() float64 {
		p := n.Predict(in)
		var d float64
		for i := 0; i < engine.NumOutputs; i++ {
			d += float64((p[i] - target[i]) * (p[i] - target[i]))
		}
		return d
	}

	before := dist()
	for i := 0; i < 100; i++ {
		n.SetReward(in, target)
	}
	after := dist()
	if after >= before || after > 1e-4 {
		t.Errorf("squared error %g before training, %g after", before, after)
	}
}

func TestNeuralApproximatorHiddenLayer(t *testing.T) {
	n := NewNeuralApproximator(RawInputs, 8, engine.NewRNG(3, 1))
	if n.Inputs() != RawInputs {
		t.Errorf("inputs = %d", n.Inputs())
	}
	in := make([]float64, RawInputs)
	RawRepresentation{}.Features(engine.InitBoard(engine.Standard), engine.ClassContact, in)
	before := n.Predict(in)
	n.SetReward(in, engine.Reward{1, 1, 1, 1, 1, 0})
	if n.Predict(in) == before {
		t.Error("SetReward did not change the prediction")
	}
}

func TestNeuralApproximatorSaveLoad(t *testing.T) {
	n := NewNeuralApproximator(6, 3, engine.NewRNG(5, 0))
	path := filepath.Join(t.TempDir(), "nets", "contact.net")
	if err := n.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m, err := LoadNeuralApproximator(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	in := []float64{1, 0, 0.5, 0, 0.25, 1}
	if p, q := n.Predict(in), m.Predict(in); p != q {
		t.Errorf("loaded network predicts %v, saved one %v", q, p)
	}

	if _, err := LoadNeuralApproximator(filepath.Join(t.TempDir(), "none.net")); !os.IsNotExist(errors.Cause(err)) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestNeuralApproximatorClone(t *testing.T) {
	n := NewNeuralApproximator(4, 3, engine.NewRNG(9, 0))
	in := []float64{0, 1, 1, 0.5}
	before := n.Predict(in)

	c := n.Clone()
	if got := c.Predict(in); got != before {
		t.Fatalf("clone predicts %v, original %v", got, before)
	}
	for i := 0; i < 10; i++ {
		c.SetReward(in, engine.Reward{1, 0, 0, 0, 0, 0})
	}
	if got := n.Predict(in); got != before {
		t.Errorf("training the clone changed the original: %v -> %v", before, got)
	}
}

func newTestFlex(t *testing.T, base string) *Flex {
	t.Helper()
	a, err := NewFlex(newTestEngine(t), base, "raw-sutton", RawRepresentation{Encoding: EncodingSutton}, FlexNets{Hidden: 4})
	if err != nil {
		t.Fatalf("NewFlex: %v", err)
	}
	return a
}

// playTrace feeds the agent plies contact moves and a winning last move.
func playTrace(t *testing.T, a *Flex, plies int) {
	t.Helper()
	a.StartGame(engine.Standard)
	key := engine.InitBoard(engine.Standard).Key()
	for i := 0; i < plies; i++ {
		if err := a.DoMove(&engine.Candidate{Key: key, Class: engine.ClassContact}); err != nil {
			t.Fatalf("ply %d: %v", i, err)
		}
	}
	var over engine.Board
	over[engine.Opponent][3] = 2
	over[engine.Self][10] = 15
	last := &engine.Candidate{Key: over.Key(), Class: engine.ClassOver, Reward: engine.Reward{1, 1, 0, 0, 0, 0}}
	if err := a.DoMove(last); err != nil {
		t.Fatalf("last ply: %v", err)
	}
	a.EndGame()
}

func TestFlexTraceTruncated(t *testing.T) {
	a := newTestFlex(t, t.TempDir())
	a.SetLearnMode(true)

	playTrace(t, a, 80)

	// 0.7^51 is above 1e-8 and 0.7^52 below it.
	if n := a.TraceLen(); n != 51 {
		t.Errorf("trace length after the game = %d, want 51", n)
	}
	if a.PlayedGames() != 1 {
		t.Errorf("played games = %d", a.PlayedGames())
	}

	playTrace(t, a, 5)
	if n := a.TraceLen(); n != 6 {
		t.Errorf("short game trace = %d, want 6", n)
	}
}

func TestFlexTerminalTarget(t *testing.T) {
	tests := []struct {
		gamma float32
		want  engine.Reward
	}{
		// delta = R + gamma*R - Q, applied to the older entry with weight gamma*lambda
		{1, engine.Reward{0.2 + 0.2*0.7*1.8, 0.2 * 0.7 * 2}},
		{0.5, engine.Reward{0.2 + 0.2*0.35*1.3, 0.2 * 0.35 * 1.5}},
	}
	for _, tt := range tests {
		a := newTestFlex(t, t.TempDir())
		p := a.Params()
		p.Gamma = tt.gamma
		p.LearnMode = true
		if err := a.SetParams(p); err != nil {
			t.Fatal(err)
		}
		net := &recorder{value: engine.Reward{0.2}}
		a.contact = net

		playTrace(t, a, 1)

		for i, want := range tt.want {
			if d := net.target[i] - want; d > 1e-5 || d < -1e-5 {
				t.Errorf("gamma %g: target[%d] = %g, want %g", tt.gamma, i, net.target[i], want)
			}
		}
	}
}

func TestFlexLearnsOnlyInLearnMode(t *testing.T) {
	a := newTestFlex(t, t.TempDir())
	in := make([]float64, RawInputs)
	a.repr.Features(engine.InitBoard(engine.Standard), engine.ClassContact, in)
	before := a.contact.Predict(in)

	playTrace(t, a, 10)
	if a.TraceLen() != 0 || a.PlayedGames() != 0 {
		t.Errorf("agent outside learn mode kept a trace of %d and counted %d games", a.TraceLen(), a.PlayedGames())
	}
	if got := a.contact.Predict(in); got != before {
		t.Error("agent outside learn mode changed its network")
	}

	a.SetLearnMode(true)
	playTrace(t, a, 10)
	if got := a.contact.Predict(in); got == before {
		t.Error("agent in learn mode did not train")
	}
}

func TestFlexAnnealsAlpha(t *testing.T) {
	a := newTestFlex(t, t.TempDir())
	p := a.Params()
	p.AlphaAnnealFactor = 0.5
	p.LearnMode = true
	if err := a.SetParams(p); err != nil {
		t.Fatal(err)
	}
	playTrace(t, a, 3)
	if got := a.Params().Alpha; got != 0.1 {
		t.Errorf("alpha after one game = %g, want 0.1", got)
	}

	p.Lambda = 1.5
	if err := a.SetParams(p); err == nil {
		t.Error("lambda 1.5 accepted")
	}
}

func TestFlexEvaluatePosition(t *testing.T) {
	a := newTestFlex(t, t.TempDir())
	a.StartGame(engine.Standard)

	b := engine.InitBoard(engine.Standard)
	r, c, err := a.EvaluatePosition(b, engine.ClassRace)
	if err != nil {
		t.Fatal(err)
	}
	if c != engine.ClassContact {
		t.Errorf("evaluated as %s, want contact", c)
	}
	in := make([]float64, RawInputs)
	a.repr.Features(b, engine.ClassContact, in)
	if r != a.contact.Predict(in) {
		t.Error("evaluation is not the contact network")
	}

	var over engine.Board
	over[engine.Self][0] = 15
	if r, c, _ := a.EvaluatePosition(over, engine.ClassOver); c != engine.ClassOver || r != engine.EvalOver(over, engine.Standard) {
		t.Errorf("finished game evaluated as %v (%s)", r, c)
	}
}

func TestFlexSaveLoad(t *testing.T) {
	base := t.TempDir()
	a := newTestFlex(t, base)
	a.SetLearnMode(true)
	playTrace(t, a, 4)
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, f := range []string{paramsFile, contactFile, raceFile, crashedFile} {
		if _, err := os.Stat(filepath.Join(base, "agents", "raw-sutton", f)); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}

	b := newTestFlex(t, base)
	if err := b.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := b.Params(), a.Params(); got != want {
		t.Errorf("loaded params %+v, want %+v", got, want)
	}

	in := make([]float64, RawInputs)
	a.repr.Features(engine.InitBoard(engine.Standard), engine.ClassContact, in)
	if a.contact.Predict(in) != b.contact.Predict(in) {
		t.Error("loaded contact network differs")
	}
}

func TestFlexClone(t *testing.T) {
	a := newTestFlex(t, t.TempDir())
	a.SetLearnMode(true)
	playTrace(t, a, 2)

	c, err := a.Clone()
	if err != nil {
		t.Fatal(err)
	}
	clone := c.(*Flex)
	if clone.PlayedGames() != 0 || clone.Path() != a.Path() {
		t.Errorf("clone played %d games at %s", clone.PlayedGames(), clone.Path())
	}

	in := make([]float64, RawInputs)
	a.repr.Features(engine.InitBoard(engine.Standard), engine.ClassContact, in)
	before := a.contact.Predict(in)
	playTrace(t, clone, 10)
	if a.contact.Predict(in) != before {
		t.Error("training the clone changed the original")
	}
}

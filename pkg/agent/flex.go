package agent

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/internal/positionid"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// TraceEpsilon ends the eligibility trace walk.
const TraceEpsilon = 1e-8

// MaxLearningPlies is the number of plies after which a learning agent
// hands evaluation to its heuristic for the rest of the game.
const MaxLearningPlies = 1000

// Params are the persisted hyper-parameters of a Flex agent.
type Params struct {
	SupportsSanityCheck bool    `json:"supportsSanityCheck"`
	Alpha               float32 `json:"alpha"`
	AlphaAnnealFactor   float32 `json:"alphaAnnealFactor"`
	Gamma               float32 `json:"gamma"`
	Lambda              float32 `json:"lambda"`
	LearnMode           bool    `json:"learnMode"`
	PlayedGames         int     `json:"playedGames"`
}

// DefaultParams returns alpha 0.2 without annealing, gamma 1, lambda 0.7.
func DefaultParams() Params {
	return Params{
		SupportsSanityCheck: true,
		Alpha:               0.2,
		AlphaAnnealFactor:   1,
		Gamma:               1,
		Lambda:              0.7,
	}
}

// Validate checks that every rate is in [0, 1].
func (p Params) Validate() error {
	for _, v := range []struct {
		name string
		val  float32
	}{
		{"alpha", p.Alpha},
		{"alpha anneal factor", p.AlphaAnnealFactor},
		{"gamma", p.Gamma},
		{"lambda", p.Lambda},
	} {
		if v.val < 0 || v.val > 1 {
			return errors.Errorf("%s %g outside [0, 1]", v.name, v.val)
		}
	}
	return nil
}

// Network file names under the agent directory.
const (
	paramsFile  = "params.json"
	contactFile = "contact.net"
	raceFile    = "race.net"
	crashedFile = "crashed.net"
)

// traceEntry is one ply of the current game.
type traceEntry struct {
	input []float64
	class engine.PositionClass
	key   positionid.Key
}

// Flex is a learning agent: approximators per class over an input
// representation, trained at the end of every game by TD(lambda) over the
// positions it played. All positions other than finished games are
// evaluated and trained with the contact approximator; the race and
// crashed approximators are kept and saved.
type Flex struct {
	base
	params Params
	repr   Representation

	contact, race, crashed Approximator

	trace []traceEntry // most recent first
	prev  traceEntry
	step  int

	heuristic *Heuristic
}

// FlexNets configures the approximators a new Flex agent starts with.
type FlexNets struct {
	Hidden int
	// Stream selects the engine random stream for the initial weights.
	Stream uint64
}

// NewFlex creates a Flex agent named name. Its networks are loaded from
// the agent directory when present; otherwise fresh networks are created
// and saved there.
func NewFlex(eng *engine.Engine, basePath, name string, repr Representation, nets FlexNets) (*Flex, error) {
	a := &Flex{
		base:      newBase(eng, basePath, name, name),
		params:    DefaultParams(),
		repr:      repr,
		heuristic: NewHeuristic(eng, basePath),
	}
	a.fixed = false
	a.sanity = a.params.SupportsSanityCheck

	loaded, err := a.loadNets()
	if err != nil {
		return nil, err
	}
	if !loaded {
		rng := eng.NewRNG(nets.Stream)
		mk := func(c engine.PositionClass) Approximator {
			return NewNeuralApproximator(repr.Inputs(c), nets.Hidden, rng)
		}
		a.contact, a.race, a.crashed = mk(engine.ClassContact), mk(engine.ClassRace), mk(engine.ClassCrashed)
		if err := a.saveNets(); err != nil {
			return nil, err
		}
		log.Info().Str("agent", name).Str("repr", repr.Name()).Int("hidden", nets.Hidden).Msg("created new networks")
	}
	return a, nil
}

// Params returns the hyper-parameters.
func (a *Flex) Params() Params {
	p := a.params
	p.SupportsSanityCheck = a.sanity
	p.LearnMode = a.learn
	p.PlayedGames = a.played
	return p
}

// SetParams replaces the hyper-parameters, learn mode and played games.
func (a *Flex) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.params = p
	a.sanity = p.SupportsSanityCheck
	a.learn = p.LearnMode
	a.played = p.PlayedGames
	return nil
}

// SetSanityCheck enables the engine sanity check of the agent's estimates.
func (a *Flex) SetSanityCheck(on bool) { a.sanity = on }

// SetLambda sets the trace decay.
func (a *Flex) SetLambda(l float32) error {
	p := a.Params()
	p.Lambda = l
	return a.SetParams(p)
}

// Representation returns the input representation.
func (a *Flex) Representation() Representation { return a.repr }

// TraceLen returns the number of eligibility trace entries.
func (a *Flex) TraceLen() int { return len(a.trace) }

func (a *Flex) IsCloneable() bool { return true }

// Clone returns an agent with the same parameters and a deep copy of the
// networks, so that training one does not change the other.
func (a *Flex) Clone() (Agent, error) {
	c := &Flex{
		base:      a.base,
		params:    a.params,
		repr:      a.repr,
		contact:   a.contact.Clone(),
		race:      a.race.Clone(),
		crashed:   a.crashed.Clone(),
		heuristic: NewHeuristic(a.eng, filepath.Dir(filepath.Dir(a.path))),
	}
	c.played = 0
	return c, nil
}

func (a *Flex) StartGame(v engine.Variant) {
	a.base.StartGame(v)
	a.heuristic.StartGame(v)
	a.trace = a.trace[:0]
	a.step = 0
}

func (a *Flex) EndGame() {
	a.base.EndGame()
	if a.learn {
		a.params.Alpha *= a.params.AlphaAnnealFactor
	}
}

func (a *Flex) SetCurrentBoard(b engine.Board) {
	a.base.SetCurrentBoard(b)
	a.heuristic.SetCurrentBoard(b)
}

func (a *Flex) EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	if a.learn && c != engine.ClassOver && a.step > MaxLearningPlies {
		return a.heuristic.EvaluatePosition(b, c)
	}
	if c == engine.ClassOver {
		return engine.EvalOver(b, a.variant), c, nil
	}
	r, err := a.evalContact(b)
	return r, engine.ClassContact, err
}

func (a *Flex) features(b engine.Board, c engine.PositionClass) []float64 {
	in := make([]float64, a.repr.Inputs(c))
	a.repr.Features(b, c, in)
	return in
}

func (a *Flex) evalContact(b engine.Board) (engine.Reward, error) {
	return a.contact.Predict(a.features(b, engine.ClassContact)), nil
}

// scoredBoard is the position of a candidate as it was evaluated: the
// opponent of the mover on roll.
func scoredBoard(key positionid.Key) engine.Board {
	b := engine.BoardFromKey(key)
	b.SwapSides()
	return b
}

func (a *Flex) prepareStep0(c *engine.Candidate) {
	if a.variant == engine.Standard && c.Class == engine.ClassContact {
		init := engine.InitBoard(a.variant)
		a.prev = traceEntry{key: init.Key(), class: a.eng.Classify(init)}
		return
	}
	a.prev = traceEntry{key: c.Key, class: c.Class}
}

// DoMove records the move in the eligibility trace and, when it ends the
// game, trains the approximators with the final reward.
func (a *Flex) DoMove(c *engine.Candidate) error {
	if !a.learn {
		return nil
	}
	if a.step == 0 {
		a.prepareStep0(c)
	}

	var delta engine.Reward
	over := c.Class == engine.ClassOver
	if over {
		prevQ, _, err := a.EvaluatePosition(scoredBoard(a.prev.key), a.prev.class)
		if err != nil {
			return errors.Wrap(err, "evaluating previous position")
		}
		// The greedy prediction after the last move is its own reward.
		delta = c.Reward.Add(c.Reward.Scale(a.params.Gamma)).Sub(prevQ)
	}

	entry := traceEntry{
		key:   c.Key,
		class: engine.ClassContact,
		input: a.features(scoredBoard(c.Key), engine.ClassContact),
	}
	a.trace = append(a.trace, traceEntry{})
	copy(a.trace[1:], a.trace)
	a.trace[0] = entry

	if over {
		a.step = 0
		delta[engine.Equity] = 0
		a.updateTrace(delta.Scale(a.params.Alpha))
	}
	a.step++
	a.prev = entry
	return nil
}

// updateTrace applies delta to the trace positions with weights 1,
// gamma*lambda, (gamma*lambda)^2 ... and drops the entries whose weight
// fell below TraceEpsilon.
func (a *Flex) updateTrace(delta engine.Reward) {
	e := float32(1)
	for i, entry := range a.trace {
		if q := a.approximator(entry.class); q != nil {
			AddToReward(q, entry.input, delta.Scale(e))
		}
		e *= a.params.Gamma * a.params.Lambda
		if e < TraceEpsilon {
			a.trace = a.trace[:i]
			return
		}
	}
}

func (a *Flex) approximator(c engine.PositionClass) Approximator {
	switch c {
	case engine.ClassContact:
		return a.contact
	case engine.ClassRace:
		return a.race
	case engine.ClassCrashed:
		return a.crashed
	}
	return nil
}

func (a *Flex) loadNets() (bool, error) {
	var nets [3]*NeuralApproximator
	for i, name := range []string{contactFile, raceFile, crashedFile} {
		n, err := LoadNeuralApproximator(filepath.Join(a.path, name))
		if os.IsNotExist(errors.Cause(err)) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrapf(err, "loading %s", name)
		}
		nets[i] = n
	}
	if nets[0].Inputs() != a.repr.Inputs(engine.ClassContact) {
		return false, errors.Errorf("%s has %d inputs, %s needs %d",
			contactFile, nets[0].Inputs(), a.repr.Name(), a.repr.Inputs(engine.ClassContact))
	}
	a.contact, a.race, a.crashed = nets[0], nets[1], nets[2]
	return true, nil
}

func (a *Flex) saveNets() error {
	for _, n := range []struct {
		file string
		net  Approximator
	}{
		{contactFile, a.contact},
		{raceFile, a.race},
		{crashedFile, a.crashed},
	} {
		if err := n.net.Save(filepath.Join(a.path, n.file)); err != nil {
			return errors.Wrapf(err, "saving %s", n.file)
		}
	}
	return nil
}

// Load reads params.json from the agent directory. A missing file keeps
// the current parameters.
func (a *Flex) Load() error {
	data, err := os.ReadFile(filepath.Join(a.path, paramsFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	p := a.Params()
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrapf(err, "decoding %s", paramsFile)
	}
	return a.SetParams(p)
}

// Save writes the networks and params.json.
func (a *Flex) Save() error {
	if err := a.saveNets(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a.Params(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.path, paramsFile), data, 0o644)
}

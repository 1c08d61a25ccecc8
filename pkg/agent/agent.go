// Package agent implements the move evaluators that play in the game
// dispatcher: fixed agents (random, heuristic, pubeval, gnubg) and the
// Flex agent, which learns its networks by TD(lambda) self-play.
package agent

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// ErrUnknownClass is returned for a position class outside the evaluator set.
var ErrUnknownClass = errors.New("unknown position class")

// Agent evaluates positions for the dispatcher and receives the moves it
// played. Positions handed to EvaluatePosition have the side to move next
// (the opponent of the agent) on roll.
type Agent interface {
	Name() string
	// Path is the directory holding the agent's files.
	Path() string
	PlayedGames() int

	StartGame(v engine.Variant)
	EndGame()
	// DoMove is called with the chosen move after it was scored. At the end
	// of a game the other agent is called too, with the final position and
	// reward seen from its side.
	DoMove(c *engine.Candidate) error
	// SetCurrentBoard passes the position before the move, mover on roll.
	SetCurrentBoard(b engine.Board)

	// EvaluatePosition returns the reward of b for class c and the class
	// the evaluation was done as, which may differ from c.
	EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error)

	IsLearnMode() bool
	SetLearnMode(learn bool)
	// IsFixed reports whether the agent cannot learn.
	IsFixed() bool
	NeedsInvertedEval() bool
	SupportsSanityCheck() bool

	IsCloneable() bool
	Clone() (Agent, error)
	Load() error
	Save() error
}

// base carries the state shared by all agents and the default evaluation
// of exact classes.
type base struct {
	eng     *engine.Engine
	name    string
	path    string
	variant engine.Variant

	learn    bool
	sanity   bool
	fixed    bool
	inverted bool
	played   int

	current engine.Board
}

func newBase(eng *engine.Engine, basePath, name, dir string) base {
	return base{
		eng:     eng,
		name:    name,
		path:    filepath.Join(basePath, "agents", dir),
		variant: eng.Variant(),
		fixed:   true,
	}
}

func (a *base) Name() string { return a.name }
func (a *base) Path() string { return a.path }
func (a *base) PlayedGames() int { return a.played }
func (a *base) StartGame(v engine.Variant) { a.variant = v }
func (a *base) DoMove(*engine.Candidate) error { return nil }
func (a *base) SetCurrentBoard(b engine.Board) { a.current = b }
func (a *base) IsLearnMode() bool { return a.learn }
func (a *base) SetLearnMode(learn bool) { a.learn = learn }
func (a *base) IsFixed() bool { return a.fixed }
func (a *base) NeedsInvertedEval() bool { return a.inverted }
func (a *base) SupportsSanityCheck() bool { return a.sanity }
func (a *base) IsCloneable() bool { return false }
func (a *base) Load() error { return nil }
func (a *base) Save() error { return nil }

func (a *base) EndGame() {
	if a.learn {
		a.played++
	}
}

func (a *base) Clone() (Agent, error) {
	return nil, errors.Errorf("agent %s cannot be cloned", a.name)
}

// netEvaluator scores the classes that need an estimate rather than a
// table.
type netEvaluator interface {
	evalRace(b engine.Board) (engine.Reward, error)
	evalCrashed(b engine.Board) (engine.Reward, error)
	evalContact(b engine.Board) (engine.Reward, error)
}

// evaluate dispatches c to the exact evaluators or to ev. Hypergammon
// classes without a database are estimated like other positions.
func (a *base) evaluate(ev netEvaluator, b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	if c >= engine.ClassHypergammon1 && c <= engine.ClassHypergammon3 && !a.eng.HasDatabase(c) {
		c = engine.ClassifyContact(b)
	}

	var (
		r   engine.Reward
		err error
	)
	switch {
	case c == engine.ClassOver:
		r = engine.EvalOver(b, a.variant)
	case c.IsBearoff():
		r, err = a.eng.EvalBearoff(b, c)
	case c == engine.ClassRace:
		r, err = ev.evalRace(b)
	case c == engine.ClassCrashed:
		r, err = ev.evalCrashed(b)
	case c == engine.ClassContact:
		r, err = ev.evalContact(b)
	default:
		err = errors.Wrapf(ErrUnknownClass, "%d", int(c))
	}
	return r, c, err
}

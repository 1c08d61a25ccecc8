package agent

import "github.com/yourusername/bgtrainer/pkg/engine"

// Random scores every estimated position with a uniform winning chance.
type Random struct {
	base
	rng *engine.RNG
}

// NewRandom creates a random agent drawing from rng.
func NewRandom(eng *engine.Engine, basePath string, rng *engine.RNG) *Random {
	return &Random{base: newBase(eng, basePath, "Random", "random"), rng: rng}
}

func (a *Random) EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	return a.evaluate(a, b, c)
}

func (a *Random) evalRace(engine.Board) (engine.Reward, error) {
	var r engine.Reward
	r[engine.Win] = a.rng.Float32()
	return r, nil
}

func (a *Random) evalCrashed(b engine.Board) (engine.Reward, error) { return a.evalRace(b) }
func (a *Random) evalContact(b engine.Board) (engine.Reward, error) { return a.evalRace(b) }

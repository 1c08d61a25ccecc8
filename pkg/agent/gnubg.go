package agent

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/internal/neuralnet"
	"github.com/yourusername/bgtrainer/internal/positionid"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// Evaluator ids in the evaluation cache context.
const (
	cacheGnubg = 1 + iota
)

// gnubg weights are read-only once loaded and shared between agents.
var (
	weightsMu    sync.Mutex
	weightsCache = map[string]*neuralnet.Weights{}
)

func loadGnubgWeights(dir string) (*neuralnet.Weights, error) {
	weightsMu.Lock()
	defer weightsMu.Unlock()

	if w, ok := weightsCache[dir]; ok {
		return w, nil
	}
	w, err := neuralnet.LoadWeights(filepath.Join(dir, "gnubg.wd"), filepath.Join(dir, "gnubg.weights"))
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	weightsCache[dir] = w
	return w, nil
}

// Gnubg evaluates with gnubg's trained contact, crashed and race nets. Its
// estimates are from the side on roll, so the dispatcher inverts them.
type Gnubg struct {
	base
	weights *neuralnet.Weights
	cache   *engine.EvalCache
}

// NewGnubg loads gnubg.wd, or gnubg.weights, from <basePath>/agents/gnubg.
func NewGnubg(eng *engine.Engine, basePath string) (*Gnubg, error) {
	a := &Gnubg{base: newBase(eng, basePath, "Gnubg", "gnubg"), cache: eng.Cache()}
	w, err := loadGnubgWeights(a.path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading gnubg weights from %s", a.path)
	}
	a.weights = w
	a.sanity = true
	a.inverted = true
	return a, nil
}

func (a *Gnubg) EvaluatePosition(b engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	return a.evaluate(a, b, c)
}

// cached looks b up in the engine cache before running eval.
func (a *Gnubg) cached(b engine.Board, c engine.PositionClass, eval func(positionid.Board) [neuralnet.NumOutputs]float32) engine.Reward {
	if a.cache == nil {
		return engine.RewardFromOutputs(eval(positionid.Board(b)))
	}
	key := b.Key()
	ctx := engine.MakeEvalContext(cacheGnubg, c, false)
	var r engine.Reward
	slot := a.cache.Lookup(key, ctx, &r)
	if slot == engine.CacheHit {
		return r
	}
	r = engine.RewardFromOutputs(eval(positionid.Board(b)))
	a.cache.Add(key, ctx, r, slot)
	return r
}

func (a *Gnubg) evalRace(b engine.Board) (engine.Reward, error) {
	r := a.cached(b, engine.ClassRace, a.weights.EvaluateRace)
	a.eng.EvalRaceBG(b, &r)
	return r, nil
}

func (a *Gnubg) evalCrashed(b engine.Board) (engine.Reward, error) {
	return a.cached(b, engine.ClassCrashed, a.weights.EvaluateCrashed), nil
}

func (a *Gnubg) evalContact(b engine.Board) (engine.Reward, error) {
	return a.cached(b, engine.ClassContact, a.weights.EvaluateContact), nil
}

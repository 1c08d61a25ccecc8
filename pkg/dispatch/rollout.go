package dispatch

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// RolloutOptions controls a rollout.
type RolloutOptions struct {
	Trials   int    // games to play out (default 1296)
	Truncate int    // evaluate after this many plies; 0 plays to the end
	Workers  int    // goroutines (0 = GOMAXPROCS)
	Stream   uint64 // dice stream of worker 0; worker i uses Stream+i
}

// DefaultRolloutOptions returns 1296 untruncated trials on every core.
func DefaultRolloutOptions() RolloutOptions {
	return RolloutOptions{Trials: 1296, Stream: 1 << 20}
}

// RolloutProgress is reported after every batch of trials.
type RolloutProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Equity    float64 `json:"equity"`
	CI        float64 `json:"ci"`
}

// RolloutResult is the outcome of a rollout for the side on roll.
type RolloutResult struct {
	Reward       engine.Reward // mean probabilities; Equity is the mean equity
	EquityStdDev float64
	EquityCI     float64 // 95% confidence interval

	Trials          int
	Won             int
	GammonsWon      int
	BackgammonsWon  int
	GammonsLost     int
	BackgammonsLost int
}

// rolloutMaxPlies ends a trial that runs away; the position is evaluated.
const rolloutMaxPlies = 1000

// rolloutBatches is the number of progress reports per worker.
const rolloutBatches = 20

type trial struct {
	reward engine.Reward
	equity float64
}

// Rollout plays opts.Trials games from b, the side on roll being Self,
// choosing every move with an agent from newAgent. Each worker owns one
// agent and one dice stream, so a rollout with the same options is
// repeatable. progress may be nil.
func Rollout(ctx context.Context, eng *engine.Engine, newAgent func() (agent.Agent, error), b engine.Board,
	opts RolloutOptions, progress func(RolloutProgress)) (*RolloutResult, error) {
	if opts.Trials <= 0 {
		opts.Trials = DefaultRolloutOptions().Trials
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	opts.Workers = min(opts.Workers, opts.Trials)
	if b.GameStatus(eng.Variant()) > 0 {
		return nil, errors.New("rollout of a finished game")
	}

	var (
		mu      sync.Mutex
		trials  = make([]trial, 0, opts.Trials)
		g, gctx = errgroup.WithContext(ctx)
	)
	report := func(batch []trial) {
		mu.Lock()
		defer mu.Unlock()
		trials = append(trials, batch...)
		if progress != nil {
			eq, ci := equityCI(trials)
			progress(RolloutProgress{Completed: len(trials), Total: opts.Trials, Equity: eq, CI: ci})
		}
	}

	per, extra := opts.Trials/opts.Workers, opts.Trials%opts.Workers
	for w := 0; w < opts.Workers; w++ {
		n := per
		if w < extra {
			n++
		}
		stream := opts.Stream + uint64(w)
		g.Go(func() error {
			a, err := newAgent()
			if err != nil {
				return err
			}
			a.SetLearnMode(false)
			r := &roller{eng: eng, a: a, rng: eng.NewRNG(stream), truncate: opts.Truncate}
			batch := max(n/rolloutBatches, 1)
			for done := 0; done < n; {
				k := min(batch, n-done)
				out := make([]trial, 0, k)
				for i := 0; i < k; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					t, err := r.play(b)
					if err != nil {
						return err
					}
					out = append(out, t)
				}
				report(out)
				done += k
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "rollout")
	}
	return aggregate(trials), nil
}

type roller struct {
	eng      *engine.Engine
	a        agent.Agent
	rng      *engine.RNG
	truncate int
}

// play runs one trial and returns its outcome for the side on roll in b.
func (r *roller) play(b engine.Board) (trial, error) {
	v := r.eng.Variant()
	r.a.StartGame(v)
	defer r.a.EndGame()

	own := true // Self of b is the side the rollout is for
	for ply := 0; ; ply++ {
		if ply == rolloutMaxPlies || (r.truncate > 0 && ply >= r.truncate) {
			rw, _, err := Evaluate(r.eng, r.a, b)
			if err != nil {
				return trial{}, err
			}
			return newTrial(rw, own), nil
		}

		d0, d1 := r.rng.Roll()
		ml, err := RankMoves(r.eng, r.a, b, d0, d1)
		if err != nil {
			return trial{}, err
		}
		if len(ml.Moves) > 0 {
			b = engine.BoardFromKey(ml.Moves[0].Key)
			if b.GameStatus(v) > 0 {
				return newTrial(engine.EvalOver(b, v), own), nil
			}
		}
		b.SwapSides()
		own = !own
	}
}

// newTrial turns a reward of the side that moved last (own when it is the
// rollout side) into a trial of the rollout side.
func newTrial(r engine.Reward, own bool) trial {
	if !own {
		r.Invert()
	}
	r[engine.Equity] = r.Utility()
	return trial{reward: r, equity: float64(r[engine.Equity])}
}

// equityCI returns the mean equity and its 95% confidence interval.
func equityCI(trials []trial) (mean, ci float64) {
	eq := make([]float64, len(trials))
	for i, t := range trials {
		eq[i] = t.equity
	}
	mean = stat.Mean(eq, nil)
	if len(eq) > 1 {
		ci = 1.96 * stat.StdDev(eq, nil) / math.Sqrt(float64(len(eq)))
	}
	return mean, ci
}

func aggregate(trials []trial) *RolloutResult {
	res := &RolloutResult{Trials: len(trials)}
	if len(trials) == 0 {
		return res
	}
	eq := make([]float64, len(trials))
	var sum [engine.NumRewards]float64
	for i, t := range trials {
		eq[i] = t.equity
		for k, p := range t.reward {
			sum[k] += float64(p)
		}
		// Played out games have exact outcomes; truncated ones count by
		// their estimate.
		switch {
		case t.reward[engine.Win] > 0.5:
			res.Won++
			if t.reward[engine.WinBackgammon] > 0.5 {
				res.BackgammonsWon++
			} else if t.reward[engine.WinGammon] > 0.5 {
				res.GammonsWon++
			}
		case t.reward[engine.LoseBackgammon] > 0.5:
			res.BackgammonsLost++
		case t.reward[engine.LoseGammon] > 0.5:
			res.GammonsLost++
		}
	}
	n := float64(len(trials))
	for k := range sum {
		res.Reward[k] = float32(sum[k] / n)
	}
	res.Reward[engine.Equity] = float32(stat.Mean(eq, nil))
	if len(eq) > 1 {
		res.EquityStdDev = stat.StdDev(eq, nil)
		res.EquityCI = 1.96 * res.EquityStdDev / math.Sqrt(n)
	}
	return res
}

// Package trainer runs batch self-play training. Every agent named in the
// configuration is trained in its own goroutine against a copy of itself
// and benchmarked against a fixed opponent every period.
package trainer

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/dispatch"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// Config holds the parameters of a training run.
type Config struct {
	Agents     []string // agents to train
	Bench      string   // benchmark opponent
	TrainGames int      // training games per agent; 0 only benchmarks
	BenchGames int      // games per benchmark, half in each seat
	Period     int      // training games between benchmarks
	BasePath   string   // directory holding agents/<name>
	Seed       uint64   // dice seed of the engine
	Out        io.Writer
}

// DefaultConfig returns 10000 training games benchmarked against Pubeval
// over 1000 games every 10000 games.
func DefaultConfig() Config {
	return Config{
		Bench:      "Pubeval",
		TrainGames: 10000,
		BenchGames: 1000,
		Period:     10000,
		BasePath:   ".",
		Seed:       16000000,
		Out:        os.Stdout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Agents) == 0 {
		return errors.New("no agents to train")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, name := range c.Agents {
		key := strings.ToLower(name)
		if seen[key] {
			return errors.Errorf("agent %s listed twice", name)
		}
		seen[key] = true
	}
	if c.Bench == "" {
		return errors.New("no benchmark agent")
	}
	switch {
	case c.TrainGames < 0:
		return errors.Errorf("negative training games %d", c.TrainGames)
	case c.BenchGames < 0:
		return errors.Errorf("negative benchmark games %d", c.BenchGames)
	case c.TrainGames > 0 && c.Period <= 0:
		return errors.Errorf("benchmark period %d", c.Period)
	}
	return nil
}

// Phase is the stage of a training task.
type Phase int

const (
	PhaseTrain Phase = iota
	PhaseBenchmark
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseTrain:
		return "train"
	case PhaseBenchmark:
		return "benchmark"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Event reports the progress of one agent.
type Event struct {
	Agent      string               `json:"agent"`
	Phase      Phase                `json:"-"`
	PhaseName  string               `json:"phase"`
	Games      int                  `json:"games"`      // training games played so far
	TrainGames int                  `json:"trainGames"` // training games planned
	Stats      *dispatch.Statistics `json:"stats,omitempty"`
	Err        string               `json:"error,omitempty"`
	Time       time.Time            `json:"time"`
}

// progressEvery is the number of training games between train events.
const progressEvery = 100

// Trainer runs the training tasks. It may be run once.
type Trainer struct {
	eng *engine.Engine
	cfg Config

	mu      sync.Mutex // guards Out and onEvent calls
	onEvent func(Event)
}

// New creates a trainer. The engine is shared read-only by all tasks.
func New(eng *engine.Engine, cfg Config) (*Trainer, error) {
	if eng == nil {
		return nil, errors.New("trainer without engine")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid trainer config")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Trainer{eng: eng, cfg: cfg}, nil
}

// OnEvent sets the progress callback. Calls are serialised.
func (t *Trainer) OnEvent(f func(Event)) { t.onEvent = f }

func (t *Trainer) emit(e Event) {
	e.PhaseName = e.Phase.String()
	e.Time = time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.onEvent != nil {
		t.onEvent(e)
	}
}

func (t *Trainer) print(buf *bytes.Buffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Out.Write(buf.Bytes())
}

// Run trains every agent in its own goroutine and returns the first task
// error. A failing task does not stop the others; ctx does, between
// games.
func (t *Trainer) Run(ctx context.Context) error {
	start := time.Now()
	var g errgroup.Group
	for i, name := range t.cfg.Agents {
		i, name := i, name
		g.Go(func() error {
			err := t.runAgent(ctx, i, name)
			if err != nil {
				log.Error().Err(err).Str("agent", name).Msg("training failed")
				t.emit(Event{Agent: name, Phase: PhaseDone, Err: err.Error()})
			}
			return err
		})
	}
	err := g.Wait()

	total := time.Since(start).Truncate(time.Second)
	log.Info().Str("elapsed", total.String()).Int("agents", len(t.cfg.Agents)).Msg("training finished")
	return err
}

// streams of one task: agent weights, benchmark agent, training dice and
// benchmark dice.
func taskStream(task, n int) uint64 {
	return uint64(task+1)<<32 | uint64(n)
}

func (t *Trainer) newAgent(name string, stream uint64) (agent.Agent, error) {
	return agent.New(name, agent.Options{Engine: t.eng, BasePath: t.cfg.BasePath, Stream: stream})
}

// opponent returns the self-play opponent of a: a deep copy when a can be
// cloned, a fresh agent of the same name otherwise.
func (t *Trainer) opponent(a agent.Agent, name string, stream uint64) (agent.Agent, error) {
	if a.IsCloneable() {
		return a.Clone()
	}
	return t.newAgent(name, stream)
}

func (t *Trainer) runAgent(ctx context.Context, task int, name string) error {
	learner, err := t.newAgent(name, taskStream(task, 1))
	if err != nil {
		return err
	}
	bench, err := t.newAgent(t.cfg.Bench, taskStream(task, 2))
	if err != nil {
		return err
	}
	sparring, err := t.opponent(learner, name, taskStream(task, 3))
	if err != nil {
		return errors.Wrapf(err, "cloning %s", name)
	}

	log.Info().Str("agent", learner.Name()).Str("bench", bench.Name()).
		Int("trainGames", t.cfg.TrainGames).Int("period", t.cfg.Period).Msg("training started")

	if t.cfg.TrainGames == 0 {
		if _, err := t.benchmark(ctx, learner, bench, taskStream(task, 16), 0); err != nil {
			return err
		}
		t.emit(Event{Agent: name, Phase: PhaseDone})
		return nil
	}

	opts := dispatch.Options{Stream: taskStream(task, 4)}
	opts.OnGame = func(games int) {
		if games%progressEvery == 0 {
			t.emit(Event{Agent: name, Phase: PhaseTrain, Games: games, TrainGames: t.cfg.TrainGames})
		}
	}
	d, err := dispatch.New(t.eng, learner, sparring, opts)
	if err != nil {
		return err
	}

	for checkpoint, played := 0, 0; played < t.cfg.TrainGames; checkpoint++ {
		n := min(t.cfg.Period, t.cfg.TrainGames-played)
		if err := playGames(ctx, d, n, true); err != nil {
			return errors.Wrapf(err, "training %s", name)
		}
		played += n
		if err := learner.Save(); err != nil {
			return errors.Wrapf(err, "saving %s", name)
		}
		log.Info().Str("agent", name).Int("games", played).Msg("checkpoint saved")

		if learner.IsCloneable() {
			if sparring, err = learner.Clone(); err != nil {
				return errors.Wrapf(err, "cloning %s", name)
			}
			d.SetAgent(1, sparring)
		}

		if _, err := t.benchmark(ctx, learner, bench, taskStream(task, 16+checkpoint), played); err != nil {
			return err
		}
	}
	t.emit(Event{Agent: name, Phase: PhaseDone, Games: t.cfg.TrainGames, TrainGames: t.cfg.TrainGames})
	return nil
}

// playGames plays n games in slices so that ctx is honoured between games.
func playGames(ctx context.Context, d *dispatch.Dispatcher, n int, learn bool) error {
	const slice = 10
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		k := min(slice, n)
		if err := d.PlayGames(k, learn); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// benchmark plays half the benchmark games with the learner in seat 0 and
// the rest in seat 1, prints the statistics and reports them.
func (t *Trainer) benchmark(ctx context.Context, learner, bench agent.Agent, stream uint64, played int) (dispatch.Statistics, error) {
	d, err := dispatch.New(t.eng, learner, bench, dispatch.Options{Stream: stream})
	if err != nil {
		return dispatch.Statistics{}, err
	}
	half := t.cfg.BenchGames / 2
	if err := playGames(ctx, d, half, false); err != nil {
		return dispatch.Statistics{}, errors.Wrapf(err, "benchmarking %s", learner.Name())
	}
	d.SwapAgents()
	if err := playGames(ctx, d, t.cfg.BenchGames-half, false); err != nil {
		return dispatch.Statistics{}, errors.Wrapf(err, "benchmarking %s", learner.Name())
	}
	d.SwapAgents()

	var buf bytes.Buffer
	if err := d.PrintStatistics(&buf); err != nil {
		return dispatch.Statistics{}, err
	}
	t.print(&buf)

	s := d.Statistics()
	log.Info().Str("agent", learner.Name()).Str("bench", bench.Name()).Int("games", s.Games).
		Float64("ppg", s.PPG).Msg("benchmark")
	t.emit(Event{Agent: learner.Name(), Phase: PhaseBenchmark, Games: played, TrainGames: t.cfg.TrainGames, Stats: &s})
	return s, nil
}

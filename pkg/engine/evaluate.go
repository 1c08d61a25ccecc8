package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/internal/bearoff"
	"github.com/yourusername/bgtrainer/internal/positionid"
)

// ErrNoDatabase is returned when a bearoff class has no table loaded.
var ErrNoDatabase = errors.New("no bearoff database for class")

// Engine is the evaluation context shared by agents and dispatchers: the
// variant, the bearoff tables, the evaluation cache and the dice seed.
// It is read-only after NewEngine and safe for concurrent use.
type Engine struct {
	opts    EngineOptions
	variant Variant

	bearoff1  *bearoff.Database // one-sided, in memory (gnubg_os0.bd or heuristic)
	bearoff2  *bearoff.Database // two-sided, in memory (gnubg_ts0.bd)
	bearoffOS *bearoff.Database // large one-sided (gnubg_os.bd)
	bearoffTS *bearoff.Database // large two-sided (gnubg_ts.bd)
	hyper     [3]*bearoff.Database

	cache *EvalCache
}

// EngineOptions configures the engine
type EngineOptions struct {
	DataDir       string  // Directory holding the bearoff databases
	OneSidedFile  string  // One-sided bearoff database; generated heuristically when missing
	TwoSidedFile  string  // Two-sided bearoff database; optional
	OneSidedLarge string  // Large one-sided database; optional
	TwoSidedLarge string  // Large two-sided database; optional
	Variant       Variant // Game variant
	Seed          uint64  // Dice seed
	CacheSize     uint32  // Evaluation cache entries (0 = default)
	NoCache       bool    // Disable the evaluation cache
}

// DefaultEngineOptions returns the standard layout: gnubg file names under
// ./data, standard backgammon.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		DataDir:       "data",
		OneSidedFile:  "gnubg_os0.bd",
		TwoSidedFile:  "gnubg_ts0.bd",
		OneSidedLarge: "gnubg_os.bd",
		TwoSidedLarge: "gnubg_ts.bd",
		Variant:       Standard,
		Seed:          16000000,
	}
}

// NewEngine loads the bearoff databases. A missing one-sided table is
// replaced by a heuristic one; the other tables are optional.
func NewEngine(opts EngineOptions) (*Engine, error) {
	e := &Engine{opts: opts, variant: opts.Variant}

	db, err := loadOptional(opts.DataDir, opts.OneSidedFile)
	switch {
	case err != nil:
		return nil, err
	case db == nil:
		log.Info().Str("dir", opts.DataDir).Msg("one-sided bearoff database not found, generating heuristic table")
		db = bearoff.GenerateHeuristic()
	case db.Type != bearoff.OneSided:
		return nil, errors.Errorf("%s: expected a one-sided bearoff database, got %s", db.Filename(), db.Type)
	}
	e.bearoff1 = db

	if e.bearoff2, err = loadOptional(opts.DataDir, opts.TwoSidedFile); err != nil {
		return nil, err
	}
	if e.bearoff2 == nil {
		log.Warn().Str("dir", opts.DataDir).Str("file", opts.TwoSidedFile).
			Msg("two-sided bearoff database not found; generate it with 'makebearoff -t 6x6 -f gnubg_ts0.bd'")
	} else if e.bearoff2.Type != bearoff.TwoSided {
		return nil, errors.Errorf("%s: expected a two-sided bearoff database, got %s", e.bearoff2.Filename(), e.bearoff2.Type)
	}

	if e.bearoffOS, err = loadOptional(opts.DataDir, opts.OneSidedLarge); err != nil {
		return nil, err
	}
	if e.bearoffTS, err = loadOptional(opts.DataDir, opts.TwoSidedLarge); err != nil {
		return nil, err
	}

	if e.variant.IsHypergammon() {
		n := int(e.variant - Hypergammon1)
		name := fmt.Sprintf("hyper%d.bd", n+1)
		if e.hyper[n], err = loadOptional(opts.DataDir, name); err != nil {
			return nil, err
		}
		if e.hyper[n] == nil {
			log.Warn().Str("file", name).Msg("hypergammon database not found, falling back to the race path")
		}
	}

	if !opts.NoCache {
		size := opts.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		e.cache = NewEvalCache(size)
	}

	log.Debug().
		Str("variant", e.variant.String()).
		Bool("ts0", e.bearoff2 != nil).
		Bool("os", e.bearoffOS != nil).
		Bool("ts", e.bearoffTS != nil).
		Bool("heuristic", e.bearoff1.Heuristic).
		Msg("engine ready")
	return e, nil
}

// loadOptional loads dir/name, returning nil without error when the file
// does not exist.
func loadOptional(dir, name string) (*bearoff.Database, error) {
	if name == "" {
		return nil, nil
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return bearoff.Load(path)
}

// Variant returns the engine's game variant.
func (e *Engine) Variant() Variant {
	return e.variant
}

// Options returns the options the engine was built with.
func (e *Engine) Options() EngineOptions {
	return e.opts
}

// Cache returns the evaluation cache (may be nil if disabled)
func (e *Engine) Cache() *EvalCache {
	return e.cache
}

// NewRNG returns a dice generator for one stream of the engine's seed.
func (e *Engine) NewRNG(stream uint64) *RNG {
	return NewRNG(e.opts.Seed, stream)
}

func (b Board) pb() positionid.Board {
	return positionid.Board(b)
}

// database returns the table behind a bearoff class.
func (e *Engine) database(c PositionClass) *bearoff.Database {
	switch c {
	case ClassBearoff1:
		return e.bearoff1
	case ClassBearoff2:
		return e.bearoff2
	case ClassBearoffOS:
		return e.bearoffOS
	case ClassBearoffTS:
		return e.bearoffTS
	case ClassHypergammon1, ClassHypergammon2, ClassHypergammon3:
		return e.hyper[c-ClassHypergammon1]
	}
	return nil
}

// HasDatabase reports whether positions of class c can be read from a
// table. Hypergammon classes without a table are played as races.
func (e *Engine) HasDatabase(c PositionClass) bool {
	return e.database(c) != nil
}

// EvalBearoff reads a bearoff class from its table. Two-sided tables give
// the winning chance only. A missing or failing table falls back to the
// one-sided table.
func (e *Engine) EvalBearoff(b Board, c PositionClass) (Reward, error) {
	if !c.IsBearoff() {
		return Reward{}, errors.Errorf("%s is not a bearoff class", c)
	}
	db := e.database(c)
	if db == nil {
		if c < ClassBearoff2 {
			return Reward{}, errors.Wrapf(ErrNoDatabase, "%s", c)
		}
		db = e.bearoff1
	}

	out, err := db.Evaluate(b.pb())
	if err != nil && db != e.bearoff1 && c >= ClassBearoff2 {
		log.Debug().Err(err).Str("class", c.String()).Msg("bearoff lookup failed, using one-sided table")
		out, err = e.bearoff1.Evaluate(b.pb())
	}
	if err != nil {
		return Reward{}, errors.Wrapf(err, "evaluating %s position %s", c, b.ID())
	}
	return RewardFromOutputs(out), nil
}

// maxTurns is the most rolls side needs to bear off, by the one-sided table.
func (e *Engine) maxTurns(b Board, side int) int {
	return e.bearoff1.MaxTurns(e.bearoff1.Index(b[side][:]))
}

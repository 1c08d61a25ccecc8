// Package dispatch plays games between two agents: it rolls the dice, asks
// the agent on roll to score every legal move, plays the best one and keeps
// the match state, the game log and the running statistics.
package dispatch

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

var (
	// ErrUnsupported is returned when the computer would have to handle a
	// double or a resignation.
	ErrUnsupported = errors.New("cube and resignation play is not supported")
	// ErrNotPlaying is returned when a turn is requested outside a game.
	ErrNotPlaying = errors.New("no game in progress")
	// ErrBadRecord is returned for move records that fail the sanity check.
	ErrBadRecord = errors.New("invalid move record")
)

var (
	signs       = [2]byte{'O', 'X'}
	gameResults = [...]string{"single game", "gammon", "backgammon"}
)

// Options configures a dispatcher.
type Options struct {
	Jacoby       bool      // gammons count single on a centred cube in money play
	AutoCrawford bool      // apply the Crawford rule in matches
	ShowLog      bool      // print boards and moves to Out
	Out          io.Writer // game log and statistics
	Stream       uint64    // dice stream of the engine seed
	KeepGames    bool      // retain the log of every finished game
	// OnGame is called after every game with the number of games played.
	OnGame func(games int)
}

// DefaultOptions returns money play without the Jacoby rule, printing to
// standard output.
func DefaultOptions() Options {
	return Options{
		AutoCrawford: true,
		Out:          os.Stdout,
	}
}

// Dispatcher plays games between two agents. It is not safe for
// concurrent use.
type Dispatcher struct {
	eng    *engine.Engine
	opts   Options
	rng    *engine.RNG
	agents [2]agent.Agent

	won    [2]int
	points [2]int
	diffs  []float64 // points of agent 0 minus agent 1, per game
	games  int
	learn  bool

	ms      MatchState
	game    []MoveRecord
	history [][]MoveRecord
}

// New creates a dispatcher for a0 (O, side 0) and a1 (X, side 1).
func New(eng *engine.Engine, a0, a1 agent.Agent, opts Options) (*Dispatcher, error) {
	if eng == nil {
		return nil, errors.New("dispatcher without engine")
	}
	if a0 == nil || a1 == nil {
		return nil, errors.New("dispatcher needs two agents")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Dispatcher{
		eng:    eng,
		opts:   opts,
		rng:    eng.NewRNG(opts.Stream),
		agents: [2]agent.Agent{a0, a1},
		ms:     NewMatchState(eng.Variant()),
	}, nil
}

// Agent returns the agent playing side i.
func (d *Dispatcher) Agent(i int) agent.Agent { return d.agents[i] }

// SetAgent replaces the agent of side i. The statistics are kept.
func (d *Dispatcher) SetAgent(i int, a agent.Agent) { d.agents[i] = a }

// MatchState returns a copy of the current state.
func (d *Dispatcher) MatchState() MatchState { return d.ms }

// GameLog returns the records of the current or last game.
func (d *Dispatcher) GameLog() []MoveRecord { return d.game }

// History returns the logs of finished games when KeepGames is set.
func (d *Dispatcher) History() [][]MoveRecord { return d.history }

// Games returns the number of games played by PlayGames.
func (d *Dispatcher) Games() int { return d.games }

// SwapAgents exchanges the seats of the agents together with their
// statistics.
func (d *Dispatcher) SwapAgents() {
	d.agents[0], d.agents[1] = d.agents[1], d.agents[0]
	d.won[0], d.won[1] = d.won[1], d.won[0]
	d.points[0], d.points[1] = d.points[1], d.points[0]
	for i := range d.diffs {
		d.diffs[i] = -d.diffs[i]
	}
}

// ResetStatistics clears the game counters.
func (d *Dispatcher) ResetStatistics() {
	d.won, d.points = [2]int{}, [2]int{}
	d.diffs = d.diffs[:0]
	d.games = 0
}

// PlayGames plays n games with both agents in learn mode or not.
func (d *Dispatcher) PlayGames(n int, learn bool) error {
	d.learn = learn
	d.agents[0].SetLearnMode(learn)
	d.agents[1].SetLearnMode(learn)

	for i := d.games + 1; i <= d.games+n; i++ {
		if err := d.PlayGame(); err != nil {
			return errors.Wrapf(err, "game %d", i)
		}
		if i%100 == 0 {
			log.Debug().Int("games", i).Bool("learn", learn).
				Str("agent0", d.agents[0].Name()).Str("agent1", d.agents[1].Name()).
				Msg("games played")
		}
		if d.opts.OnGame != nil {
			d.opts.OnGame(i)
		}
	}
	d.games += n
	return nil
}

// PlayGame plays one game to the end and adds the result to the statistics.
func (d *Dispatcher) PlayGame() error {
	v := d.eng.Variant()
	for _, a := range d.agents {
		a.StartGame(v)
	}
	if err := d.StartGame(v); err != nil {
		return err
	}
	for d.ms.State == StatePlaying {
		if err := d.NextTurn(); err != nil {
			return err
		}
	}
	if err := d.NextTurn(); err != nil {
		return err
	}
	for _, a := range d.agents {
		a.EndGame()
	}

	for i := 0; i < 2; i++ {
		if d.ms.Score[i] > 0 {
			d.won[i]++
		}
		d.points[i] += d.ms.Score[i]
	}
	d.diffs = append(d.diffs, float64(d.ms.Score[0]-d.ms.Score[1]))
	if d.opts.KeepGames {
		d.history = append(d.history, d.game)
	}
	return nil
}

// StartGame resets the match state, records the game and rolls for the
// opening move until the dice differ. The higher die moves first.
func (d *Dispatcher) StartGame(v engine.Variant) error {
	d.ms = NewMatchState(v)
	d.game = nil

	info := &GameInfo{
		Index:        d.ms.Games,
		MatchTo:      d.ms.MatchTo,
		Score:        d.ms.Score,
		Crawford:     d.opts.AutoCrawford && d.ms.MatchTo > 1,
		CrawfordGame: d.ms.Crawford,
		Jacoby:       d.opts.Jacoby && d.ms.MatchTo == 0,
		Winner:       -1,
		Variant:      v,
		CubeUse:      d.ms.CubeUse,
	}
	if err := d.AddMoveRecord(MoveRecord{Type: MoveGameInfo, Info: info}); err != nil {
		return err
	}

	var dice [2]int
	for dice[0] == dice[1] {
		dice[0], dice[1] = d.rng.Roll()
		if d.opts.ShowLog {
			fmt.Fprintf(d.opts.Out, "%s rolls %d, %s rolls %d.\n",
				d.agents[0].Name(), dice[0], d.agents[1].Name(), dice[1])
		}
	}
	player := 0
	if dice[1] > dice[0] {
		player = 1
	}
	if err := d.AddMoveRecord(MoveRecord{Type: MoveSetDice, Player: player, Dice: dice}); err != nil {
		return err
	}
	d.diceRolled()
	return nil
}

func (d *Dispatcher) diceRolled() {
	if d.opts.ShowLog {
		fmt.Fprintf(d.opts.Out, "%c:%s on roll, %d%d\n%s",
			signs[d.ms.Turn], d.agents[d.ms.Turn].Name(), d.ms.Dice[0], d.ms.Dice[1],
			d.ms.Board.Draw(d.ms.Variant.Chequers()))
	}
}

// NextTurn finishes a game whose result is known or lets the computer play
// the next turn.
func (d *Dispatcher) NextTurn() error {
	ms := &d.ms
	if ms.Board.GameStatus(ms.Variant) > 0 || ms.State == StateDropped || ms.State == StateResigned {
		info := d.game[0].Info
		if info.Winner < 0 {
			return errors.Wrap(ErrBadRecord, "finished game without winner")
		}

		var n int
		switch {
		case ms.Jacoby && ms.CubeOwner == -1 && ms.MatchTo == 0:
			n = 1
		case ms.State == StateDropped:
			n = 1
		case ms.State == StateResigned:
			n = ms.Resigned
		default:
			n = ms.Board.GameStatus(ms.Variant)
		}
		n = min(max(n, 1), 3)
		log.Debug().Str("winner", d.agents[info.Winner].Name()).
			Str("result", gameResults[n-1]).Int("points", info.Points).Msg("game over")

		if ms.MatchTo > 0 && d.opts.AutoCrawford {
			ms.PostCrawford = ms.PostCrawford || (ms.Crawford && ms.Score[info.Winner] < ms.MatchTo)
			ms.Crawford = !ms.PostCrawford && !ms.Crawford &&
				ms.Score[info.Winner] == ms.MatchTo-1 && ms.Score[1-info.Winner] != ms.MatchTo-1
		}
		if d.opts.ShowLog {
			d.showScore()
		}
		return nil
	}
	return d.ComputerTurn()
}

// ComputerTurn rolls if needed, plays the best move of the agent on roll
// and passes it to the agents.
func (d *Dispatcher) ComputerTurn() error {
	ms := &d.ms
	if ms.State != StatePlaying {
		return ErrNotPlaying
	}
	if ms.Resigned != 0 || ms.Doubled {
		return ErrUnsupported
	}

	if ms.Dice[0] == 0 {
		ms.Dice[0], ms.Dice[1] = d.rng.Roll()
		d.diceRolled()
	}

	rec := MoveRecord{Type: MoveNormal, Player: ms.Turn, Dice: ms.Dice, Move: engine.NoMove()}
	ml, err := d.FindAndSaveBestMoves(ms.Board, ms.Dice[0], ms.Dice[1])
	if err != nil {
		return err
	}
	rec.Moves = len(ml.Moves)

	if len(ml.Moves) > 0 {
		best := ml.Moves[0]
		rec.Move, rec.Score = best.Move, best.Score
		if err := d.agents[ms.Move].DoMove(&best); err != nil {
			return errors.Wrapf(err, "agent %s", d.agents[ms.Move].Name())
		}
		if best.Class == engine.ClassOver {
			end := best
			b := engine.BoardFromKey(end.Key)
			b.SwapSides()
			end.Key = b.Key()
			end.Reward.Invert()
			other := d.agents[1-ms.Move]
			if err := other.DoMove(&end); err != nil {
				return errors.Wrapf(err, "agent %s", other.Name())
			}
		}
	}

	d.showAutoMove(rec.Move)
	return d.AddMoveRecord(rec)
}

// FindAndSaveBestMoves generates the moves of the agent on roll for d0-d1
// from b and returns them scored and sorted best first.
func (d *Dispatcher) FindAndSaveBestMoves(b engine.Board, d0, d1 int) (engine.MoveList, error) {
	if d.ms.Move < 0 {
		return engine.MoveList{}, ErrNotPlaying
	}
	ml := b.GenerateMoves(d0, d1, false)
	mover := d.agents[d.ms.Move]
	mover.SetCurrentBoard(d.ms.Board)
	if len(ml.Moves) == 0 {
		return ml, nil
	}
	if err := d.ScoreMoves(mover, &ml); err != nil {
		return ml, err
	}
	ml.Sort()
	return ml, nil
}

// ScoreMoves scores every candidate of ml.
func (d *Dispatcher) ScoreMoves(a agent.Agent, ml *engine.MoveList) error {
	for i := range ml.Moves {
		if err := d.ScoreMove(a, &ml.Moves[i]); err != nil {
			return err
		}
	}
	return nil
}

// ScoreMove evaluates the position after c with the opponent on roll and
// stores the reward and equity for the mover.
func (d *Dispatcher) ScoreMove(a agent.Agent, c *engine.Candidate) error {
	return ScoreCandidate(d.eng, a, c)
}

func (d *Dispatcher) showAutoMove(m engine.Move) {
	if !d.opts.ShowLog {
		return
	}
	turn := d.ms.Turn
	if m.Len() == 0 {
		fmt.Fprintf(d.opts.Out, "%c:%s cannot move.\n", signs[turn], d.agents[turn].Name())
		return
	}
	fmt.Fprintf(d.opts.Out, "%c:%s moves %s.\n", signs[turn], d.agents[turn].Name(), d.ms.Board.FormatMove(m))
}

func (d *Dispatcher) showScore() {
	ms := &d.ms
	games := "games"
	if ms.Games == 1 {
		games = "game"
	}
	fmt.Fprintf(d.opts.Out, "The score (after %d %s) is: %s %d, %s %d",
		ms.Games, games, d.agents[0].Name(), ms.Score[0], d.agents[1].Name(), ms.Score[1])
	switch {
	case ms.MatchTo > 0:
		fmt.Fprintf(d.opts.Out, " (match to %d points).\n", ms.MatchTo)
	case ms.Jacoby:
		fmt.Fprintln(d.opts.Out, " (money session, with Jacoby rule).")
	default:
		fmt.Fprintln(d.opts.Out, " (money session, without Jacoby rule).")
	}
}

package dispatch

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
)

func TestClassifySkill(t *testing.T) {
	tests := []struct {
		loss float32
		want Skill
		abbr string
	}{
		{0.2, SkillVeryBad, "??"},
		{0.12, SkillVeryBad, "??"},
		{0.07, SkillBad, "?"},
		{0.03, SkillDoubtful, "?!"},
		{0.01, SkillNone, ""},
		{0, SkillNone, ""},
	}
	for _, tt := range tests {
		got := ClassifySkill(tt.loss)
		if got != tt.want || got.Abbr() != tt.abbr {
			t.Errorf("ClassifySkill(%g) = %s %q, want %s", tt.loss, got, got.Abbr(), tt.want)
		}
	}
}

func TestClassifyRating(t *testing.T) {
	tests := []struct {
		epm  float32
		want Rating
	}{
		{0, RatingSupernatural},
		{0.001, RatingSupernatural},
		{0.003, RatingWorldClass},
		{0.01, RatingAdvanced},
		{0.02, RatingCasual},
		{0.03, RatingBeginner},
		{0.04, RatingAwful},
	}
	for _, tt := range tests {
		if got := ClassifyRating(tt.epm); got != tt.want {
			t.Errorf("ClassifyRating(%g) = %s, want %s", tt.epm, got, tt.want)
		}
	}
}

// lastChequer has the side on roll bearing off its last chequer while the
// opponent has all fifteen on its six point.
func lastChequer() engine.Board {
	var b engine.Board
	b[engine.Self][0] = 1
	b[engine.Opponent][5] = 15
	return b
}

func TestEvaluateSideOnRoll(t *testing.T) {
	e := newTestEngine(t)
	a := agent.NewHeuristic(e, t.TempDir())

	r, _, err := Evaluate(e, a, lastChequer())
	if err != nil {
		t.Fatal(err)
	}
	if r[engine.Win] < 0.99 {
		t.Errorf("side on roll wins with %f", r[engine.Win])
	}

	r, _, err = Evaluate(e, a, lastChequer().Swapped())
	if err != nil {
		t.Fatal(err)
	}
	if r[engine.Win] > 0.01 {
		t.Errorf("side not on roll wins with %f", 1-r[engine.Win])
	}
}

func TestRankMovesSorted(t *testing.T) {
	e := newTestEngine(t)
	a := agent.NewHeuristic(e, t.TempDir())
	ml, err := RankMoves(e, a, engine.InitBoard(engine.Standard), 6, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(ml.Moves) == 0 {
		t.Fatal("no moves for 65")
	}
	for i := 1; i < len(ml.Moves); i++ {
		if ml.Moves[i].Better(&ml.Moves[i-1]) {
			t.Errorf("move %d ranks before move %d", i, i-1)
		}
	}
}

func openingGame() *match.Game {
	g := match.NewGame(engine.Standard, 1, 0, 0, false)
	g.AddRoll(0, 3, 1)
	g.AddMove(0, mv(7, 4, 5, 4))
	g.AddRoll(1, 5, 2)
	g.AddMove(1, mv(12, 10, 12, 7))
	return g
}

func TestAnalyzeGame(t *testing.T) {
	e := newTestEngine(t)
	a := agent.NewHeuristic(e, t.TempDir())

	ga, err := AnalyzeGame(e, a, openingGame())
	if err != nil {
		t.Fatal(err)
	}
	if len(ga.Moves) != 2 {
		t.Fatalf("%d moves analysed", len(ga.Moves))
	}
	for i, m := range ga.Moves {
		if m.Player != i || m.Forced || m.Loss < 0 || m.Equity > m.BestEquity {
			t.Errorf("move %d: %+v", i, m)
		}
		if m.Skill != ClassifySkill(m.Loss) {
			t.Errorf("move %d rated %s for a loss of %f", i, m.Skill, m.Loss)
		}
		if m.Loss == 0 && m.Skill != SkillNone {
			t.Errorf("best move %d rated %s", i, m.Skill)
		}
	}
	for i, p := range ga.Players {
		if p.Moves != 1 || p.ErrorPerMove != ga.Moves[i].Loss || p.Rating != ClassifyRating(p.ErrorPerMove) {
			t.Errorf("player %d: %+v", i, p)
		}
	}
}

func TestAnalyzeGameErrors(t *testing.T) {
	e := newTestEngine(t)
	a := agent.NewHeuristic(e, t.TempDir())

	partial := match.NewGame(engine.Standard, 1, 0, 0, false)
	partial.AddRoll(0, 3, 1)
	partial.AddMove(0, mv(7, 4))

	noRoll := match.NewGame(engine.Standard, 1, 0, 0, false)
	noRoll.AddMove(0, mv(7, 4, 5, 4))

	for name, g := range map[string]*match.Game{"partial move": partial, "no roll": noRoll} {
		if _, err := AnalyzeGame(e, a, g); errors.Cause(err) != ErrBadRecord {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestRolloutBearoff(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	newAgent := func() (agent.Agent, error) { return agent.NewHeuristic(e, dir), nil }

	var calls int
	res, err := Rollout(context.Background(), e, newAgent, lastChequer(),
		RolloutOptions{Trials: 20, Workers: 2}, func(RolloutProgress) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	if res.Trials != 20 || res.Won != 20 || res.GammonsWon != 20 || res.BackgammonsWon != 0 {
		t.Errorf("result %+v", res)
	}
	if res.Reward[engine.Win] != 1 || res.Reward[engine.Equity] != 2 || res.EquityCI != 0 {
		t.Errorf("reward %v, ci %f", res.Reward, res.EquityCI)
	}
	if calls == 0 {
		t.Error("no progress reported")
	}
}

func TestRolloutRepeatable(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	newAgent := func() (agent.Agent, error) {
		return agent.NewRandom(e, dir, engine.NewRNG(5, 7)), nil
	}
	opts := RolloutOptions{Trials: 12, Truncate: 6, Workers: 3, Stream: 40}

	var last RolloutProgress
	r1, err := Rollout(context.Background(), e, newAgent, engine.InitBoard(engine.Standard), opts,
		func(p RolloutProgress) { last = p })
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Rollout(context.Background(), e, newAgent, engine.InitBoard(engine.Standard), opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Trials != 12 || last.Completed != 12 || last.Total != 12 {
		t.Errorf("trials %d, last progress %+v", r1.Trials, last)
	}
	for k := range r1.Reward {
		if math.Abs(float64(r1.Reward[k]-r2.Reward[k])) > 1e-5 {
			t.Errorf("reward %d: %f vs %f", k, r1.Reward[k], r2.Reward[k])
		}
	}
	if r1.Won != r2.Won {
		t.Errorf("won %d vs %d", r1.Won, r2.Won)
	}
}

func TestRolloutErrors(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	newAgent := func() (agent.Agent, error) { return agent.NewHeuristic(e, dir), nil }

	var over engine.Board
	over[engine.Opponent][5] = 15
	if _, err := Rollout(context.Background(), e, newAgent, over, RolloutOptions{Trials: 2}, nil); err == nil {
		t.Error("rollout of a finished game")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Rollout(ctx, e, newAgent, engine.InitBoard(engine.Standard), RolloutOptions{Trials: 4}, nil); errors.Cause(err) != context.Canceled {
		t.Errorf("cancelled rollout: err = %v", err)
	}

	failing := func() (agent.Agent, error) { return nil, errors.New("no agent") }
	if _, err := Rollout(context.Background(), e, failing, engine.InitBoard(engine.Standard), RolloutOptions{Trials: 4}, nil); err == nil {
		t.Error("rollout without agents")
	}
}

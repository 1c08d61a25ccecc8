package dispatch

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/agent"
	"github.com/yourusername/bgtrainer/pkg/engine"
	"github.com/yourusername/bgtrainer/pkg/match"
)

var (
	testEngineOnce sync.Once
	testEngine     *engine.Engine
	testEngineErr  error
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	testEngineOnce.Do(func() {
		opts := engine.DefaultEngineOptions()
		opts.DataDir = filepath.Join("testdata", "missing")
		testEngine, testEngineErr = engine.NewEngine(opts)
	})
	if testEngineErr != nil {
		t.Fatalf("NewEngine: %v", testEngineErr)
	}
	return testEngine
}

func newRandomDispatcher(t *testing.T, base string, opts Options) *Dispatcher {
	t.Helper()
	e := newTestEngine(t)
	a0 := agent.NewRandom(e, base, engine.NewRNG(11, 1))
	a1 := agent.NewRandom(e, base, engine.NewRNG(11, 2))
	d, err := New(e, a0, a1, opts)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// constAgent gives every position the same value.
type constAgent struct {
	agent.Agent
}

func (constAgent) EvaluatePosition(_ engine.Board, c engine.PositionClass) (engine.Reward, engine.PositionClass, error) {
	return engine.Reward{0.5, 0.1, 0, 0.1, 0, 0}, c, nil
}

func (constAgent) SupportsSanityCheck() bool { return false }

func mv(pairs ...int8) engine.Move {
	m := engine.NoMove()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.From[i/2], m.To[i/2] = pairs[i], pairs[i+1]
	}
	return m
}

func TestPlayGameDeterministic(t *testing.T) {
	opts := Options{Stream: 3}
	d1 := newRandomDispatcher(t, t.TempDir(), opts)
	d2 := newRandomDispatcher(t, t.TempDir(), opts)

	for i := 0; i < 3; i++ {
		if err := d1.PlayGame(); err != nil {
			t.Fatal(err)
		}
		if err := d2.PlayGame(); err != nil {
			t.Fatal(err)
		}

		l1, l2 := d1.GameLog(), d2.GameLog()
		if len(l1) != len(l2) {
			t.Fatalf("game %d: %d records vs %d", i, len(l1), len(l2))
		}
		for k := 1; k < len(l1); k++ {
			a, b := l1[k], l2[k]
			if a.Type != b.Type || a.Player != b.Player || a.Dice != b.Dice || a.Move != b.Move || a.Score != b.Score {
				t.Fatalf("game %d record %d: %+v vs %+v", i, k, a, b)
			}
		}
		if *l1[0].Info != *l2[0].Info {
			t.Errorf("game %d results %+v vs %+v", i, *l1[0].Info, *l2[0].Info)
		}

		ms := d1.MatchState()
		info := l1[0].Info
		if ms.State != StateOver || info.Winner < 0 || info.Points < 1 || info.Points > 3 {
			t.Errorf("game %d ended in state %s, winner %d, points %d", i, ms.State, info.Winner, info.Points)
		}
		if ms.Score[info.Winner] != info.Points || ms.Score[1-info.Winner] != 0 {
			t.Errorf("game %d score %v", i, ms.Score)
		}
		if ms.Board.GameStatus(engine.Standard) == 0 {
			t.Errorf("game %d: board is not finished", i)
		}
	}
}

func TestEquityTieBreak(t *testing.T) {
	e := newTestEngine(t)
	a := constAgent{agent.NewHeuristic(e, t.TempDir())}
	d, err := New(e, a, a, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.FindAndSaveBestMoves(engine.InitBoard(engine.Standard), 3, 1); errors.Cause(err) != ErrNotPlaying {
		t.Errorf("scoring before the game: err = %v", err)
	}
	if err := d.StartGame(engine.Standard); err != nil {
		t.Fatal(err)
	}

	ml, err := d.FindAndSaveBestMoves(engine.InitBoard(engine.Standard), 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ml.Moves) < 2 {
		t.Fatalf("%d moves", len(ml.Moves))
	}
	for i := range ml.Moves {
		if ml.Moves[i].Score != ml.Moves[0].Score {
			t.Fatalf("move %d scores %f, move 0 %f", i, ml.Moves[i].Score, ml.Moves[0].Score)
		}
	}

	// Only 24/23 24/21 moves both back chequers.
	want := engine.InitBoard(engine.Standard)
	if err := want.ApplyMove(mv(23, 22, 23, 20), true); err != nil {
		t.Fatal(err)
	}
	best := ml.Moves[0]
	if best.Key != want.Key() || best.BackChequer != 22 {
		t.Errorf("best move %+v leaves its back chequer on %d", best.Move, best.BackChequer)
	}
	for _, c := range ml.Moves[1:] {
		if c.BackChequer <= best.BackChequer {
			t.Errorf("move %+v with back chequer %d sorted after the best", c.Move, c.BackChequer)
		}
	}
}

func TestEquityTieBreakOrder(t *testing.T) {
	ml := engine.MoveList{Moves: []engine.Candidate{
		{Move: mv(12, 9), Score: 0.25, BackChequer: 23},
		{Move: mv(23, 20), Score: 0.25, BackChequer: 22},
		{Move: mv(7, 4), Score: 0.1, BackChequer: 5},
	}}
	ml.Sort()
	if ml.Moves[0].Move != mv(23, 20) || ml.Moves[2].Move != mv(7, 4) {
		t.Errorf("sorted moves %+v", ml.Moves)
	}
}

func TestAddMoveRecordElision(t *testing.T) {
	d := newRandomDispatcher(t, t.TempDir(), Options{})
	if err := d.StartGame(engine.Standard); err != nil {
		t.Fatal(err)
	}
	ms := d.MatchState()
	if ms.State != StatePlaying || ms.Turn != ms.Move || ms.Dice[0] == ms.Dice[1] {
		t.Fatalf("after the opening roll: %+v", ms)
	}
	log := d.GameLog()
	if len(log) != 2 || log[0].Type != MoveGameInfo || log[1].Type != MoveSetDice {
		t.Fatalf("opening log %+v", log)
	}

	p := ms.Turn
	ml := ms.Board.GenerateMoves(ms.Dice[0], ms.Dice[1], false)
	rec := MoveRecord{Type: MoveNormal, Player: p, Dice: ms.Dice, Move: ml.Moves[0].Move}
	if err := d.AddMoveRecord(rec); err != nil {
		t.Fatal(err)
	}

	log = d.GameLog()
	if len(log) != 2 || log[1].Type != MoveNormal {
		t.Errorf("set dice record not replaced: %+v", log)
	}
	ms = d.MatchState()
	if ms.Turn != 1-p || ms.Move != 1-p || ms.Dice != [2]int{} {
		t.Errorf("after the move: turn %d, move %d, dice %v", ms.Turn, ms.Move, ms.Dice)
	}
	if got := ms.BoardFor(p); got != engine.BoardFromKey(ml.Moves[0].Key) {
		t.Errorf("board after the move:\n%s", got)
	}

	// A roll of the other player is kept when a move of the first follows.
	if err := d.AddMoveRecord(MoveRecord{Type: MoveSetDice, Player: 1 - p, Dice: [2]int{6, 6}}); err != nil {
		t.Fatal(err)
	}
	rec = MoveRecord{Type: MoveNormal, Player: p, Dice: [2]int{1, 1}, Move: engine.NoMove()}
	if err := d.AddMoveRecord(rec); err != nil {
		t.Fatal(err)
	}
	if log := d.GameLog(); len(log) != 4 {
		t.Errorf("log has %d records, want 4", len(log))
	}

	for _, bad := range []MoveRecord{
		{Type: MoveNormal, Player: 2, Dice: [2]int{1, 2}},
		{Type: MoveSetDice, Player: 0, Dice: [2]int{0, 7}},
		{Type: MoveType(42)},
		{Type: MoveGameInfo},
	} {
		if err := d.AddMoveRecord(bad); errors.Cause(err) != ErrBadRecord {
			t.Errorf("record %+v: err = %v", bad, err)
		}
	}
}

// bearOffGammon records a game in which player 0 bears off its last chequer
// while the opponent has none off.
func bearOffGammon(t *testing.T, d *Dispatcher, jacoby bool) *GameInfo {
	t.Helper()
	info := &GameInfo{Winner: -1, Jacoby: jacoby, Variant: engine.Standard}
	var b engine.Board
	b[engine.Self][0] = 1
	b[engine.Opponent][5] = 15

	for _, rec := range []MoveRecord{
		{Type: MoveGameInfo, Info: info},
		{Type: MoveSetBoard, Key: b.Key()},
		{Type: MoveSetDice, Player: 0, Dice: [2]int{2, 1}},
		{Type: MoveNormal, Player: 0, Dice: [2]int{2, 1}, Move: mv(0, -1)},
	} {
		if err := d.AddMoveRecord(rec); err != nil {
			t.Fatalf("%s: %v", rec.Type, err)
		}
	}
	return info
}

func TestJacobyRule(t *testing.T) {
	tests := []struct {
		jacoby bool
		points int
	}{
		{false, 2},
		{true, 1},
	}
	for _, tt := range tests {
		d := newRandomDispatcher(t, t.TempDir(), Options{})
		info := bearOffGammon(t, d, tt.jacoby)
		ms := d.MatchState()
		if ms.State != StateOver || info.Winner != 0 || info.Points != tt.points || ms.Score != [2]int{tt.points, 0} {
			t.Errorf("jacoby %v: state %s, winner %d, points %d, score %v", tt.jacoby, ms.State, info.Winner, info.Points, ms.Score)
		}
		if err := d.NextTurn(); err != nil {
			t.Errorf("jacoby %v: NextTurn after the game: %v", tt.jacoby, err)
		}
	}
}

func TestCubeRecords(t *testing.T) {
	d := newRandomDispatcher(t, t.TempDir(), Options{})
	if err := d.ComputerTurn(); errors.Cause(err) != ErrNotPlaying {
		t.Errorf("turn before the game: err = %v", err)
	}
	if err := d.StartGame(engine.Standard); err != nil {
		t.Fatal(err)
	}
	p := d.MatchState().Turn

	if err := d.AddMoveRecord(MoveRecord{Type: MoveDouble, Player: p}); err != nil {
		t.Fatal(err)
	}
	if err := d.ComputerTurn(); errors.Cause(err) != ErrUnsupported {
		t.Errorf("turn after a double: err = %v", err)
	}
	if err := d.AddMoveRecord(MoveRecord{Type: MoveTake, Player: 1 - p}); err != nil {
		t.Fatal(err)
	}
	ms := d.MatchState()
	if ms.Cube != 2 || ms.CubeOwner != 1-p || ms.Doubled || ms.Turn != p {
		t.Errorf("after the take: cube %d owned by %d, doubled %v, turn %d", ms.Cube, ms.CubeOwner, ms.Doubled, ms.Turn)
	}
	if err := d.ComputerTurn(); err != nil {
		t.Errorf("turn after the take: %v", err)
	}

	// Redouble and drop: the doubler wins the value of the cube.
	q := d.MatchState().Turn
	if err := d.AddMoveRecord(MoveRecord{Type: MoveDouble, Player: q}); err != nil {
		t.Fatal(err)
	}
	if err := d.AddMoveRecord(MoveRecord{Type: MoveDrop, Player: 1 - q}); err != nil {
		t.Fatal(err)
	}
	ms = d.MatchState()
	info := d.GameLog()[0].Info
	if ms.State != StateDropped || info.Winner != q || info.Points != 2 || ms.Score[q] != 2 {
		t.Errorf("after the drop: state %s, winner %d, points %d, score %v", ms.State, info.Winner, info.Points, ms.Score)
	}
	if err := d.NextTurn(); err != nil {
		t.Errorf("NextTurn after the drop: %v", err)
	}
}

func TestResignRecord(t *testing.T) {
	d := newRandomDispatcher(t, t.TempDir(), Options{})
	if err := d.StartGame(engine.Standard); err != nil {
		t.Fatal(err)
	}
	p := d.MatchState().Turn
	if err := d.AddMoveRecord(MoveRecord{Type: MoveResign, Player: p, Resigned: 2}); err != nil {
		t.Fatal(err)
	}
	ms := d.MatchState()
	if ms.State != StateResigned || ms.Score[1-p] != 2 {
		t.Errorf("state %s, score %v", ms.State, ms.Score)
	}
}

func TestPlayGamesStatistics(t *testing.T) {
	base := t.TempDir()
	d := newRandomDispatcher(t, base, Options{Stream: 5})

	var seen []int
	d.opts.OnGame = func(n int) { seen = append(seen, n) }
	if err := d.PlayGames(10, false); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 10 || seen[9] != 10 {
		t.Errorf("progress callbacks %v", seen)
	}

	s := d.Statistics()
	if s.Games != 10 || s.Won[0]+s.Won[1] != 10 || s.Points[0]+s.Points[1] < 10 {
		t.Errorf("statistics %+v", s)
	}
	if want := float64(s.Points[0]-s.Points[1]) / 10; math.Abs(s.PPG-want) > 1e-9 {
		t.Errorf("ppg %f, want %f", s.PPG, want)
	}

	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		if err := d.PrintStatistics(&buf); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"Statistics after 10 game(s)", "O:Random: games", "X:Random: games", "ppg"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("statistics lack %q:\n%s", want, buf.String())
		}
	}

	data, err := os.ReadFile(filepath.Join(base, "agents", "random", "Random vs Random.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "0;") {
		t.Errorf("csv log %q", data)
	}

	d.SwapAgents()
	sw := d.Statistics()
	if sw.Won != [2]int{s.Won[1], s.Won[0]} || sw.Points != [2]int{s.Points[1], s.Points[0]} || math.Abs(sw.PPG+s.PPG) > 1e-9 {
		t.Errorf("swapped statistics %+v, before %+v", sw, s)
	}

	d.ResetStatistics()
	if r := d.Statistics(); r.Games != 0 || r.Won != [2]int{} || r.PPG != 0 {
		t.Errorf("statistics after reset %+v", r)
	}
}

func TestExportAndReplay(t *testing.T) {
	d := newRandomDispatcher(t, t.TempDir(), Options{Stream: 9, KeepGames: true})
	if err := d.PlayGames(2, false); err != nil {
		t.Fatal(err)
	}
	m, err := d.Match()
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Games) != 2 {
		t.Fatalf("%d games exported", len(m.Games))
	}

	var buf bytes.Buffer
	if err := match.ExportMAT(&buf, m); err != nil {
		t.Fatal(err)
	}
	imported, err := match.ImportMAT(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported.Games) != 2 {
		t.Fatalf("%d games imported", len(imported.Games))
	}

	for i, g := range imported.Games {
		orig := m.Games[i]
		if g.Winner != orig.Winner || g.Points != orig.Points || g.Moves() != orig.Moves() {
			t.Errorf("game %d: winner %d/%d, points %d/%d, moves %d/%d",
				i, g.Winner, orig.Winner, g.Points, orig.Points, g.Moves(), orig.Moves())
		}
		_, want, err := orig.Positions()
		if err != nil {
			t.Fatal(err)
		}
		_, got, err := g.Positions()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("game %d: imported final position differs", i)
		}

		r := newRandomDispatcher(t, t.TempDir(), Options{})
		if err := r.Replay(g); err != nil {
			t.Fatalf("game %d: Replay: %v", i, err)
		}
		info := r.GameLog()[0].Info
		if info.Winner != orig.Winner || info.Points != orig.Points || r.MatchState().State != StateOver {
			t.Errorf("game %d replayed to winner %d, %d points, state %s", i, info.Winner, info.Points, r.MatchState().State)
		}
	}
}

package match

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

func mv(pairs ...int8) engine.Move {
	m := engine.NoMove()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.From[i/2], m.To[i/2] = pairs[i], pairs[i+1]
	}
	return m
}

// openingGame is 31: 8/5 6/5 answered by 52: 13/11 13/8, then a roll that
// cannot be played, won by player 2.
func openingGame() *Match {
	m := NewMatch("Alice", "Bob", 0)
	g := NewGame(engine.Standard, 1, 0, 0, false)
	g.AddRoll(0, 3, 1)
	g.AddMove(0, mv(7, 4, 5, 4))
	g.AddRoll(1, 5, 2)
	g.AddMove(1, mv(12, 10, 12, 7))
	g.AddRoll(0, 6, 6)
	g.AddMove(0, engine.NoMove())
	g.Finish(1, 1, ResultSingle)
	m.Games = append(m.Games, g)
	return m
}

func sameActions(t *testing.T, got, want []Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%d actions, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNewGame(t *testing.T) {
	g := NewGame(engine.Nackgammon, 3, 2, 1, true)
	if g.Number != 3 || g.Score1 != 2 || g.Score2 != 1 || !g.Crawford {
		t.Errorf("game header %+v", g)
	}
	if g.CubeValue != 1 || g.CubeOwner != -1 || g.Winner != -1 || g.Result != ResultInProgress {
		t.Errorf("cube %d owner %d winner %d result %d", g.CubeValue, g.CubeOwner, g.Winner, g.Result)
	}
	if g.InitialBoard != engine.InitBoard(engine.Nackgammon) {
		t.Error("initial board is not the nackgammon start")
	}
}

func TestParseMove(t *testing.T) {
	tests := []struct {
		in   string
		want engine.Move
	}{
		{"8/5 6/5", mv(7, 4, 5, 4)},
		{"13/7(2)", mv(12, 6, 12, 6)},
		{"24/18*/14", mv(23, 17, 17, 13)},
		{"bar/22", mv(24, 21)},
		{"6/off 5/off", mv(5, -1, 4, -1)},
		{"Bar/20* 6/2(3)", mv(24, 19, 5, 1, 5, 1, 5, 1)},
	}
	for _, tt := range tests {
		got, err := ParseMove(tt.in)
		if err != nil {
			t.Errorf("ParseMove(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMove(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "8", "25/20", "8/5(5)", "8/x", "6/5(2) 4/3(3)"} {
		if _, err := ParseMove(bad); err == nil {
			t.Errorf("ParseMove(%q) succeeded", bad)
		}
	}
}

func TestPositions(t *testing.T) {
	g := openingGame().Games[0]
	positions, final, err := g.Positions()
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 3 {
		t.Fatalf("%d positions", len(positions))
	}
	if positions[1].Player != 1 || positions[1].Dice != [2]int{5, 2} {
		t.Errorf("second position %+v", positions[1])
	}
	// Player 2 sees player 1's new five point as its 20 point.
	if positions[1].Board[engine.Opponent][4] != 2 {
		t.Error("second position is not seen from player 2")
	}

	if final[engine.Self][4] != 2 || final[engine.Self][5] != 4 || final[engine.Self][7] != 2 {
		t.Errorf("player 1 chequers %v", final[engine.Self])
	}
	if final[engine.Opponent][12] != 3 || final[engine.Opponent][10] != 1 || final[engine.Opponent][7] != 4 {
		t.Errorf("player 2 chequers %v", final[engine.Opponent])
	}

	g.AddRoll(1, 2, 1)
	g.AddMove(1, mv(2, 0))
	if _, _, err := g.Positions(); errors.Cause(err) != ErrIllegalAction {
		t.Errorf("move from an empty point: err = %v", err)
	}
}

func TestMATRoundTrip(t *testing.T) {
	m := openingGame()
	m.Event = "checkpoint"

	var buf bytes.Buffer
	if err := ExportMAT(&buf, m); err != nil {
		t.Fatalf("ExportMAT: %v", err)
	}
	out := buf.String()
	for _, s := range []string{"0 point match", "31: 8/5 6/5", "52: 13/11 13/8", "66:", "Wins 1 point"} {
		if !strings.Contains(out, s) {
			t.Errorf("output lacks %q:\n%s", s, out)
		}
	}

	got, err := ImportMAT(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ImportMAT: %v", err)
	}
	if got.Player1 != "Alice" || got.Player2 != "Bob" || got.Event != "checkpoint" {
		t.Errorf("header %q %q %q", got.Player1, got.Player2, got.Event)
	}
	if len(got.Games) != 1 {
		t.Fatalf("%d games", len(got.Games))
	}
	g := got.Games[0]
	sameActions(t, g.Actions, m.Games[0].Actions)
	if g.Winner != 1 || g.Points != 1 {
		t.Errorf("winner %d with %d points", g.Winner, g.Points)
	}
}

func TestImportMATCube(t *testing.T) {
	text := ` ; [Player 1 "Alice"]
 ; [Player 2 "Bob"]
 ; [Variation "nackgammon"]

 7 point match

 Game 1
 Alice : 0                          Bob : 0
  1)                               43: 24/20 13/10
  2) Doubles => 2                  Takes
  3) Doubles => 4                  Drops
      Wins 2 points
`
	m, err := ImportMAT(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if m.MatchLength != 7 || m.Variant != engine.Nackgammon {
		t.Errorf("length %d variant %s", m.MatchLength, m.Variant)
	}
	g := m.Games[0]
	want := []Action{
		{Type: ActionRoll, Player: 1, Dice: [2]int{4, 3}},
		{Type: ActionMove, Player: 1, Move: mv(23, 19, 12, 9)},
		{Type: ActionDouble, Player: 0, Value: 2},
		{Type: ActionTake, Player: 1},
		{Type: ActionDouble, Player: 0, Value: 4},
		{Type: ActionPass, Player: 1},
	}
	sameActions(t, g.Actions, want)
	if g.Winner != 0 || g.Points != 2 || g.Result != ResultDrop {
		t.Errorf("winner %d points %d result %d", g.Winner, g.Points, g.Result)
	}
	if g.CubeOwner != 1 {
		t.Errorf("cube owner %d", g.CubeOwner)
	}
}

func TestImportMATBadRoll(t *testing.T) {
	text := " Game 1\n Alice : 0      Bob : 0\n  1) 71: 8/1\n"
	if _, err := ImportMAT(strings.NewReader(text)); errors.Cause(err) != ErrIllegalAction {
		t.Errorf("err = %v", err)
	}
}

func TestSGFRoundTrip(t *testing.T) {
	m := openingGame()
	m.Date = "2026-01-15"

	var buf bytes.Buffer
	if err := ExportSGF(&buf, m); err != nil {
		t.Fatalf("ExportSGF: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "GM[6]") || !strings.Contains(out, "RE[B+1]") {
		t.Errorf("missing SGF markers:\n%s", out)
	}

	got, err := ImportSGF(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ImportSGF: %v", err)
	}
	if got.Player1 != "Alice" || got.Player2 != "Bob" || got.Date != "2026-01-15" {
		t.Errorf("header %q %q %q", got.Player1, got.Player2, got.Date)
	}
	if len(got.Games) != 1 {
		t.Fatalf("%d games", len(got.Games))
	}
	sameActions(t, got.Games[0].Actions, m.Games[0].Actions)
	if got.Games[0].Winner != 1 || got.Games[0].Points != 1 {
		t.Errorf("winner %d with %d points", got.Games[0].Winner, got.Games[0].Points)
	}
}

func TestSGFLetters(t *testing.T) {
	for player := 0; player < 2; player++ {
		for slot := -1; slot <= engine.Bar; slot++ {
			got, err := sgfSlot(sgfLetter(slot, player), player)
			if err != nil || got != slot {
				t.Errorf("player %d slot %d -> %c -> %d (%v)", player, slot, sgfLetter(slot, player), got, err)
			}
		}
	}
	// Both players' letters name the same physical point.
	if sgfLetter(5, 0) != sgfLetter(18, 1) {
		t.Errorf("white six point %c, black 19 point %c", sgfLetter(5, 0), sgfLetter(18, 1))
	}
}

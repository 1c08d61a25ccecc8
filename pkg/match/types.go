// Package match records backgammon games and reads and writes them as
// MAT (Jellyfish) and SGF files. Moves are stored from the mover's point of
// view: slot 0 is the mover's ace point, 24 the bar and -1 off.
package match

import (
	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// ErrIllegalAction is returned when a recorded action cannot be replayed.
var ErrIllegalAction = errors.New("illegal action in game record")

// Match is a series of games between two players.
type Match struct {
	Player1     string // first column, dispatcher side 0
	Player2     string // second column, dispatcher side 1
	MatchLength int    // 0 for money sessions
	Variant     engine.Variant
	Date        string
	Event       string
	Place       string
	Annotator   string
	Comment     string
	Games       []*Game
}

// Game is one game of a match.
type Game struct {
	Number       int // 1-based
	Score1       int // player 1 score before the game
	Score2       int
	Crawford     bool
	Jacoby       bool
	InitialBoard engine.Board // player 0 on roll (side 1)
	CubeValue    int
	CubeOwner    int // -1 centred
	Actions      []Action
	Winner       int // -1 while unfinished
	Points       int
	Result       GameResult
}

// ActionType is the kind of a recorded action.
type ActionType int

const (
	ActionRoll ActionType = iota
	ActionMove
	ActionDouble
	ActionTake
	ActionPass
	ActionResign
)

var actionNames = [...]string{"roll", "move", "double", "take", "pass", "resign"}

func (t ActionType) String() string {
	if t < 0 || int(t) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[t]
}

// Action is one roll, move or cube action.
type Action struct {
	Type   ActionType
	Player int
	Dice   [2]int      // ActionRoll
	Move   engine.Move // ActionMove; NoMove when the roll could not be played
	Value  int         // cube value for ActionDouble, points for ActionResign
}

// GameResult is how a game ended.
type GameResult int

const (
	ResultSingle GameResult = iota
	ResultGammon
	ResultBackgammon
	ResultResign
	ResultDrop
	ResultInProgress
)

// ResultFromStatus maps a board game status (1 single, 2 gammon,
// 3 backgammon) to a result.
func ResultFromStatus(n int) GameResult {
	switch n {
	case 2:
		return ResultGammon
	case 3:
		return ResultBackgammon
	}
	return ResultSingle
}

// NewMatch creates an empty match of standard backgammon.
func NewMatch(player1, player2 string, matchLength int) *Match {
	return &Match{
		Player1:     player1,
		Player2:     player2,
		MatchLength: matchLength,
		Variant:     engine.Standard,
		Games:       make([]*Game, 0),
	}
}

// NewGame creates a game from the starting position of variant v.
func NewGame(v engine.Variant, number, score1, score2 int, crawford bool) *Game {
	return &Game{
		Number:       number,
		Score1:       score1,
		Score2:       score2,
		Crawford:     crawford,
		InitialBoard: engine.InitBoard(v),
		CubeValue:    1,
		CubeOwner:    -1,
		Actions:      make([]Action, 0),
		Winner:       -1,
		Result:       ResultInProgress,
	}
}

// AddRoll records a dice roll.
func (g *Game) AddRoll(player, die1, die2 int) {
	g.Actions = append(g.Actions, Action{Type: ActionRoll, Player: player, Dice: [2]int{die1, die2}})
}

// AddMove records the move played with the last roll.
func (g *Game) AddMove(player int, move engine.Move) {
	g.Actions = append(g.Actions, Action{Type: ActionMove, Player: player, Move: move})
}

// AddDouble records a double to value.
func (g *Game) AddDouble(player, value int) {
	g.Actions = append(g.Actions, Action{Type: ActionDouble, Player: player, Value: value})
}

// AddTake records a take; the taker owns the cube.
func (g *Game) AddTake(player int) {
	g.Actions = append(g.Actions, Action{Type: ActionTake, Player: player})
}

// AddPass records a dropped double; the other player wins.
func (g *Game) AddPass(player int) {
	g.Actions = append(g.Actions, Action{Type: ActionPass, Player: player})
}

// AddResign records a resignation worth points.
func (g *Game) AddResign(player, points int) {
	g.Actions = append(g.Actions, Action{Type: ActionResign, Player: player, Value: points})
}

// Finish sets the winner and the points won.
func (g *Game) Finish(winner, points int, result GameResult) {
	g.Winner = winner
	g.Points = points
	g.Result = result
}

// Moves returns the number of move actions.
func (g *Game) Moves() int {
	n := 0
	for _, a := range g.Actions {
		if a.Type == ActionMove {
			n++
		}
	}
	return n
}

// Position is the board before a move, with the player to move on roll.
type Position struct {
	Player int
	Dice   [2]int
	Board  engine.Board
	Move   engine.Move
}

// Positions replays the moves of g from its initial board. The final board
// is returned seen from player 0.
func (g *Game) Positions() ([]Position, engine.Board, error) {
	b := g.InitialBoard
	onRoll := 0
	var dice [2]int
	var out []Position

	for i, a := range g.Actions {
		switch a.Type {
		case ActionRoll:
			dice = a.Dice
		case ActionMove:
			if a.Player < 0 || a.Player > 1 {
				return nil, b, errors.Wrapf(ErrIllegalAction, "action %d: player %d", i, a.Player)
			}
			if a.Player != onRoll {
				b.SwapSides()
				onRoll = a.Player
			}
			out = append(out, Position{Player: a.Player, Dice: dice, Board: b, Move: a.Move})
			if err := b.ApplyMove(a.Move, false); err != nil {
				return nil, b, errors.Wrapf(ErrIllegalAction, "action %d: %v", i, err)
			}
			b.SwapSides()
			onRoll = 1 - a.Player
		}
	}
	if onRoll != 0 {
		b.SwapSides()
	}
	return out, b, nil
}

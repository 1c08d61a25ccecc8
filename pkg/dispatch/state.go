package dispatch

import "github.com/yourusername/bgtrainer/pkg/engine"

// GameState is the phase of the current game.
type GameState int

const (
	StateNone GameState = iota
	StatePlaying
	StateOver
	StateResigned
	StateDropped
)

var gameStateNames = [...]string{"none", "playing", "over", "resigned", "dropped"}

func (s GameState) String() string {
	if s < 0 || int(s) >= len(gameStateNames) {
		return "unknown"
	}
	return gameStateNames[s]
}

// MatchState is the position and score of the game being played. Board is
// seen from Move: side 1 is the player who moves or moved last.
type MatchState struct {
	Board               engine.Board
	Dice                [2]int // 0 when not rolled
	Turn                int    // player to act, -1 before the first roll
	Move                int    // player the board is oriented to
	Resigned            int
	ResignationDeclined int
	Doubled             bool
	Games               int
	CubeOwner           int // -1 centred
	Crawford            bool
	PostCrawford        bool
	MatchTo             int
	Score               [2]int
	Cube                int
	Beavers             int
	Variant             engine.Variant
	CubeUse             bool
	Jacoby              bool
	State               GameState
}

// NewMatchState returns an empty state with a centred cube at 1.
func NewMatchState(v engine.Variant) MatchState {
	return MatchState{
		Board:     engine.InitBoard(v),
		Turn:      -1,
		Move:      -1,
		CubeOwner: -1,
		Cube:      1,
		Variant:   v,
	}
}

// BoardFor returns the board seen from player.
func (ms *MatchState) BoardFor(player int) engine.Board {
	if ms.Move >= 0 && ms.Move != player {
		return ms.Board.Swapped()
	}
	return ms.Board
}

package dispatch

import (
	"github.com/yourusername/bgtrainer/internal/positionid"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// MoveType is the kind of a move record.
type MoveType int

const (
	MoveGameInfo MoveType = iota
	MoveDouble
	MoveTake
	MoveDrop
	MoveNormal
	MoveResign
	MoveSetBoard
	MoveSetDice
	MoveSetCubeVal
	MoveSetCubePos
	numMoveTypes
)

var moveTypeNames = [...]string{
	"gameinfo", "double", "take", "drop", "normal", "resign",
	"setboard", "setdice", "setcubeval", "setcubepos",
}

func (t MoveType) String() string {
	if t < 0 || t >= numMoveTypes {
		return "unknown"
	}
	return moveTypeNames[t]
}

// GameInfo starts a game.
type GameInfo struct {
	Index        int // game number, from 0
	MatchTo      int // 0 for money play
	Score        [2]int
	Crawford     bool // the Crawford rule is used
	CrawfordGame bool // this is the Crawford game
	Jacoby       bool
	Winner       int // -1 while running
	Points       int
	Resigned     bool
	AutoDoubles  int
	Variant      engine.Variant
	CubeUse      bool
}

// MoveRecord is one entry of a game log. Which fields matter depends on
// Type: Dice for SetDice and Normal, Move for Normal, Info for GameInfo,
// Key for SetBoard, Cube for SetCubeVal, CubeOwner for SetCubePos and
// Resigned for Resign.
type MoveRecord struct {
	Type      MoveType
	Player    int
	Dice      [2]int
	Move      engine.Move
	Moves     int     // legal moves of the roll
	Score     float32 // equity of the chosen move
	Info      *GameInfo
	Key       positionid.Key
	Cube      int
	CubeOwner int
	Resigned  int
}

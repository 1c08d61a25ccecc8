// Package engine holds the board, move generation, position classes and
// the shared evaluation context used by agents and the game dispatcher.
package engine

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

// Board holds the chequer counts of both sides: [side][slot], slots 0-23
// are points counted from the side's own home, slot 24 is the bar.
// Side 1 is the side on roll. Point i of one side is point 23-i of the
// other.
type Board positionid.Board

// Sides and slots
const (
	Opponent = 0
	Self     = 1
	Bar      = 24
)

// Variant selects the starting layout and the number of chequers.
type Variant int

const (
	Standard Variant = iota
	Nackgammon
	Hypergammon1
	Hypergammon2
	Hypergammon3
)

var variantChequers = [...]int{15, 15, 1, 2, 3}

var variantNames = [...]string{"standard", "nackgammon", "hypergammon1", "hypergammon2", "hypergammon3"}

// ErrUnknownVariant is returned by ParseVariant.
var ErrUnknownVariant = errors.New("unknown variant")

// Chequers returns the number of chequers each side starts with.
func (v Variant) Chequers() int {
	if v < Standard || v > Hypergammon3 {
		return 15
	}
	return variantChequers[v]
}

// IsHypergammon reports whether v is one of the hypergammon variants.
func (v Variant) IsHypergammon() bool {
	return v >= Hypergammon1 && v <= Hypergammon3
}

func (v Variant) String() string {
	if v < Standard || v > Hypergammon3 {
		return "unknown"
	}
	return variantNames[v]
}

// ParseVariant parses a variant name as printed by String.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if strings.EqualFold(s, name) {
			return Variant(i), nil
		}
	}
	return Standard, errors.Wrap(ErrUnknownVariant, s)
}

// InitBoard returns the starting position of a variant. Both sides get the
// same layout.
func InitBoard(v Variant) Board {
	var b Board
	for side := 0; side < 2; side++ {
		switch v {
		case Standard:
			b[side][5] = 5
			b[side][7] = 3
			b[side][12] = 5
			b[side][23] = 2
		case Nackgammon:
			b[side][5] = 4
			b[side][7] = 3
			b[side][12] = 4
			b[side][22] = 2
			b[side][23] = 2
		case Hypergammon1, Hypergammon2, Hypergammon3:
			for j := 0; j < v.Chequers(); j++ {
				b[side][23-j] = 1
			}
		}
	}
	return b
}

// SwapSides exchanges the two sides in place, handing the roll over.
func (b *Board) SwapSides() {
	b[0], b[1] = b[1], b[0]
}

// Swapped returns a copy of b with the sides exchanged.
func (b Board) Swapped() Board {
	b.SwapSides()
	return b
}

// Key returns the canonical position key.
func (b Board) Key() positionid.Key {
	return positionid.MakeKey(positionid.Board(b))
}

// BoardFromKey decodes a position key.
func BoardFromKey(key positionid.Key) Board {
	return Board(positionid.BoardFromKey(key))
}

// ID returns the 14 character gnubg position ID.
func (b Board) ID() string {
	return positionid.PositionID(positionid.Board(b))
}

// BoardFromID decodes a gnubg position ID.
func BoardFromID(id string) (Board, error) {
	pb, err := positionid.BoardFromPositionID(id)
	return Board(pb), err
}

// Check validates the board for a variant.
func (b Board) Check(v Variant) error {
	return positionid.CheckPosition(positionid.Board(b), v.Chequers())
}

// PipCount returns the pip counts of side 0 and side 1.
func (b Board) PipCount() [2]int {
	var pips [2]int
	for side := 0; side < 2; side++ {
		for i := 0; i < 25; i++ {
			pips[side] += int(b[side][i]) * (i + 1)
		}
	}
	return pips
}

// ChequersCount returns the chequers of side still in play.
func (b Board) ChequersCount(side int) int {
	n := 0
	for _, c := range b[side] {
		n += int(c)
	}
	return n
}

// BackChequer returns the highest occupied slot of side, or -1 when the
// side has borne off.
func (b Board) BackChequer(side int) int {
	for i := Bar; i >= 0; i-- {
		if b[side][i] > 0 {
			return i
		}
	}
	return -1
}

// GameStatus returns 0 while the game is running, otherwise the number of
// points the result is worth: 1 single, 2 gammon, 3 backgammon.
func (b Board) GameStatus(v Variant) int {
	if ClassifyContact(b) != ClassOver {
		return 0
	}
	r := EvalOver(b, v)
	switch {
	case r[WinBackgammon] > 0 || r[LoseBackgammon] > 0:
		return 3
	case r[WinGammon] > 0 || r[LoseGammon] > 0:
		return 2
	}
	return 1
}

package engine

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

var (
	// ErrInvalidRoll is returned for die values outside 1..6.
	ErrInvalidRoll = errors.New("invalid dice roll")
	// ErrInvalidSource is returned for slots out of range or empty.
	ErrInvalidSource = errors.New("invalid source point")
	// ErrPointMade is returned when the destination holds two or more
	// opponent chequers.
	ErrPointMade = errors.New("point made by the opponent")
)

// Move is up to four sub-moves of the side on roll. Unused slots are -1;
// a destination of -1 bears the chequer off.
type Move struct {
	From [4]int8
	To   [4]int8
}

// NoMove returns a move without sub-moves.
func NoMove() Move {
	return Move{From: [4]int8{-1, -1, -1, -1}, To: [4]int8{-1, -1, -1, -1}}
}

// Len returns the number of sub-moves.
func (m Move) Len() int {
	n := 0
	for n < 4 && m.From[n] >= 0 {
		n++
	}
	return n
}

// Candidate is one legal move together with the position it leads to and,
// once scored, its evaluation.
type Candidate struct {
	Move
	Key         positionid.Key // position after the move, mover still side 1
	Chequers    int            // sub-moves played
	Pips        int
	BackChequer int // mover's highest occupied slot after the move
	Class       PositionClass
	Reward      Reward
	Score       float32
}

// Better reports whether c ranks before o: higher score first, then the
// lower back chequer.
func (c *Candidate) Better(o *Candidate) bool {
	if c.Score != o.Score {
		return c.Score > o.Score
	}
	return c.BackChequer < o.BackChequer
}

// MoveList holds the legal moves of a roll.
type MoveList struct {
	Moves       []Candidate
	MaxChequers int
	MaxPips     int
}

// Sort orders the moves best first.
func (ml *MoveList) Sort() {
	sort.SliceStable(ml.Moves, func(i, j int) bool {
		return ml.Moves[i].Better(&ml.Moves[j])
	})
}

// Best returns the best scored move, or nil when the list is empty.
func (ml *MoveList) Best() *Candidate {
	if len(ml.Moves) == 0 {
		return nil
	}
	best := &ml.Moves[0]
	for i := 1; i < len(ml.Moves); i++ {
		if ml.Moves[i].Better(best) {
			best = &ml.Moves[i]
		}
	}
	return best
}

// ApplySubMove moves one chequer of side 1 from src by roll pips, hitting
// a single opposing chequer on the destination. The die value is only
// checked when checkLegal is set.
func (b *Board) ApplySubMove(src, roll int, checkLegal bool) error {
	dest := src - roll

	if checkLegal && (roll < 1 || roll > 6) {
		return errors.Wrapf(ErrInvalidRoll, "%d", roll)
	}
	if src < 0 || src > Bar || dest > Bar || b[Self][src] < 1 {
		return errors.Wrapf(ErrInvalidSource, "%d", src)
	}
	if dest >= 0 && b[Opponent][23-dest] > 1 {
		return errors.Wrapf(ErrPointMade, "%d/%d", src+1, dest+1)
	}

	b[Self][src]--
	if dest < 0 {
		return nil
	}
	if b[Opponent][23-dest] == 1 {
		b[Self][dest] = 1
		b[Opponent][23-dest] = 0
		b[Opponent][Bar]++
	} else {
		b[Self][dest]++
	}
	return nil
}

// ApplyMove plays all sub-moves of m. The board is left untouched when
// any of them fails.
func (b *Board) ApplyMove(m Move, checkLegal bool) error {
	nb := *b
	for i := 0; i < 4 && m.From[i] >= 0; i++ {
		if err := nb.ApplySubMove(int(m.From[i]), int(m.From[i]-m.To[i]), checkLegal); err != nil {
			return err
		}
	}
	*b = nb
	return nil
}

// legalMove reports whether side 1 may move a chequer from src by roll.
// Bearing off needs all chequers home and either an exact roll or the
// rearmost chequer.
func (b *Board) legalMove(src, roll int) bool {
	dest := src - roll
	if dest >= 0 {
		return b[Opponent][23-dest] < 2
	}

	back := 0
	for i := Bar; i > 0; i-- {
		if b[Self][i] > 0 {
			back = i
			break
		}
	}
	return back <= 5 && (src == back || dest == -1)
}

// GenerateMoves lists the legal moves of side 1 for the roll d0-d1.
// Only moves playing the most chequers and pips are kept unless partial is
// set, in which case every reachable position is listed. Moves leading
// to the same position are merged.
func (b Board) GenerateMoves(d0, d1 int, partial bool) MoveList {
	g := generator{partial: partial}
	g.roll = [4]int{d0, d1, 0, 0}
	if d0 == d1 {
		g.roll[2], g.roll[3] = d0, d0
	}
	for i := range g.moves {
		g.moves[i] = -1
	}
	g.sub(b, 0, 23, 0)

	if d0 != d1 {
		g.roll[0], g.roll[1] = d1, d0
		for i := range g.moves {
			g.moves[i] = -1
		}
		g.sub(b, 0, 23, 0)
	}
	return g.ml
}

type generator struct {
	ml      MoveList
	roll    [4]int
	moves   [8]int
	partial bool
}

// sub tries every sub-move of the die at depth and recurses. It returns
// true when the die could not be used, telling the caller to save the
// position it has reached.
func (g *generator) sub(b Board, depth, iPip, pips int) bool {
	if depth > 3 || g.roll[depth] == 0 {
		return true
	}
	roll := g.roll[depth]

	if b[Self][Bar] > 0 {
		if b[Opponent][roll-1] >= 2 {
			return true
		}
		g.moves[depth*2] = Bar
		g.moves[depth*2+1] = Bar - roll
		for i := depth*2 + 2; i < 8; i++ {
			g.moves[i] = -1
		}

		nb := b
		_ = nb.ApplySubMove(Bar, roll, true)
		if g.sub(nb, depth+1, 23, pips+roll) {
			g.save(nb, depth+1, pips+roll)
		}
		return g.partial
	}

	used := false
	for i := iPip; i >= 0; i-- {
		if b[Self][i] == 0 || !b.legalMove(i, roll) {
			continue
		}
		g.moves[depth*2] = i
		g.moves[depth*2+1] = max(i-roll, -1)
		for k := depth*2 + 2; k < 8; k++ {
			g.moves[k] = -1
		}

		nb := b
		_ = nb.ApplySubMove(i, roll, true)

		next := 23
		if g.roll[0] == g.roll[1] {
			next = i
		}
		if g.sub(nb, depth+1, next, pips+roll) {
			g.save(nb, depth+1, pips+roll)
		}
		used = true
	}
	return !used || g.partial
}

func (g *generator) save(b Board, chequers, pips int) {
	ml := &g.ml
	if g.partial {
		if chequers > ml.MaxChequers {
			ml.MaxChequers = chequers
		}
		if pips > ml.MaxPips {
			ml.MaxPips = pips
		}
	} else {
		if chequers < ml.MaxChequers || pips < ml.MaxPips {
			return
		}
		if chequers > ml.MaxChequers || pips > ml.MaxPips {
			ml.Moves = ml.Moves[:0]
		}
		ml.MaxChequers = chequers
		ml.MaxPips = pips
	}

	m := NoMove()
	for i := 0; i < chequers; i++ {
		m.From[i] = int8(g.moves[i*2])
		m.To[i] = int8(g.moves[i*2+1])
	}
	key := b.Key()

	for i := range ml.Moves {
		c := &ml.Moves[i]
		if c.Key != key {
			continue
		}
		if chequers > c.Chequers || pips > c.Pips {
			c.Move = m
			c.Chequers = chequers
			c.Pips = pips
		}
		return
	}

	ml.Moves = append(ml.Moves, Candidate{
		Move:        m,
		Key:         key,
		Chequers:    chequers,
		Pips:        pips,
		BackChequer: b.BackChequer(Self),
	})
}

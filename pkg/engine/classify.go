package engine

// PositionClass selects the evaluator of a position. The order matters:
// classes up to ClassBearoffTS are evaluated exactly.
type PositionClass int

const (
	ClassOver PositionClass = iota
	ClassHypergammon1
	ClassHypergammon2
	ClassHypergammon3
	ClassBearoff2
	ClassBearoffTS
	ClassBearoff1
	ClassBearoffOS
	ClassRace
	ClassCrashed
	ClassContact
	NumClasses
)

var classNames = [...]string{
	"over", "hypergammon1", "hypergammon2", "hypergammon3",
	"bearoff2", "bearoff-ts", "bearoff1", "bearoff-os",
	"race", "crashed", "contact",
}

func (c PositionClass) String() string {
	if c < 0 || c >= NumClasses {
		return "unknown"
	}
	return classNames[c]
}

// IsExact reports whether positions of the class are evaluated without
// error, from tables or closed form.
func (c PositionClass) IsExact() bool {
	return c <= ClassBearoffTS
}

// IsBearoff reports whether the class is read from a bearoff database.
func (c PositionClass) IsBearoff() bool {
	return c >= ClassHypergammon1 && c <= ClassBearoffOS
}

// crashedChequers is the chequer count at or below which a side counts as
// crashed, with allowance for stacks on its two deepest points.
const crashedChequers = 6

// ClassifyContact separates finished games, races, crashed and contact
// positions without consulting bearoff tables.
func ClassifyContact(b Board) PositionClass {
	back, oppBack := b.BackChequer(Self), b.BackChequer(Opponent)
	if back < 0 || oppBack < 0 {
		return ClassOver
	}
	if back+oppBack <= 22 {
		return ClassRace
	}

	for side := 0; side < 2; side++ {
		s := &b[side]
		tot := 0
		for _, n := range s {
			tot += int(n)
		}
		if tot <= crashedChequers {
			return ClassCrashed
		}
		if s[0] > 1 {
			if tot <= crashedChequers+int(s[0]) {
				return ClassCrashed
			}
			if s[1] > 1 && 1+tot-int(s[0]+s[1]) <= crashedChequers {
				return ClassCrashed
			}
		} else if tot <= crashedChequers+int(s[1])-1 {
			return ClassCrashed
		}
	}
	return ClassContact
}

// Classify returns the class of b under the engine's variant. Contact is
// decided before any bearoff table is asked; the tables are then tried
// in the order two-sided, large two-sided, one-sided, large one-sided.
func (e *Engine) Classify(b Board) PositionClass {
	c := ClassifyContact(b)
	if c == ClassOver {
		return c
	}
	if e.variant.IsHypergammon() {
		return ClassHypergammon1 + PositionClass(e.variant-Hypergammon1)
	}
	if c != ClassRace {
		return c
	}

	switch pb := b.pb(); {
	case e.bearoff2.Contains(pb):
		return ClassBearoff2
	case e.bearoffTS.Contains(pb):
		return ClassBearoffTS
	case e.bearoff1.Contains(pb):
		return ClassBearoff1
	case e.bearoffOS.Contains(pb):
		return ClassBearoffOS
	}
	return ClassRace
}

// EvalOver scores a finished game for side 1. The loser is gammoned when
// none of its chequers are off and backgammoned when one of them is still
// in the winner's home board or on the bar.
func EvalOver(b Board, v Variant) Reward {
	var r Reward
	n := v.Chequers()

	switch {
	case b.BackChequer(Opponent) < 0:
		if b.ChequersCount(Self) == n {
			r[LoseGammon] = 1
			if b.BackChequer(Self) >= 18 {
				r[LoseBackgammon] = 1
			}
		}
	case b.BackChequer(Self) < 0:
		r[Win] = 1
		if b.ChequersCount(Opponent) == n {
			r[WinGammon] = 1
			if b.BackChequer(Opponent) >= 18 {
				r[WinBackgammon] = 1
			}
		}
	}
	return r
}

// EvalOver scores a finished game under the engine's variant.
func (e *Engine) EvalOver(b Board) Reward {
	return EvalOver(b, e.variant)
}

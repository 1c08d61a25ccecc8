package engine

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Reward indices
const (
	Win = iota
	WinGammon
	WinBackgammon
	LoseGammon
	LoseBackgammon
	Equity
	NumRewards
)

// NumOutputs is the number of probabilities in a Reward; the equity is
// derived from them.
const NumOutputs = Equity

// Reward holds the outcome probabilities of a position for side 1 and a
// scalar equity.
type Reward [NumRewards]float32

// RewardFromOutputs builds a Reward from five probabilities.
func RewardFromOutputs(out [NumOutputs]float32) Reward {
	var r Reward
	copy(r[:NumOutputs], out[:])
	return r
}

// Utility is the money equity of the probabilities.
func (r *Reward) Utility() float32 {
	return 2*r[Win] - 1 + (r[WinGammon] - r[LoseGammon]) + (r[WinBackgammon] - r[LoseBackgammon])
}

// Invert turns r into the opponent's point of view.
func (r *Reward) Invert() {
	r[Win] = 1 - r[Win]
	r[WinGammon], r[LoseGammon] = r[LoseGammon], r[WinGammon]
	r[WinBackgammon], r[LoseBackgammon] = r[LoseBackgammon], r[WinBackgammon]
	r[Equity] = -r[Equity]
}

// Inverted returns the opponent's view of r.
func (r Reward) Inverted() Reward {
	r.Invert()
	return r
}

// Clamp limits every component to [0, 1].
func (r *Reward) Clamp() {
	for i := range r {
		r[i] = math32.Max(0, math32.Min(1, r[i]))
	}
}

// Add returns r + o.
func (r Reward) Add(o Reward) Reward {
	for i := range r {
		r[i] += o[i]
	}
	return r
}

// Sub returns r - o.
func (r Reward) Sub(o Reward) Reward {
	for i := range r {
		r[i] -= o[i]
	}
	return r
}

// Scale returns r * f.
func (r Reward) Scale(f float32) Reward {
	for i := range r {
		r[i] *= f
	}
	return r
}

func (r Reward) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f %.4f %.4f (%+.4f)",
		r[Win], r[WinGammon], r[WinBackgammon], r[LoseGammon], r[LoseBackgammon], r[Equity])
}

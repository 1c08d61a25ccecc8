package engine

import (
	"github.com/chewxy/math32"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

// noiseFloor is the smallest gammon or backgammon chance kept by SanityCheck.
const noiseFloor = 1 / 10000.0

// SanityCheck corrects an estimated reward for side 1 on roll: it settles
// wins, gammons and backgammons that are certain or impossible in a race,
// forces gammon <= win and backgammon <= gammon on both sides and drops
// chances below 1/10000.
func (e *Engine) SanityCheck(b Board, r *Reward) {
	r[Win] = math32.Max(0, math32.Min(1, r[Win]))

	// Chequers, rearmost chequer and crossovers still to make: to get home,
	// to save the gammon and to save the backgammon.
	var ac, back, cross, gammonCross, bgCross, maxTurns [2]int
	for j := 0; j < 2; j++ {
		gammonCross[j] = 1
		for q := 0; q < 4; q++ {
			n := 0
			for i := q * 6; i < q*6+6; i++ {
				if b[j][i] > 0 {
					back[j] = i
					n += int(b[j][i])
				}
			}
			ac[j] += n
			cross[j] += (q + 1) * n
			gammonCross[j] += q * n
			if q == 3 {
				bgCross[j] = n
			}
		}
		if bar := int(b[j][Bar]); bar > 0 {
			back[j] = Bar
			ac[j] += bar
			cross[j] += 5 * bar
			gammonCross[j] += 4 * bar
			bgCross[j] += 2 * bar
		}
	}

	contact := back[0]+back[1] >= 24
	if !contact {
		for i := 0; i < 2; i++ {
			if back[i] < 6 {
				maxTurns[i] = e.maxTurns(b, i)
			} else {
				maxTurns[i] = cross[i] * 2
			}
		}
		if maxTurns[1] == 0 {
			maxTurns[1] = 1
		}
	}

	if !contact && cross[0] > 4*(maxTurns[1]-1) {
		r[Win] = 1
	}

	if ac[0] < 15 {
		r[WinGammon], r[WinBackgammon] = 0, 0
	} else if !contact {
		if cross[1] > 8*gammonCross[0] {
			r[WinGammon] = 0
		} else if gammonCross[0] > 4*(maxTurns[1]-1) {
			r[WinGammon] = 1
		}

		if cross[1] > 8*bgCross[0] {
			r[WinBackgammon] = 0
		} else if bgCross[0] > 4*(maxTurns[1]-1) {
			r[WinGammon], r[WinBackgammon] = 1, 1
		}
	}

	if !contact && cross[1] > 4*maxTurns[0] {
		r[Win] = 0
	}

	if ac[1] < 15 {
		r[LoseGammon], r[LoseBackgammon] = 0, 0
	} else if !contact {
		if cross[0] > 8*gammonCross[1]-4 {
			r[LoseGammon] = 0
		} else if gammonCross[1] > 4*maxTurns[0] {
			r[LoseGammon] = 1
		}

		if cross[0] > 8*bgCross[1]-4 {
			r[LoseBackgammon] = 0
		} else if bgCross[1] > 4*maxTurns[0] {
			r[LoseGammon], r[LoseBackgammon] = 1, 1
		}
	}

	r[WinGammon] = math32.Min(r[WinGammon], r[Win])
	r[LoseGammon] = math32.Min(r[LoseGammon], 1-r[Win])
	r[WinBackgammon] = math32.Min(r[WinBackgammon], r[WinGammon])
	r[LoseBackgammon] = math32.Min(r[LoseBackgammon], r[LoseGammon])

	for i := WinGammon; i < NumOutputs; i++ {
		if r[i] < noiseFloor {
			r[i] = 0
		}
	}
}

// RaceBGProb estimates the chance that side backgammons the other side in
// a race, from side 1's point of view when side is 1 and as a chance for
// side 0 otherwise. The opponent's stragglers in side's home board are
// treated as a bearoff of their own and raced against side's bearoff.
func (e *Engine) RaceBGProb(b Board, side int) float32 {
	menHome, oppPips := 0, 0
	for i := 0; i < 6; i++ {
		menHome += int(b[side][i])
	}
	for i := 22; i >= 18; i-- {
		oppPips += int(b[1-side][i]) * (i - 17)
	}

	onRoll := 0
	if side == 1 {
		onRoll = 1
	}
	if !((menHome+3)/4-onRoll <= (oppPips+2)/3) {
		return 0
	}

	var dummy Board
	dummy[side] = b[side]
	for i := 0; i < 6; i++ {
		dummy[1-side][i] = b[1-side][18+i]
	}

	// Positions past 923 have more than six chequers on six points and
	// lie outside the two-sided table.
	db := e.bearoff2
	if db == nil || positionid.PositionBearoff(dummy[0][:], 6, 15) > 923 ||
		positionid.PositionBearoff(dummy[1][:], 6, 15) > 923 {
		db = e.bearoff1
	}
	out, err := db.Evaluate(dummy.pb())
	if err != nil {
		return 0
	}
	if side == 1 {
		return out[Win]
	}
	return 1 - out[Win]
}

// EvalRaceBG replaces the backgammon chance of a race estimate with
// RaceBGProb when a backgammon is still possible for either side.
func (e *Engine) EvalRaceBG(b Board, r *Reward) {
	var men [2]int
	for i := 0; i < 24; i++ {
		men[0] += int(b[0][i])
		men[1] += int(b[1][i])
	}

	winBG, loseBG := false, false
	if men[1] == 15 {
		for i := 18; i < 24; i++ {
			if b[1][i] > 0 {
				loseBG = true
				break
			}
		}
	}
	if men[0] == 15 {
		for i := 18; i < 24; i++ {
			if b[0][i] > 0 {
				winBG = true
				break
			}
		}
	}
	if !winBG && !loseBG {
		return
	}

	side := 0
	if winBG {
		side = 1
	}
	p := e.RaceBGProb(b, side)
	switch {
	case p > 0 && side == 1:
		r[WinBackgammon] = p
		r[WinGammon] = math32.Max(r[WinGammon], p)
	case p > 0:
		r[LoseBackgammon] = p
		r[LoseGammon] = math32.Max(r[LoseGammon], p)
	case side == 1:
		r[WinBackgammon] = 0
	default:
		r[LoseBackgammon] = 0
	}
}

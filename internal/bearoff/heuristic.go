package bearoff

import (
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

const (
	heuristicPoints   = 6
	heuristicChequers = 15
)

// GenerateHeuristic builds an uncompressed one-sided 6x15 database by
// playing a plausible bearoff move for every roll from every position.
// The result approximates gnubg_os0.bd.
func GenerateHeuristic() *Database {
	nPos := int(positionid.Combination(heuristicPoints+heuristicChequers, heuristicPoints))
	data := make([]byte, headerSize+nPos*64)
	copy(data, "gnubg-OS-06-15-0-0-0-heuristic")

	p := data[headerSize:]
	// Position 0 is borne off: finished in zero rolls with certainty.
	p[0], p[1] = 0xff, 0xff

	for id := 1; id < nPos; id++ {
		generateBearoff(p, id)
	}
	log.Debug().Int("positions", nPos).Msg("generated heuristic bearoff database")

	return &Database{
		Type:      OneSided,
		NPoints:   heuristicPoints,
		NChequers: heuristicChequers,
		Heuristic: true,
		data:      data,
	}
}

// generateBearoff fills the distribution of id from positions with lower
// ids, which a bearoff move always reaches.
func generateBearoff(p []byte, id int) {
	var aProb [32]int

	for d0 := 1; d0 <= 6; d0++ {
		for d1 := 1; d1 <= d0; d1++ {
			points := positionid.PositionFromBearoff(uint32(id), heuristicPoints, heuristicChequers)
			var board [heuristicPoints]int
			for i := range board {
				board[i] = int(points[i])
			}
			best := heuristicBearoff(&board, d0, d1)

			weight := 2
			if d0 == d1 {
				weight = 1
			}
			for i := 0; i < 31; i++ {
				aProb[i+1] += weight * int(binary.LittleEndian.Uint16(p[best<<6|i<<1:]))
			}
		}
	}

	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint16(p[id<<6|i<<1:], uint16((aProb[i]+18)/36))
	}
}

// heuristicBearoff plays d0 d1 (d0 >= d1) on a home board and returns the
// index of the resulting position.
func heuristicBearoff(board *[heuristicPoints]int, d0, d1 int) int {
	var dice [4]int
	c := 2
	if d0 == d1 {
		dice = [4]int{d0, d0, d0, d0}
		c = 4
	} else {
		dice[0], dice[1] = d0, d1
	}

	for i := 0; i < c; i++ {
		nMax := 5
		for nMax > 0 && board[nMax] == 0 {
			nMax--
		}
		if board[nMax] == 0 {
			break
		}

		n := pickBearoffChequer(board, dice[:c], i, nMax)
		board[n]--
		if n >= dice[i] {
			board[n-dice[i]]++
		}
	}

	points := make([]uint8, heuristicPoints)
	for i := range points {
		points[i] = uint8(board[i])
	}
	return int(positionid.PositionBearoff(points, heuristicPoints, heuristicChequers))
}

func pickBearoffChequer(board *[heuristicPoints]int, dice []int, i, nMax int) int {
	die := dice[i]

	// Bear off exactly.
	if board[die-1] > 0 {
		return die - 1
	}
	// Bear off the highest chequer.
	if die-1 > nMax {
		return nMax
	}

	// A chequer the remaining dice can take off.
	total := die - 1
	for j := i + 1; j < len(dice); j++ {
		total += dice[j]
		if total < heuristicPoints && board[total] > 0 {
			return total
		}
	}

	// Fill a gap from a point holding at least two.
	n := -1
	for s := die; s <= nMax; s++ {
		if board[s] >= 2 && board[s-die] == 0 && (n == -1 || board[s] > board[n]) {
			n = s
		}
	}
	if n >= 0 {
		return n
	}

	// The fullest point, preferring the emptier destination.
	for s := die; s <= nMax; s++ {
		if n == -1 || board[s] > board[n] ||
			(board[s] == board[n] && board[s-die] < board[n-die]) {
			n = s
		}
	}
	return n
}

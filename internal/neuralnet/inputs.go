package neuralnet

import "github.com/yourusername/bgtrainer/internal/positionid"

// Board is the engine board: [side][slot], slot 24 is the bar, side 1 on roll.
type Board = positionid.Board

// Input widths.
const (
	MinPPerPoint     = 4
	MoreInputs       = 25
	NumBaseInputs    = 25 * MinPPerPoint * 2
	NumContactInputs = (25*MinPPerPoint + MoreInputs) * 2

	// A race never has chequers on the 24 point or the bar, so 23 points
	// are encoded, then 14 men-off flags and the cross-over count.
	raceOff        = 23 * MinPPerPoint
	raceCross      = raceOff + 14
	HalfRaceInputs = raceCross + 1
	NumRaceInputs  = HalfRaceInputs * 2
)

// pointInputs writes gnubg's four-unit encoding of nc chequers:
// exactly one, exactly two, three or more, and half of the excess over three.
func pointInputs(dst []float32, nc uint8) {
	dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, 0
	switch {
	case nc == 1:
		dst[0] = 1
	case nc == 2:
		dst[1] = 1
	case nc >= 3:
		dst[2] = 1
		dst[3] = float32(nc-3) / 2
	}
}

// barInputs is cumulative: one or more, two or more, three or more, excess.
func barInputs(dst []float32, nc uint8) {
	dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, 0
	for k := uint8(0); k < 3 && k < nc; k++ {
		dst[k] = 1
	}
	if nc > 3 {
		dst[3] = float32(nc-3) / 2
	}
}

// BaseInputs writes the 200 point inputs shared by the contact and crashed nets.
func BaseInputs(board Board, in []float32) {
	for side := 0; side < 2; side++ {
		half := in[side*25*MinPPerPoint:]
		for i := 0; i < 24; i++ {
			pointInputs(half[i*MinPPerPoint:], board[side][i])
		}
		barInputs(half[24*MinPPerPoint:], board[side][24])
	}
}

// RaceInputs writes the race net inputs for both sides.
func RaceInputs(board Board, in []float32) {
	for side := 0; side < 2; side++ {
		half := in[side*HalfRaceInputs : (side+1)*HalfRaceInputs]
		for i := range half {
			half[i] = 0
		}

		menOff := 15
		for i := 0; i < 23; i++ {
			nc := board[side][i]
			menOff -= int(nc)
			pointInputs(half[i*MinPPerPoint:], nc)
		}
		if menOff >= 1 && menOff <= 14 {
			half[raceOff+menOff-1] = 1
		}

		nCross := 0
		for i := 6; i < 24; i++ {
			nCross += int(board[side][i]) * (i / 6)
		}
		half[raceCross] = float32(nCross) / 10
	}
}

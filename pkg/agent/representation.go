package agent

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/internal/neuralnet"
	"github.com/yourusername/bgtrainer/internal/positionid"
	"github.com/yourusername/bgtrainer/pkg/engine"
)

// Representation turns a board into approximator inputs. Every class has a
// fixed input width.
type Representation interface {
	Name() string
	Inputs(c engine.PositionClass) int
	Features(b engine.Board, c engine.PositionClass, dst []float64)
}

// Encoding selects how a raw representation encodes the chequers on a point.
type Encoding int

const (
	EncodingSutton Encoding = iota
	EncodingTesauro89
	EncodingTesauro92
	EncodingGnu
)

var encodingNames = [...]string{"sutton", "tesauro89", "tesauro92", "gnu"}

func (e Encoding) String() string { return encodingNames[e] }

// ParseEncoding parses an encoding name as used in agent names.
func ParseEncoding(s string) (Encoding, error) {
	for i, name := range encodingNames {
		if strings.EqualFold(s, name) {
			return Encoding(i), nil
		}
	}
	return 0, errors.Errorf("unknown board encoding %q", s)
}

// rawHalfInputs is four units per point, the bar and the men borne off.
const (
	rawHalfInputs = 24*4 + 2
	RawInputs     = 2 * rawHalfInputs
)

// RawRepresentation encodes both sides point by point, the same for every
// class.
type RawRepresentation struct {
	Encoding Encoding
}

func (r RawRepresentation) Name() string { return "raw-" + r.Encoding.String() }

func (r RawRepresentation) Inputs(engine.PositionClass) int { return RawInputs }

func (r RawRepresentation) Features(b engine.Board, _ engine.PositionClass, dst []float64) {
	r.half(b[engine.Opponent], dst[:rawHalfInputs])
	r.half(b[engine.Self], dst[rawHalfInputs:RawInputs])
}

func (r RawRepresentation) half(side [25]uint8, dst []float64) {
	men := 15
	for i := 0; i < 24; i++ {
		r.point(side[i], dst[4*i:4*i+4])
		men -= int(side[i])
	}
	men -= int(side[engine.Bar])
	dst[96] = float64(side[engine.Bar]) * 0.5
	dst[97] = float64(men) / 15
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (r RawRepresentation) point(men uint8, dst []float64) {
	switch r.Encoding {
	case EncodingSutton:
		dst[0], dst[1], dst[2] = flag(men >= 1), flag(men >= 2), flag(men >= 3)
	case EncodingTesauro89:
		dst[0], dst[1], dst[2] = flag(men == 1), flag(men == 2), flag(men == 3)
	case EncodingTesauro92:
		dst[0], dst[1], dst[2] = flag(men == 1), flag(men >= 2), flag(men == 3)
	case EncodingGnu:
		dst[0], dst[1], dst[2] = flag(men == 1), flag(men == 2), flag(men >= 3)
	}
	dst[3] = 0
	if men >= 4 {
		dst[3] = float64(men-3) / 2
	}
}

// PubevalInputs is the width of Tesauro's pubeval encoding.
const PubevalInputs = 122

// PubevalRepresentation is Tesauro's pubeval encoding of side 1.
type PubevalRepresentation struct{}

func (PubevalRepresentation) Name() string { return "pubeval" }

func (PubevalRepresentation) Inputs(engine.PositionClass) int { return PubevalInputs }

func (PubevalRepresentation) Features(b engine.Board, _ engine.PositionClass, dst []float64) {
	pubevalInputs(b, dst)
}

// pubevalPos lays b out as pubeval's pos[28]: 1-24 the points of side 1
// (positive) and side 0 (negative), 25 side 1's bar, 0 side 0's bar,
// 26 and 27 the men borne off.
func pubevalPos(b engine.Board) [28]int {
	var pos [28]int
	for i := 0; i < 24; i++ {
		pos[i+1] = int(b[engine.Self][i])
		if n := b[engine.Opponent][23-i]; n > 0 {
			pos[i+1] = -int(n)
		}
	}
	pos[25] = int(b[engine.Self][engine.Bar])
	pos[0] = -int(b[engine.Opponent][engine.Bar])
	pos[26] = 15 - b.ChequersCount(engine.Self)
	pos[27] = -(15 - b.ChequersCount(engine.Opponent))
	return pos
}

func pubevalInputs(b engine.Board, x []float64) {
	pos := pubevalPos(b)
	for j := range x[:PubevalInputs] {
		x[j] = 0
	}
	for j := 1; j <= 24; j++ {
		k := 5 * (j - 1)
		n := pos[25-j]
		switch {
		case n == 0:
			continue
		case n == -1:
			x[k] = 1
		case n == 1:
			x[k+1] = 1
		}
		if n >= 2 {
			x[k+2] = 1
		}
		if n == 3 {
			x[k+3] = 1
		}
		if n >= 4 {
			x[k+4] = float64(n-3) / 2
		}
	}
	x[120] = -float64(pos[0]) / 2
	x[121] = float64(pos[26]) / 15
}

// GnubgRepresentation is gnubg's hand-crafted encoding: the contact and
// crashed inputs, or the race inputs.
type GnubgRepresentation struct{}

func (GnubgRepresentation) Name() string { return "gnubg" }

func (GnubgRepresentation) Inputs(c engine.PositionClass) int {
	if c == engine.ClassRace || c.IsBearoff() {
		return neuralnet.NumRaceInputs
	}
	return neuralnet.NumContactInputs
}

func (g GnubgRepresentation) Features(b engine.Board, c engine.PositionClass, dst []float64) {
	var in [neuralnet.NumContactInputs]float32
	n := g.Inputs(c)
	pb := positionid.Board(b)
	switch {
	case n == neuralnet.NumRaceInputs:
		neuralnet.RaceInputs(pb, in[:n])
	case c == engine.ClassCrashed:
		neuralnet.CrashedInputs(pb, in[:n])
	default:
		neuralnet.ContactInputs(pb, in[:n])
	}
	for i, v := range in[:n] {
		dst[i] = float64(v)
	}
}

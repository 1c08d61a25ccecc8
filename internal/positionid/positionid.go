// Package positionid implements the 80-bit position key, the gnubg
// compatible base64 position ID and the combinatorial ranking used to
// address bearoff databases.
//
// The key packs both sides in unary: for side 0 then side 1, for every
// slot 0..24, count set bits followed by one clear bit.
package positionid

import (
	"sync"

	"github.com/pkg/errors"
)

const (
	// KeySize is the size of a position key in bytes.
	KeySize = 10
	// IDLength is the length of a position ID string.
	IDLength = 14
	// MaxN is the maximum n for combination calculations.
	MaxN = 40
	// MaxR is the maximum r for combination calculations.
	MaxR = 25
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var (
	// ErrInvalidPositionID is returned for ids that are short or use
	// characters outside the alphabet.
	ErrInvalidPositionID = errors.New("invalid position ID")
	// ErrTooManyChequers is returned when a side has more chequers than the variant allows.
	ErrTooManyChequers = errors.New("too many chequers")
	// ErrMutualOccupancy is returned when both sides occupy the same point.
	ErrMutualOccupancy = errors.New("both sides occupy the same point")
	// ErrBarsClosed is returned when both sides are on the bar against closed boards.
	ErrBarsClosed = errors.New("both sides on the bar against closed boards")
)

// Board is [side][slot]; slot 24 is the bar. Side 1 is the side on roll.
type Board [2][25]uint8

// Key is the canonical 80-bit encoding of a Board. It is comparable and
// usable as a map key.
type Key [KeySize]byte

var (
	combinationTable [MaxN][MaxR]uint32
	combinationOnce  sync.Once
)

func initCombination() {
	for i := 0; i < MaxN; i++ {
		combinationTable[i][0] = uint32(i + 1)
	}
	for i := 1; i < MaxN; i++ {
		for j := 1; j < MaxR; j++ {
			combinationTable[i][j] = combinationTable[i-1][j-1] + combinationTable[i-1][j]
		}
	}
}

// Combination returns C(n, r); 0 outside the table.
func Combination(n, r uint32) uint32 {
	if n > MaxN || r > MaxR || n == 0 || r == 0 {
		return 0
	}
	combinationOnce.Do(initCombination)
	return combinationTable[n-1][r-1]
}

func addBits(key *Key, bitPos, nBits uint32) {
	k := bitPos / 8
	r := bitPos & 0x7
	b := ((uint32(1) << nBits) - 1) << r

	key[k] |= uint8(b)
	if k < 8 {
		key[k+1] |= uint8(b >> 8)
		key[k+2] |= uint8(b >> 16)
	} else if k == 8 {
		key[k+1] |= uint8(b >> 8)
	}
}

// MakeKey encodes a board. Each side must hold at most 15 chequers.
func MakeKey(board Board) Key {
	var key Key
	var bitPos uint32

	for side := 0; side < 2; side++ {
		for pt := 0; pt < 25; pt++ {
			nc := uint32(board[side][pt])
			if nc > 0 {
				addBits(&key, bitPos, nc)
			}
			bitPos += nc + 1
		}
	}

	return key
}

// BoardFromKey replays the unary walk. A malformed key yields the board
// decoded so far; validate with CheckPosition.
func BoardFromKey(key Key) Board {
	var board Board
	side, pt := 0, 0

	for a := 0; a < KeySize; a++ {
		cur := key[a]
		for k := 0; k < 8; k++ {
			if cur&0x1 != 0 {
				if side >= 2 || pt >= 25 {
					return board
				}
				board[side][pt]++
			} else {
				pt++
				if pt == 25 {
					side++
					pt = 0
				}
			}
			cur >>= 1
		}
	}

	return board
}

// String returns the position ID of the key.
func (k Key) String() string {
	return IDFromKey(k)
}

// IDFromKey renders a key as 14 base64 characters.
func IDFromKey(key Key) string {
	result := make([]byte, IDLength)
	puch := key[:]

	for i := 0; i < 3; i++ {
		result[i*4] = base64Chars[puch[0]>>2]
		result[i*4+1] = base64Chars[((puch[0]&0x03)<<4)|(puch[1]>>4)]
		result[i*4+2] = base64Chars[((puch[1]&0x0F)<<2)|(puch[2]>>6)]
		result[i*4+3] = base64Chars[puch[2]&0x3F]
		puch = puch[3:]
	}

	result[12] = base64Chars[puch[0]>>2]
	result[13] = base64Chars[(puch[0]&0x03)<<4]

	return string(result)
}

// PositionID returns the gnubg position ID of a board.
func PositionID(board Board) string {
	return IDFromKey(MakeKey(board))
}

func base64Decode(ch byte) uint8 {
	switch {
	case ch >= 'A' && ch <= 'Z':
		return ch - 'A'
	case ch >= 'a' && ch <= 'z':
		return ch - 'a' + 26
	case ch >= '0' && ch <= '9':
		return ch - '0' + 52
	case ch == '+':
		return 62
	case ch == '/':
		return 63
	}
	return 255
}

// KeyFromID decodes a position ID into a key without validating the board.
func KeyFromID(posID string) (Key, error) {
	var key Key

	if len(posID) < IDLength {
		return key, errors.Wrapf(ErrInvalidPositionID, "%q is too short", posID)
	}

	var ach [IDLength]uint8
	for i := 0; i < IDLength; i++ {
		ach[i] = base64Decode(posID[i])
		if ach[i] == 255 {
			return key, errors.Wrapf(ErrInvalidPositionID, "bad character %q", posID[i])
		}
	}

	pch := ach[:]
	for i := 0; i < 3; i++ {
		key[i*3] = (pch[0] << 2) | (pch[1] >> 4)
		key[i*3+1] = (pch[1] << 4) | (pch[2] >> 2)
		key[i*3+2] = (pch[2] << 6) | pch[3]
		pch = pch[4:]
	}
	key[9] = (pch[0] << 2) | (pch[1] >> 4)

	return key, nil
}

// BoardFromPositionID decodes and validates a standard (15 chequer) position ID.
func BoardFromPositionID(posID string) (Board, error) {
	key, err := KeyFromID(posID)
	if err != nil {
		return Board{}, err
	}
	board := BoardFromKey(key)
	if err := CheckPosition(board, 15); err != nil {
		return board, errors.Wrapf(err, "position %s", posID)
	}
	return board, nil
}

// CheckPosition validates chequer totals, mutual occupancy and the closed
// board rule.
func CheckPosition(board Board, nChequers int) error {
	var ac [2]int

	for i := 0; i < 25; i++ {
		ac[0] += int(board[0][i])
		ac[1] += int(board[1][i])
	}
	if ac[0] > nChequers || ac[1] > nChequers {
		return errors.Wrapf(ErrTooManyChequers, "%d/%d on board, limit %d", ac[0], ac[1], nChequers)
	}

	for i := 0; i < 24; i++ {
		if board[0][i] > 0 && board[1][23-i] > 0 {
			return errors.Wrapf(ErrMutualOccupancy, "point %d", i)
		}
	}

	for i := 0; i < 6; i++ {
		if board[0][i] < 2 || board[1][i] < 2 {
			return nil
		}
	}
	if board[0][24] == 0 || board[1][24] == 0 {
		return nil
	}

	return ErrBarsClosed
}

func positionF(fBits, n, r uint32) uint32 {
	if n == r {
		return 0
	}
	if fBits&(1<<(n-1)) != 0 {
		return Combination(n-1, r) + positionF(fBits, n-1, r-1)
	}
	return positionF(fBits, n-1, r)
}

// PositionBearoff ranks the first nPoints slots of one side among all
// distributions of at most nChequers chequers.
func PositionBearoff(points []uint8, nPoints, nChequers uint32) uint32 {
	if nPoints == 0 {
		return 0
	}

	j := nPoints - 1
	for i := uint32(0); i < nPoints; i++ {
		j += uint32(points[i])
	}

	fBits := uint32(1) << j
	for i := uint32(0); i < nPoints-1; i++ {
		j -= uint32(points[i]) + 1
		fBits |= uint32(1) << j
	}

	return positionF(fBits, nChequers+nPoints, nPoints)
}

func positionInv(nID, n, r uint32) uint32 {
	if r == 0 {
		return 0
	}
	if n == r {
		return (1 << n) - 1
	}

	nC := Combination(n-1, r)
	if nID >= nC {
		return (1 << (n - 1)) | positionInv(nID-nC, n-1, r-1)
	}
	return positionInv(nID, n-1, r)
}

// PositionFromBearoff is the inverse of PositionBearoff.
func PositionFromBearoff(id, nPoints, nChequers uint32) []uint8 {
	points := make([]uint8, nPoints)
	fBits := positionInv(id, nChequers+nPoints, nPoints)

	j := nPoints - 1
	for i := uint32(0); i < nChequers+nPoints; i++ {
		if fBits&(1<<i) != 0 {
			if j == 0 {
				break
			}
			j--
		} else {
			points[j]++
		}
	}

	return points
}

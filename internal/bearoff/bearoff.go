// Package bearoff reads gnubg .bd bearoff databases (one-sided, two-sided
// and hypergammon) and can synthesize the heuristic one-sided database
// when no file is available.
package bearoff

import (
	"encoding/binary"
	"math"
	"os"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

// Type identifies the layout of a bearoff database.
type Type int

const (
	Invalid Type = iota
	OneSided
	TwoSided
	Hypergammon
)

func (t Type) String() string {
	switch t {
	case OneSided:
		return "one-sided"
	case TwoSided:
		return "two-sided"
	case Hypergammon:
		return "hypergammon"
	}
	return "invalid"
}

// Output indices of Evaluate.
const (
	OutputWin = iota
	OutputWinGammon
	OutputWinBackgammon
	OutputLoseGammon
	OutputLoseBackgammon
	NumOutputs
)

const headerSize = 40

var (
	// ErrNotBearoff is returned for files without the gnubg signature.
	ErrNotBearoff = errors.New("not a gnubg bearoff database")
	// ErrOutOfRange is returned when a position index lies outside the data.
	ErrOutOfRange = errors.New("bearoff position out of range")
)

// Database is a bearoff table held in memory. It is read-only after
// construction and safe for concurrent use.
type Database struct {
	Type       Type
	NPoints    int
	NChequers  int
	Compressed bool // one-sided: index + packed distributions
	Gammon     bool // one-sided: gammon distributions included
	ND         bool // one-sided: normal distribution parameters instead of exact data
	Heuristic  bool // generated with the plausible-move heuristic
	Cubeful    bool // two-sided: cubeful equities included

	data     []byte
	filename string
}

// Load reads a whole .bd file into memory and parses its header.
func Load(filename string) (*Database, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read bearoff database")
	}
	db, err := parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", filename)
	}
	db.filename = filename
	return db, nil
}

func parse(data []byte) (*Database, error) {
	if len(data) < headerSize {
		return nil, errors.Wrapf(ErrNotBearoff, "only %d bytes", len(data))
	}
	if string(data[:5]) != "gnubg" {
		return nil, ErrNotBearoff
	}

	db := &Database{data: data}

	switch {
	case string(data[6:8]) == "TS":
		db.Type = TwoSided
	case string(data[6:8]) == "OS":
		db.Type = OneSided
	case data[6] == 'H':
		db.Type = Hypergammon
	default:
		return nil, errors.Errorf("illegal bearoff type %q", data[6:8])
	}

	if db.Type == Hypergammon {
		db.NPoints = 25
		db.NChequers, _ = strconv.Atoi(string(data[7:9]))
		if db.NChequers < 1 || db.NChequers > 3 {
			return nil, errors.Errorf("illegal number of hypergammon chequers %d", db.NChequers)
		}
		return db, nil
	}

	db.NPoints, _ = strconv.Atoi(string(data[9:11]))
	if db.NPoints < 1 || db.NPoints >= 24 {
		return nil, errors.Errorf("illegal number of points %d", db.NPoints)
	}
	db.NChequers, _ = strconv.Atoi(string(data[12:14]))
	if db.NChequers < 1 || db.NChequers > 15 {
		return nil, errors.Errorf("illegal number of chequers %d", db.NChequers)
	}

	if db.Type == TwoSided {
		db.Cubeful = data[15] == '1'
	} else {
		db.Gammon = data[15] == '1'
		db.Compressed = data[17] == '1'
		db.ND = data[19] == '1'
	}

	return db, nil
}

// Filename returns the file the database was loaded from, or "" for a
// generated table.
func (db *Database) Filename() string {
	return db.filename
}

// NumPositions is the number of one-sided positions the table ranks.
func (db *Database) NumPositions() int {
	return int(positionid.Combination(uint32(db.NPoints+db.NChequers), uint32(db.NPoints)))
}

// Index ranks the first NPoints slots of one side.
func (db *Database) Index(points []uint8) int {
	return int(positionid.PositionBearoff(points, uint32(db.NPoints), uint32(db.NChequers)))
}

// Contains reports whether the database covers a non-contact position.
// Hypergammon tables cover contact positions too.
func (db *Database) Contains(board positionid.Board) bool {
	if db == nil {
		return false
	}

	nOppBack, nBack := 24, 24
	for nOppBack > 0 && board[0][nOppBack] == 0 {
		nOppBack--
	}
	for nBack > 0 && board[1][nBack] == 0 {
		nBack--
	}
	if board[0][nOppBack] == 0 || board[1][nBack] == 0 {
		return false
	}

	if nBack+nOppBack > 22 && db.Type != Hypergammon {
		return false
	}

	var n, nOpp int
	for i := 0; i <= nOppBack; i++ {
		nOpp += int(board[0][i])
	}
	for i := 0; i <= nBack; i++ {
		n += int(board[1][i])
	}

	return n <= db.NChequers && nOpp <= db.NChequers && nBack < db.NPoints && nOppBack < db.NPoints
}

// RawDistribution returns the chance, scaled to 65535, of bearing off in
// exactly i rolls, plus the matching gammon distribution when present.
func (db *Database) RawDistribution(id int) (prob, gammon [32]uint16, err error) {
	if db.Type != OneSided {
		return prob, gammon, errors.Errorf("distribution requested from %s database", db.Type)
	}
	if id < 0 || id >= db.NumPositions() {
		return prob, gammon, errors.Wrapf(ErrOutOfRange, "id %d", id)
	}

	switch {
	case db.ND:
		p, g, err := db.distributionND(id)
		if err != nil {
			return prob, gammon, err
		}
		for i := 0; i < 32; i++ {
			prob[i] = uint16(math32.Min(p[i], 1) * 65535)
			gammon[i] = uint16(math32.Min(g[i], 1) * 65535)
		}
		return prob, gammon, nil
	case db.Compressed:
		return db.distributionCompressed(id)
	}
	return db.distributionUncompressed(id)
}

// Distribution is RawDistribution scaled to probabilities.
func (db *Database) Distribution(id int) (prob, gammon [32]float32, err error) {
	if db.ND {
		if db.Type != OneSided {
			return prob, gammon, errors.Errorf("distribution requested from %s database", db.Type)
		}
		return db.distributionND(id)
	}
	aus, ausg, err := db.RawDistribution(id)
	if err != nil {
		return prob, gammon, err
	}
	for i := 0; i < 32; i++ {
		prob[i] = float32(aus[i]) / 65535
		gammon[i] = float32(ausg[i]) / 65535
	}
	return prob, gammon, nil
}

func (db *Database) distributionND(id int) (prob, gammon [32]float32, err error) {
	offset := headerSize + id*16
	if offset+16 > len(db.data) {
		return prob, gammon, errors.Wrapf(ErrOutOfRange, "id %d", id)
	}

	f := func(at int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(db.data[offset+at:]))
	}
	mean, stddev := f(0), f(4)
	gammonMean, gammonStddev := f(8), f(12)

	for i := 0; i < 32; i++ {
		prob[i] = normalDist(float32(i), mean, stddev)
		gammon[i] = normalDist(float32(i), gammonMean, gammonStddev)
	}
	return prob, gammon, nil
}

func (db *Database) distributionCompressed(id int) (prob, gammon [32]uint16, err error) {
	nPos := db.NumPositions()
	entrySize := 6
	if db.Gammon {
		entrySize = 8
	}

	at := headerSize + id*entrySize
	if at+entrySize > len(db.data) {
		return prob, gammon, errors.Wrapf(ErrOutOfRange, "index entry %d", id)
	}
	entry := db.data[at : at+entrySize]

	dataOffset := int(binary.LittleEndian.Uint32(entry))
	nz, ioff := int(entry[4]), int(entry[5])
	var nzg, ioffg int
	if db.Gammon {
		nzg, ioffg = int(entry[6]), int(entry[7])
	}
	if nz > 32 || ioff > 32 || nzg > 32 || ioffg > 32 || ioff+nz > 32 || ioffg+nzg > 32 {
		return prob, gammon, errors.Errorf("corrupt index entry %d", id)
	}

	offset := headerSize + nPos*entrySize + 2*dataOffset
	nBytes := 2 * (nz + nzg)
	if offset+nBytes > len(db.data) {
		return prob, gammon, errors.Wrapf(ErrOutOfRange, "data for %d", id)
	}

	p := db.data[offset:]
	for i := 0; i < nz; i++ {
		prob[ioff+i] = binary.LittleEndian.Uint16(p[2*i:])
	}
	p = p[2*nz:]
	for i := 0; i < nzg; i++ {
		gammon[ioffg+i] = binary.LittleEndian.Uint16(p[2*i:])
	}
	return prob, gammon, nil
}

func (db *Database) distributionUncompressed(id int) (prob, gammon [32]uint16, err error) {
	recordSize := 64
	if db.Gammon {
		recordSize = 128
	}

	offset := headerSize + id*recordSize
	if offset+recordSize > len(db.data) {
		return prob, gammon, errors.Wrapf(ErrOutOfRange, "id %d", id)
	}

	for i := 0; i < 32; i++ {
		prob[i] = binary.LittleEndian.Uint16(db.data[offset+2*i:])
	}
	if db.Gammon {
		for i := 0; i < 32; i++ {
			gammon[i] = binary.LittleEndian.Uint16(db.data[offset+64+2*i:])
		}
	}
	return prob, gammon, nil
}

// MaxTurns is the largest number of rolls with a non-zero chance of
// finishing the bearoff, or -1 when the distribution is empty.
func (db *Database) MaxTurns(id int) int {
	prob, _, err := db.RawDistribution(id)
	if err != nil {
		return -1
	}
	for i := 31; i >= 0; i-- {
		if prob[i] != 0 {
			return i
		}
	}
	return -1
}

// Evaluate returns {win, winGammon, winBackgammon, loseGammon,
// loseBackgammon} for side 1 on roll.
func (db *Database) Evaluate(board positionid.Board) ([NumOutputs]float32, error) {
	switch db.Type {
	case OneSided:
		return db.evalOneSided(board)
	case TwoSided:
		return db.evalTwoSided(board)
	case Hypergammon:
		return db.evalHypergammon(board)
	}
	return [NumOutputs]float32{}, errors.Errorf("cannot evaluate with %s database", db.Type)
}

func (db *Database) evalTwoSided(board positionid.Board) ([NumOutputs]float32, error) {
	var out [NumOutputs]float32

	nUs := db.Index(board[1][:])
	nThem := db.Index(board[0][:])
	iPos := nUs*db.NumPositions() + nThem

	k := 1
	if db.Cubeful {
		k = 4
	}
	offset := headerSize + 2*iPos*k
	if offset+2 > len(db.data) {
		return out, errors.Wrapf(ErrOutOfRange, "two-sided position %d", iPos)
	}

	eq := float32(binary.LittleEndian.Uint16(db.data[offset:]))/32767.5 - 1
	out[OutputWin] = eq/2 + 0.5
	return out, nil
}

func (db *Database) evalOneSided(board positionid.Board) ([NumOutputs]float32, error) {
	var out [NumOutputs]float32
	var prob, gammon [2][32]float32

	for side := 0; side < 2; side++ {
		var err error
		prob[side], gammon[side], err = db.Distribution(db.Index(board[side][:]))
		if err != nil {
			return out, err
		}
	}

	var r float32
	for i := 0; i < 32; i++ {
		for j := i; j < 32; j++ {
			r += prob[1][i] * prob[0][j]
		}
	}
	out[OutputWin] = r

	var on [2]int
	for side := 0; side < 2; side++ {
		for i := 0; i < 25; i++ {
			on[side] += int(board[side][i])
		}
	}

	// Without gammon distributions the sanity check settles the
	// certain gammons; uncertain ones stay at zero.
	if (on[0] == 15 || on[1] == 15) && db.Gammon {
		r = 0
		for i := 0; i < 32; i++ {
			for j := i; j < 32; j++ {
				r += prob[1][i] * gammon[0][j]
			}
		}
		out[OutputWinGammon] = r

		r = 0
		for i := 0; i < 32; i++ {
			for j := i + 1; j < 32; j++ {
				r += prob[0][i] * gammon[1][j]
			}
		}
		out[OutputLoseGammon] = r
	}

	return out, nil
}

func (db *Database) evalHypergammon(board positionid.Board) ([NumOutputs]float32, error) {
	var out [NumOutputs]float32

	nUs := db.Index(board[1][:])
	nThem := db.Index(board[0][:])
	iPos := nUs*db.NumPositions() + nThem

	const recordSize = 28
	offset := headerSize + recordSize*iPos
	if offset+recordSize > len(db.data) {
		return out, errors.Wrapf(ErrOutOfRange, "hypergammon position %d", iPos)
	}

	pc := db.data[offset:]
	for i := 0; i < NumOutputs; i++ {
		us := int(pc[3*i]) | int(pc[3*i+1])<<8 | int(pc[3*i+2])<<16
		out[i] = float32(us) / 16777215
	}
	return out, nil
}

func normalDist(x, mu, sigma float32) float32 {
	const epsilon = 1e-7
	if sigma <= epsilon {
		if math32.Abs(mu-x) < epsilon {
			return 1
		}
		return 0
	}
	xm := (x - mu) / sigma
	return 1 / (sigma * math32.Sqrt(2*math32.Pi)) * math32.Exp(-xm*xm/2)
}

// AverageRolls returns the mean and standard deviation of the number of
// rolls in a distribution.
func AverageRolls(prob [32]float32) (mean, stddev float32) {
	var sx, sx2 float32
	for i := 1; i < 32; i++ {
		p := float32(i) * prob[i]
		sx += p
		sx2 += float32(i) * p
	}
	if v := sx2 - sx*sx; v > 0 {
		stddev = math32.Sqrt(v)
	}
	return sx, stddev
}

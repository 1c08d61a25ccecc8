package engine

import (
	"encoding/binary"

	"lukechampine.com/frand"
)

// RNG is a deterministic dice and number generator. It is not safe for
// concurrent use; every dispatcher and agent owns its own.
type RNG struct {
	r *frand.RNG
}

// NewRNG seeds a ChaCha12 generator from seed and a stream number, so that
// parallel tasks sharing a seed still get independent sequences.
func NewRNG(seed, stream uint64) *RNG {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[0:], seed)
	binary.LittleEndian.PutUint64(key[8:], stream)
	return &RNG{r: frand.NewCustom(key[:], 1024, 12)}
}

// Die returns a value in 1..6.
func (g *RNG) Die() int {
	return g.r.Intn(6) + 1
}

// Roll returns two dice.
func (g *RNG) Roll() (int, int) {
	return g.Die(), g.Die()
}

// Intn returns a value in [0, n).
func (g *RNG) Intn(n int) int {
	return g.r.Intn(n)
}

// Float32 returns a value in [0, 1).
func (g *RNG) Float32() float32 {
	return float32(g.r.Float64())
}

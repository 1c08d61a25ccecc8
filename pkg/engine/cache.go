package engine

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/yourusername/bgtrainer/internal/positionid"
)

// Cache constants
const (
	DefaultCacheSize = 1 << 18
	CacheHit         = ^uint32(0)
)

// CacheEntry stores a cached evaluation result
type CacheEntry struct {
	Key     positionid.Key
	Context int32 // evaluator and position class, see MakeEvalContext
	valid   bool
	Reward  Reward
}

// EvalCache is a thread-safe position evaluation cache for evaluators whose
// output never changes, such as fixed weight agents. It is two-way
// associative with MurmurHash3-based indexing.
type EvalCache struct {
	entries  []cacheNode
	size     uint32
	hashMask uint32

	lookups atomic.Uint64
	hits    atomic.Uint64
	adds    atomic.Uint64

	mu sync.RWMutex
}

// cacheNode holds primary and secondary entries for two-way associative cache
type cacheNode struct {
	primary   CacheEntry
	secondary CacheEntry
}

// NewEvalCache creates a new evaluation cache with the given size
// Size will be adjusted to the nearest power of 2
func NewEvalCache(size uint32) *EvalCache {
	if size > 1<<31 {
		size = 1 << 31
	}
	if size < 2 {
		size = 2
	}
	p := uint32(1)
	for p < size {
		p <<= 1
	}
	size = p

	return &EvalCache{
		entries:  make([]cacheNode, size/2),
		size:     size,
		hashMask: size/2 - 1,
	}
}

// Flush clears all entries from the cache
func (c *EvalCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		c.entries[i] = cacheNode{}
	}
	c.lookups.Store(0)
	c.hits.Store(0)
	c.adds.Store(0)
}

func mix(h, k uint32) uint32 {
	const c1 = 0xcc9e2d51
	const c2 = 0x1b873593

	k *= c1
	k = (k << 15) | (k >> 17)
	k *= c2

	h ^= k
	h = (h << 13) | (h >> 19)
	return h*5 + 0xe6546b64
}

// hash computes the hash key for a cache entry using MurmurHash3-style mixing
func (c *EvalCache) hash(key positionid.Key, ctx int32) uint32 {
	h := mix(0, binary.LittleEndian.Uint32(key[0:]))
	h = mix(h, binary.LittleEndian.Uint32(key[4:]))
	h = mix(h, uint32(binary.LittleEndian.Uint16(key[8:])))
	h = mix(h, uint32(ctx))

	h ^= positionid.KeySize + 4
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16

	return h & c.hashMask
}

// Lookup checks if a position is in the cache
// Returns CacheHit if found (r filled), otherwise returns the slot for Add
func (c *EvalCache) Lookup(key positionid.Key, ctx int32, r *Reward) uint32 {
	slot := c.hash(key, ctx)
	c.lookups.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	node := &c.entries[slot]
	for _, e := range [2]*CacheEntry{&node.primary, &node.secondary} {
		if e.valid && e.Key == key && e.Context == ctx {
			*r = e.Reward
			c.hits.Add(1)
			return CacheHit
		}
	}
	return slot
}

// Add adds an evaluation result to the cache
// slot should be the value returned by a previous Lookup miss
func (c *EvalCache) Add(key positionid.Key, ctx int32, r Reward, slot uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &c.entries[slot]
	node.secondary = node.primary
	node.primary = CacheEntry{Key: key, Context: ctx, valid: true, Reward: r}

	c.adds.Add(1)
}

// Stats returns cache statistics
func (c *EvalCache) Stats() (lookups, hits, adds uint64) {
	return c.lookups.Load(), c.hits.Load(), c.adds.Load()
}

// HitRate returns the cache hit rate as a percentage
func (c *EvalCache) HitRate() float64 {
	lookups := c.lookups.Load()
	if lookups == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(lookups) * 100
}

// MakeEvalContext creates an evaluation context key from the evaluator id
// and the class the position was evaluated as.
func MakeEvalContext(evaluator int, class PositionClass, sanity bool) int32 {
	// Bit layout:
	// Bits 0-3: position class
	// Bit 4: sanity checked
	// Bits 5-30: evaluator id
	ctx := int32(class) & 0xF
	if sanity {
		ctx |= 1 << 4
	}
	ctx |= int32(evaluator&0x3FFFFFF) << 5
	return ctx
}

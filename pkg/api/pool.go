package api

import (
	"context"
	"sync/atomic"
)

// Lane bounds the number of concurrent operations of one kind.
type Lane struct {
	sem    chan struct{}
	queued atomic.Int64
	active atomic.Int64
	total  atomic.Int64
}

func newLane(size int) *Lane {
	return &Lane{sem: make(chan struct{}, size)}
}

// Acquire waits for a slot. It returns ctx.Err() if ctx ends first.
func (l *Lane) Acquire(ctx context.Context) error {
	l.queued.Add(1)
	defer l.queued.Add(-1)

	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot if one is free.
func (l *Lane) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *Lane) Release() {
	l.active.Add(-1)
	l.total.Add(1)
	<-l.sem
}

// LaneStats is a snapshot of a lane.
type LaneStats struct {
	Active int64 `json:"active"`
	Queued int64 `json:"queued"`
	Total  int64 `json:"total"`
	Max    int   `json:"max"`
}

// Stats returns the current counters of l.
func (l *Lane) Stats() LaneStats {
	return LaneStats{
		Active: l.active.Load(),
		Queued: l.queued.Load(),
		Total:  l.total.Load(),
		Max:    cap(l.sem),
	}
}

// WorkerPool separates quick requests (evaluation, move lists) from heavy
// ones (rollouts, training jobs) so that the latter cannot starve the
// former.
type WorkerPool struct {
	Quick *Lane
	Heavy *Lane
}

// PoolConfig sizes the lanes of a WorkerPool.
type PoolConfig struct {
	QuickWorkers int // default 100
	HeavyWorkers int // default 4
}

// DefaultPoolConfig returns 100 quick and 4 heavy slots.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{QuickWorkers: 100, HeavyWorkers: 4}
}

// NewWorkerPool creates a pool. Non-positive sizes take the defaults.
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	def := DefaultPoolConfig()
	if cfg.QuickWorkers <= 0 {
		cfg.QuickWorkers = def.QuickWorkers
	}
	if cfg.HeavyWorkers <= 0 {
		cfg.HeavyWorkers = def.HeavyWorkers
	}
	return &WorkerPool{Quick: newLane(cfg.QuickWorkers), Heavy: newLane(cfg.HeavyWorkers)}
}

// PoolStats reports both lanes.
type PoolStats struct {
	Quick LaneStats `json:"quick"`
	Heavy LaneStats `json:"heavy"`
}

// Stats returns the current counters of both lanes.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{Quick: p.Quick.Stats(), Heavy: p.Heavy.Stats()}
}

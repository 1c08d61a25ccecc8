package api

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLaneAcquireRelease(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{QuickWorkers: 2, HeavyWorkers: 1})

	if err := pool.Quick.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := pool.Stats().Quick.Active; got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
	pool.Quick.Release()

	st := pool.Stats().Quick
	if st.Active != 0 || st.Total != 1 {
		t.Errorf("after release: active %d total %d", st.Active, st.Total)
	}
}

func TestLaneTryAcquire(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{QuickWorkers: 10, HeavyWorkers: 2})

	for i := 0; i < 2; i++ {
		if !pool.Heavy.TryAcquire() {
			t.Fatalf("heavy slot %d refused", i)
		}
	}
	if pool.Heavy.TryAcquire() {
		t.Error("third heavy slot granted")
	}
	pool.Heavy.Release()
	pool.Heavy.Release()

	if got := pool.Stats().Heavy.Total; got != 2 {
		t.Errorf("total = %d, want 2", got)
	}
}

func TestLaneContext(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{QuickWorkers: 1, HeavyWorkers: 1})
	if err := pool.Heavy.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer pool.Heavy.Release()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Heavy.Acquire(cancelled); err != context.Canceled {
		t.Errorf("cancelled: got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := pool.Heavy.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("timeout: got %v", err)
	}
	if got := pool.Stats().Heavy.Queued; got != 0 {
		t.Errorf("queued = %d after giving up", got)
	}
}

func TestLaneConcurrency(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{QuickWorkers: 5})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Quick.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			pool.Quick.Release()
		}()
	}
	wg.Wait()

	if peak > 5 {
		t.Errorf("%d operations ran at once", peak)
	}
	if got := pool.Stats().Quick.Total; got != 20 {
		t.Errorf("total = %d, want 20", got)
	}
}

func TestPoolDefaults(t *testing.T) {
	st := NewWorkerPool(PoolConfig{}).Stats()
	def := DefaultPoolConfig()
	if st.Quick.Max != def.QuickWorkers || st.Heavy.Max != def.HeavyWorkers {
		t.Errorf("sizes %d/%d, want %d/%d", st.Quick.Max, st.Heavy.Max, def.QuickWorkers, def.HeavyWorkers)
	}
}

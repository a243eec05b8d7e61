package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d after Close, want 2 (inline execution)", ran)
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
}

// =============================================================================
// ForRows Tests
// =============================================================================

func TestWorkerPool_ForRowsCoversEveryRowOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	tests := []struct {
		rows, minRows int
	}{
		{1, 1},
		{3, 1},
		{7, 2},
		{100, 1},
		{101, 16},
		{1000, 8},
	}
	for _, tt := range tests {
		var mu sync.Mutex
		hits := make([]int, tt.rows)
		pool.ForRows(tt.rows, tt.minRows, func(start, end int) {
			mu.Lock()
			defer mu.Unlock()
			for y := start; y < end; y++ {
				hits[y]++
			}
		})
		for y, n := range hits {
			if n != 1 {
				t.Errorf("ForRows(%d, %d): row %d visited %d times, want 1", tt.rows, tt.minRows, y, n)
				break
			}
		}
	}
}

func TestWorkerPool_ForRowsZero(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	called := false
	pool.ForRows(0, 1, func(int, int) { called = true })
	if called {
		t.Error("ForRows(0) should not call fn")
	}
}

func TestWorkerPool_ForRowsSmallBandSingleSpan(t *testing.T) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	var spans atomic.Int32
	pool.ForRows(10, 64, func(start, end int) {
		spans.Add(1)
		if start != 0 || end != 10 {
			t.Errorf("span = [%d,%d), want [0,10)", start, end)
		}
	})
	if spans.Load() != 1 {
		t.Errorf("spans = %d, want 1", spans.Load())
	}
}

func BenchmarkWorkerPool_ForRows(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	buf := make([]float32, 4096*64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.ForRows(64, 4, func(start, end int) {
			for j := start * 4096; j < end*4096; j++ {
				buf[j] *= 0.5
			}
		})
	}
}

// Package workers provides bounded parallel iteration over independent work
// items, with coarse-grained cancellation and panic recovery.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PoolConfig configures the worker pool
type PoolConfig struct {
	Name          string // Pool name for logging
	NumWorkers    int    // Number of worker goroutines (<= 0 means NumCPU)
	PanicRecovery bool   // Convert panics in work items into *PanicError
}

// DefaultPoolConfig returns sensible defaults for CPU-bound work
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:          name,
		NumWorkers:    runtime.NumCPU(),
		PanicRecovery: true,
	}
}

// Pool runs indexed work items across a fixed number of goroutines.
// A Pool is safe for concurrent use; each Run call owns its goroutines.
type Pool struct {
	logger  *zap.Logger
	config  *PoolConfig
	metrics *PoolMetrics
}

// NewPool creates a new worker pool
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	cfg := *config
	config = &cfg
	if config.NumWorkers <= 0 {
		config.NumWorkers = runtime.NumCPU()
	}

	return &Pool{
		logger:  logger.Named(config.Name),
		config:  config,
		metrics: &PoolMetrics{},
	}
}

// NumWorkers returns the configured worker count.
func (p *Pool) NumWorkers() int {
	return p.config.NumWorkers
}

// Run calls fn once for every index in [0, n). ctx is checked between items,
// never inside one. The first error (or recovered panic) cancels the remaining
// items and is returned; otherwise a cancelled ctx yields ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := p.config.NumWorkers
	if numWorkers > n {
		numWorkers = n
	}

	jobs := make(chan int, numWorkers)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if runCtx.Err() != nil {
					continue // drain
				}
				if err := p.execute(i, fn); err != nil {
					p.metrics.tasksFailed.Add(1)
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				p.metrics.tasksCompleted.Add(1)
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-runCtx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	p.metrics.batches.Add(1)
	p.metrics.lastBatchNanos.Store(int64(time.Since(start)))

	if firstErr != nil {
		p.logger.Warn("batch aborted", zap.Int("items", n), zap.Error(firstErr))
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		p.logger.Debug("batch cancelled", zap.Int("items", n), zap.Error(err))
		return err
	}
	return nil
}

// execute runs one item, converting a panic into *PanicError when enabled
func (p *Pool) execute(i int, fn func(i int) error) (err error) {
	if p.config.PanicRecovery {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.panicRecovered.Add(1)
				p.logger.Error("worker recovered from panic",
					zap.Int("item", i),
					zap.Any("panic", r),
				)
				err = &PanicError{Item: i, Recovered: r}
			}
		}()
	}
	return fn(i)
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	return p.metrics.snapshot()
}

// PoolMetrics tracks pool activity across Run calls
type PoolMetrics struct {
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	panicRecovered atomic.Int64
	batches        atomic.Int64
	lastBatchNanos atomic.Int64
}

func (m *PoolMetrics) snapshot() PoolStats {
	return PoolStats{
		TasksCompleted: m.tasksCompleted.Load(),
		TasksFailed:    m.tasksFailed.Load(),
		PanicRecovered: m.panicRecovered.Load(),
		Batches:        m.batches.Load(),
		LastBatch:      time.Duration(m.lastBatchNanos.Load()),
	}
}

// PoolStats contains pool statistics
type PoolStats struct {
	TasksCompleted int64         `json:"tasks_completed"`
	TasksFailed    int64         `json:"tasks_failed"`
	PanicRecovered int64         `json:"panic_recovered"`
	Batches        int64         `json:"batches"`
	LastBatch      time.Duration `json:"last_batch"`
}

// PanicError represents a recovered panic
type PanicError struct {
	Item      int
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered in item %d: %v", e.Item, e.Recovered)
}

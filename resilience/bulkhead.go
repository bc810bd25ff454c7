package resilience

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of operations in flight.
	// Default: 10
	MaxConcurrent int

	// MaxWait is how long an operation may wait for a slot.
	// Default: 0 (no waiting, reject immediately)
	MaxWait time.Duration
}

// Bulkhead caps the number of concurrent operations so that one slow remote
// dependency cannot absorb every request-handling goroutine. The service
// uses it to bound concurrent uploads.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	active   atomic.Int64
	rejected atomic.Int64
}

// NewBulkhead validates the configuration and creates a bulkhead.
func NewBulkhead(config BulkheadConfig) (*Bulkhead, error) {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxConcurrent < 1 {
		return nil, fmt.Errorf("resilience: MaxConcurrent must be >= 1, got %d", config.MaxConcurrent)
	}

	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}, nil
}

// Acquire claims a slot, waiting up to MaxWait. It returns ErrBulkheadFull
// when no slot frees up in time and the context error if the caller is
// cancelled while waiting.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.active.Add(1)
		return nil
	}

	if b.config.MaxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		b.rejected.Add(1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadFull
	}
	b.active.Add(1)
	return nil
}

// Release frees a slot claimed by Acquire.
func (b *Bulkhead) Release() {
	b.active.Add(-1)
	b.sem.Release(1)
}

// Execute runs op inside a bulkhead slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return op(ctx)
}

// Snapshot reports bulkhead usage for diagnostics.
func (b *Bulkhead) Snapshot() BulkheadSnapshot {
	active := b.active.Load()
	return BulkheadSnapshot{
		Active:        int(active),
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}

// BulkheadSnapshot is a point-in-time view of bulkhead usage.
type BulkheadSnapshot struct {
	Active        int
	MaxConcurrent int
	Rejected      int64
}

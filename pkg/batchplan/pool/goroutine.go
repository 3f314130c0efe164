package pool

import (
	"context"
	"fmt"
	"sync"
)

// goroutinePool runs batches in the calling process. Suited to
// wait-bound work: no isolation, no transfer cost, workers share the
// caller's memory.
type goroutinePool struct {
	fn      Func
	workers int
	slots   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newGoroutinePool(workers int, fn Func) *goroutinePool {
	return &goroutinePool{
		fn:      fn,
		workers: workers,
		slots:   make(chan struct{}, workers),
	}
}

// Execute claims a worker slot, runs the batch serially on it, and
// releases the slot. Blocking on the slot channel is the backpressure
// mechanism: at most workers batches run at once.
func (p *goroutinePool) Execute(ctx context.Context, items []any) ([]Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results := make([]Result, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := p.runOne(item)
		results[i] = Result{Index: i, Value: value, Err: err}
	}
	return results, nil
}

// runOne executes the function on one item, converting a panic into a
// per-item error so one bad item cannot take down the pool.
func (p *goroutinePool) runOne(item any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return p.fn(item)
}

func (p *goroutinePool) Workers() int {
	return p.workers
}

func (p *goroutinePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

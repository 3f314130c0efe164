// Package pool provides the worker pool backends batchplan dispatches
// batches to. Two backends sit behind one contract: a shared-memory
// pool running goroutines in the calling process, and an isolated pool
// running subprocess workers that receive items over gob-encoded pipes.
//
// Functions cross the process boundary by registered name (see
// Register); items cross by gob encoding. Binaries that want the
// isolated backend must call WorkerMain at the top of main.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Func is the unit-of-work function: one item in, one result out.
type Func func(item any) (any, error)

// Result is the outcome of one item.
type Result struct {
	// Index is the item's position in the submitted dataset.
	Index int

	// Value is the function's return value, nil on error.
	Value any

	// Err is the per-item error, nil on success.
	Err error
}

// Sentinel errors shared by the pool backends.
var (
	// ErrInvalidConfig reports an invalid pool configuration. Never
	// retried; construction fails fast.
	ErrInvalidConfig = errors.New("invalid pool configuration")

	// ErrClosed reports an operation on a closed pool.
	ErrClosed = errors.New("pool is closed")
)

// Pool executes batches of items on a fixed set of workers.
//
// Execute blocks until a worker is free (backpressure under the bounded
// worker count) and the batch completes. Implementations are safe for
// concurrent Execute calls.
type Pool interface {
	// Execute runs the pool's task over items on one worker and
	// returns per-item results in item order.
	Execute(ctx context.Context, items []any) ([]Result, error)

	// Workers returns the worker count the pool was built with.
	Workers() int

	// Close stops the pool. In-flight Execute calls finish; new calls
	// return ErrClosed.
	Close() error
}

// New builds a pool for the given backend. The function must be
// registered (see Register) when the isolated backend is requested.
func New(backend types.Backend, workers int, fn Func) (Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, workers)
	}

	switch backend {
	case types.BackendShared:
		return newGoroutinePool(workers, fn), nil
	case types.BackendIsolated:
		name, ok := NameOf(fn)
		if !ok {
			return nil, fmt.Errorf("%w: function is not registered for isolated execution", ErrInvalidConfig)
		}
		return newProcessPool(workers, name)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, backend)
	}
}

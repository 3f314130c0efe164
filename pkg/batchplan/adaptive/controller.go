// Package adaptive provides the runtime batch controller. It wraps a
// worker pool, starts from the planner's batch size, and revises the
// size continuously from observed per-batch durations: batches running
// long shrink the size, batches finishing early grow it, smoothed by
// the adaptation rate.
//
// The controller's bookkeeping (window update, size recomputation,
// stats reads) runs under one mutex so completion callbacks arriving
// from multiple workers serialize safely. The lock never covers batch
// dispatch or execution.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/config"
	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Sentinel errors.
var (
	// ErrInvalidConfig reports invalid controller options. Fails fast
	// at construction, never retried.
	ErrInvalidConfig = errors.New("invalid controller configuration")

	// ErrClosed reports a submission after Close or Terminate.
	ErrClosed = errors.New("controller is closed")
)

// Options configures a Controller.
type Options struct {
	// BatchSize is the initial dispatch batch size, normally the
	// planner's decision.
	BatchSize int

	// TargetDuration is how long one batch should take.
	TargetDuration time.Duration

	// Rate is the adaptation smoothing factor in [0, 1].
	Rate float64

	// Tolerance is the relative deviation from TargetDuration below
	// which no adaptation fires.
	Tolerance float64

	// MinBatch and MaxBatch bound the adapted size. MaxBatch of 0
	// means unbounded.
	MinBatch int
	MaxBatch int

	// Window is the duration window capacity.
	Window int

	// Enabled turns adaptation on. When false the controller still
	// batches and records durations but never changes the size.
	Enabled bool

	// MaxInFlight bounds concurrently dispatched batches
	// (backpressure). Zero defaults to twice the pool's worker count.
	MaxInFlight int
}

func (o *Options) applyDefaults(workers int) {
	if o.TargetDuration <= 0 {
		o.TargetDuration = config.DefaultTargetChunkDuration
	}
	if o.Tolerance == 0 {
		o.Tolerance = config.DefaultTolerance
	}
	if o.Window <= 0 {
		o.Window = config.DefaultWindowSize
	}
	if o.MinBatch <= 0 {
		o.MinBatch = 1
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = workers * 2
	}
}

func (o *Options) validate() error {
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalidConfig, o.BatchSize)
	}
	if o.Rate < 0 || o.Rate > 1 {
		return fmt.Errorf("%w: adaptation rate must be in [0, 1], got %v", ErrInvalidConfig, o.Rate)
	}
	if o.MaxBatch != 0 && o.MaxBatch < o.MinBatch {
		return fmt.Errorf("%w: max batch %d < min batch %d", ErrInvalidConfig, o.MaxBatch, o.MinBatch)
	}
	if o.BatchSize < o.MinBatch || (o.MaxBatch != 0 && o.BatchSize > o.MaxBatch) {
		return fmt.Errorf("%w: batch size %d outside [%d, %d]", ErrInvalidConfig, o.BatchSize, o.MinBatch, o.MaxBatch)
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must be >= 0, got %v", ErrInvalidConfig, o.Tolerance)
	}
	return nil
}

// Stats is a consistent snapshot of the controller's state.
type Stats struct {
	BatchSize            int
	TotalProcessed       int64
	Adaptations          int64
	AverageBatchDuration time.Duration
	WindowDepth          int
	Enabled              bool
}

// Controller wraps a pool and adapts the batch size at runtime.
type Controller struct {
	pool     pool.Pool
	opts     Options
	ownsPool bool

	// sem bounds in-flight batches across all submissions.
	sem chan struct{}

	// wg tracks in-flight batches for Join.
	wg sync.WaitGroup

	// lifetime is cancelled by Terminate, aborting in-flight work.
	lifetime context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	size        int
	window      *durationWindow
	adaptations int64
	processed   int64
	closed      bool
}

// New creates a Controller over an existing pool. The pool remains
// owned by the caller.
func New(p pool.Pool, opts Options) (*Controller, error) {
	opts.applyDefaults(p.Workers())
	if err := opts.validate(); err != nil {
		return nil, err
	}

	lifetime, cancel := context.WithCancel(context.Background())
	return &Controller{
		pool:     p,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxInFlight),
		lifetime: lifetime,
		cancel:   cancel,
		size:     opts.BatchSize,
		window:   newDurationWindow(opts.Window),
	}, nil
}

// NewFromDecision builds the pool the decision calls for and a
// controller seeded with its batch size. The controller owns the pool
// and closes it on Join-after-Close or Terminate.
func NewFromDecision(d types.Decision, fn pool.Func, cfg config.AdaptiveConfig) (*Controller, error) {
	p, err := pool.New(d.Backend, d.Workers, fn)
	if err != nil {
		return nil, err
	}

	c, err := New(p, Options{
		BatchSize:      d.BatchSize,
		Rate:           cfg.Rate,
		Tolerance:      cfg.Tolerance,
		Window:         cfg.Window,
		Enabled:        d.Adaptive,
		TargetDuration: config.DefaultTargetChunkDuration,
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	c.ownsPool = true
	return c, nil
}

// Map executes the items and returns results in input order, buffering
// early arrivals. It blocks until every batch completes.
func (c *Controller) Map(ctx context.Context, items []any) ([]pool.Result, error) {
	results := make([]pool.Result, len(items))
	var resultsMu sync.Mutex

	err := c.run(ctx, items, func(offset int, batch []pool.Result) {
		resultsMu.Lock()
		for i, r := range batch {
			r.Index = offset + i
			results[offset+i] = r
		}
		resultsMu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// IMapUnordered executes the items and streams results as batches
// complete, with no ordering guarantee but no loss or duplication.
// A batch-level failure crosses as per-item results carrying the
// error, so every submitted item is delivered exactly once. The
// channel closes when all batches have drained.
func (c *Controller) IMapUnordered(ctx context.Context, items []any) (<-chan pool.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	out := make(chan pool.Result, len(items))
	go func() {
		defer close(out)
		// The run error is redundant here: failed batches have already
		// crossed as per-item error results.
		_ = c.run(ctx, items, func(offset int, batch []pool.Result) {
			for i, r := range batch {
				r.Index = offset + i
				out <- r
			}
		})
	}()
	return out, nil
}

// Submit executes the items for their side effects, discarding values.
// It returns the first lifecycle error; per-item errors are dropped.
func (c *Controller) Submit(ctx context.Context, items []any) error {
	return c.run(ctx, items, func(int, []pool.Result) {})
}

// run is the dispatch core shared by Map, IMapUnordered, and Submit.
// It slices items into batches of the current size, dispatches them to
// the pool under the in-flight bound, and blocks until this call's
// batches complete. deliver may be called from multiple goroutines.
// Every item is delivered exactly once: a failed or cancelled batch is
// delivered with each item carrying the batch's error.
func (c *Controller) run(ctx context.Context, items []any, deliver func(offset int, results []pool.Result)) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	// Terminate aborts this call by cancelling its context.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stop := context.AfterFunc(c.lifetime, cancelRun)
	defer stop()

	// Small inputs bypass adaptation entirely: batching and window
	// tracking are not worth their overhead for a couple of batches.
	if len(items) <= c.currentSize()*2 {
		return c.runDirect(runCtx, items, deliver)
	}

	var callWg sync.WaitGroup
	var errsMu sync.Mutex
	var errs []error

	offset := 0
	for offset < len(items) {
		// Re-read under lock: adaptations apply to every subsequent
		// dispatch, never to batches already in flight.
		size := c.currentSize()
		end := min(offset+size, len(items))
		batch := items[offset:end]

		select {
		case c.sem <- struct{}{}:
		case <-runCtx.Done():
			callWg.Wait()
			deliver(offset, failureResults(len(items)-offset, runCtx.Err()))
			return runCtx.Err()
		}

		callWg.Add(1)
		c.wg.Add(1)
		go func(off int, batch []any) {
			defer callWg.Done()
			defer c.wg.Done()
			defer func() { <-c.sem }()

			start := time.Now()
			results, err := c.pool.Execute(runCtx, batch)
			c.observe(time.Since(start), len(batch))

			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
				deliver(off, failureResults(len(batch), err))
				return
			}
			deliver(off, results)
		}(offset, batch)

		offset = end
	}

	callWg.Wait()

	errsMu.Lock()
	defer errsMu.Unlock()
	return errors.Join(errs...)
}

// runDirect dispatches the whole input as one batch with no window
// recording and no adaptation.
func (c *Controller) runDirect(ctx context.Context, items []any, deliver func(int, []pool.Result)) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		deliver(0, failureResults(len(items), ctx.Err()))
		return ctx.Err()
	}

	c.wg.Add(1)
	defer c.wg.Done()
	defer func() { <-c.sem }()

	results, err := c.pool.Execute(ctx, items)
	if err != nil {
		deliver(0, failureResults(len(items), err))
		return err
	}

	c.mu.Lock()
	c.processed += int64(len(items))
	c.mu.Unlock()

	deliver(0, results)
	return nil
}

// failureResults spreads a batch-level error across the batch's items
// so unordered consumers still see every item.
func failureResults(n int, err error) []pool.Result {
	results := make([]pool.Result, n)
	for i := range results {
		results[i] = pool.Result{Err: err}
	}
	return results
}

// observe records one completed batch and, when adaptation is enabled
// and the window average strays beyond tolerance from the target,
// recomputes the batch size:
//
//	newSize = size * (1 + rate*(target/avg - 1))
//
// rounded and clipped to [MinBatch, MaxBatch]. The lock covers only
// this O(1) update.
func (c *Controller) observe(d time.Duration, batchLen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.observe(d)
	c.processed += int64(batchLen)

	if !c.opts.Enabled {
		return
	}

	avg := c.window.average()
	if avg <= 0 {
		return
	}
	target := c.opts.TargetDuration
	deviation := math.Abs(float64(avg-target)) / float64(target)
	if deviation <= c.opts.Tolerance {
		return
	}

	factor := 1 + c.opts.Rate*(float64(target)/float64(avg)-1)
	newSize := int(math.Round(float64(c.size) * factor))
	newSize = max(newSize, c.opts.MinBatch)
	if c.opts.MaxBatch > 0 {
		newSize = min(newSize, c.opts.MaxBatch)
	}

	if newSize != c.size {
		logging.Get("adaptive").Debug("batch size adapted",
			"from", c.size, "to", newSize, "window_avg", avg, "target", target)
		c.size = newSize
		c.adaptations++
	}
}

// currentSize reads the batch size under the lock.
func (c *Controller) currentSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Stats returns a consistent snapshot, read under the same lock the
// completion callbacks mutate under. Valid after Close and Terminate.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		BatchSize:            c.size,
		TotalProcessed:       c.processed,
		Adaptations:          c.adaptations,
		AverageBatchDuration: c.window.average(),
		WindowDepth:          c.window.depth(),
		Enabled:              c.opts.Enabled,
	}
}

// Close stops new submissions. In-flight batches keep running; use
// Join to wait for them. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Join blocks until in-flight batches drain. If the controller owns its
// pool and is closed, the pool is closed as well.
func (c *Controller) Join() error {
	c.wg.Wait()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed && c.ownsPool {
		return c.pool.Close()
	}
	return nil
}

// Terminate cancels in-flight batches irreversibly, discards their
// results, and moves the controller to the closed state.
func (c *Controller) Terminate() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.ownsPool {
		return c.pool.Close()
	}
	return nil
}

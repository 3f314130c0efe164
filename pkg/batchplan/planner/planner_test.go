package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/batchplan/pkg/batchplan/config"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/sampler"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

var (
	sleepTask = func(item any) (any, error) {
		time.Sleep(3 * time.Millisecond)
		return item, nil
	}
	spinTask = func(item any) (any, error) {
		deadline := time.Now().Add(2 * time.Millisecond)
		n := 0
		for time.Now().Before(deadline) {
			n++
		}
		return n, nil
	}
)

func init() {
	pool.Register("planner-test-sleep", sleepTask)
	pool.Register("planner-test-spin", spinTask)
	pool.RegisterType(0)
}

// stubProfiler returns fixed capacity readings so decisions do not
// depend on the machine running the tests.
type stubProfiler struct {
	prof types.SystemProfile
	err  error
}

func (s stubProfiler) Profile(ctx context.Context, strategy types.SpawnStrategy) (types.SystemProfile, error) {
	return s.prof, s.err
}

func eightCores() stubProfiler {
	return stubProfiler{prof: types.SystemProfile{
		PhysicalCores:   8,
		LogicalCores:    16,
		AvailableMemory: 8 << 30,
		SpawnCost:       10 * time.Microsecond,
	}}
}

func intItems(n int) *sampler.Dataset {
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}
	return sampler.FromSlice(items)
}

func TestDecideEmptyDataset(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), sleepTask, sampler.FromSlice(nil), Constraints{})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonEmptyDataset, d.Reason)
}

func TestDecideSingleItem(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), sleepTask, intItems(1), Constraints{})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonSingleItem, d.Reason)
}

func TestDecideSamplingFailed(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))
	fail := func(item any) (any, error) { return nil, errors.New("broken") }

	d, err := p.Decide(context.Background(), fail, intItems(10), Constraints{})
	assert.ErrorIs(t, err, sampler.ErrSamplingFailed)
	// The error still comes with a usable serial decision.
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonSamplingFailed, d.Reason)
}

func TestDecideNotTransferable(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))
	anon := func(item any) (any, error) { return item, nil }

	d, err := p.Decide(context.Background(), anon, intItems(50), Constraints{
		PreferredBackend: types.BackendIsolated,
	})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonNotTransferable, d.Reason)
}

func TestDecideWaitBoundGetsSharedWorkers(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)
	assert.False(t, d.Serial())
	assert.Equal(t, types.BackendShared, d.Backend)
	assert.Equal(t, types.ReasonCostModel, d.Reason)
	assert.Equal(t, types.WorkloadWaitBound, d.Diagnostics.WorkloadClass)
}

func TestDecideComputeBoundGetsIsolatedWorkers(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), spinTask, intItems(512), Constraints{})
	require.NoError(t, err)
	// Spinning is never wait-bound, so classification lands on the
	// isolated backend whether it reads compute-bound or mixed.
	if !d.Serial() {
		assert.Equal(t, types.BackendIsolated, d.Backend)
	}
}

func TestDecideMemoryConstrained(t *testing.T) {
	profiler := stubProfiler{prof: types.SystemProfile{
		PhysicalCores:   8,
		LogicalCores:    8,
		AvailableMemory: 1 << 30,
		SpawnCost:       10 * time.Microsecond,
	}}
	p := New(config.Default(), WithProfiler(profiler))

	d, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{
		MemoryPerWorker: 1 << 30,
	})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonMemoryConstrained, d.Reason)
}

// Items orders of magnitude cheaper than worker creation: no candidate
// clears the benefit threshold all the way through Decide, and the
// outcome is a serial decision with speedup pinned at 1.0.
func TestDecideOverheadDominatedWorkloadStaysSerial(t *testing.T) {
	profiler := stubProfiler{prof: types.SystemProfile{
		PhysicalCores:   8,
		LogicalCores:    16,
		AvailableMemory: 8 << 30,
		SpawnCost:       500 * time.Millisecond,
	}}
	p := New(config.Default(), WithProfiler(profiler))

	d, err := p.Decide(context.Background(), spinTask, intItems(200), Constraints{})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonSerialOptimal, d.Reason)
	assert.Equal(t, 1.0, d.EstimatedSpeedup)
	assert.Equal(t, types.BackendShared, d.Backend)
}

// Workers 2 through 4 fit in memory and lose on speedup; the memory
// break at 5 must not relabel a plain serial-optimal outcome.
func TestDecideSerialOptimalWhenCandidatesLoseBeforeMemoryBreak(t *testing.T) {
	profiler := stubProfiler{prof: types.SystemProfile{
		PhysicalCores:   8,
		LogicalCores:    16,
		AvailableMemory: 8 << 30,
		SpawnCost:       500 * time.Millisecond,
	}}
	p := New(config.Default(), WithProfiler(profiler))

	// Budget is 0.8 * 8 GiB = 6.4 GiB: four workers at 1.5 GiB fit,
	// five do not.
	d, err := p.Decide(context.Background(), spinTask, intItems(200), Constraints{
		MemoryPerWorker: 3 << 29,
	})
	require.NoError(t, err)
	assert.True(t, d.Serial())
	assert.Equal(t, types.ReasonSerialOptimal, d.Reason)
}

func TestDecideRespectsWorkerBounds(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{MaxWorkers: 3})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d.Workers, 1)
	assert.LessOrEqual(t, d.Workers, 3)
	assert.GreaterOrEqual(t, d.BatchSize, 1)
	assert.LessOrEqual(t, d.BatchSize, 64)
}

func TestDecideInternalThreadsDivideTheCap(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	d, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{InternalThreads: 4})
	require.NoError(t, err)
	// 8 physical cores shared with 4 internal threads per worker.
	assert.LessOrEqual(t, d.Workers, 2)
}

func TestDecideIdempotent(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	first, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)
	second, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)

	assert.Equal(t, first.Workers, second.Workers)
	assert.Equal(t, first.Backend, second.Backend)
	assert.Equal(t, first.Reason, second.Reason)
}

func TestDecideAcceptsConfidentHint(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))
	var calls atomic.Int64
	counting := func(item any) (any, error) {
		calls.Add(1)
		return item, nil
	}

	d, err := p.Decide(context.Background(), counting, intItems(100), Constraints{
		Hint:           &Hint{Workers: 4, BatchSize: 16, Confidence: 0.9},
		HintConfidence: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, d.Workers)
	assert.Equal(t, 16, d.BatchSize)
	assert.Equal(t, types.ReasonAdvisorHint, d.Reason)
	assert.Zero(t, calls.Load(), "an accepted hint skips sampling")
}

func TestDecideRejectsWeakHint(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))
	var calls atomic.Int64
	counting := func(item any) (any, error) {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return item, nil
	}

	d, err := p.Decide(context.Background(), counting, intItems(20), Constraints{
		Hint:           &Hint{Workers: 4, BatchSize: 16, Confidence: 0.5},
		HintConfidence: 0.8,
	})
	require.NoError(t, err)
	assert.NotEqual(t, types.ReasonAdvisorHint, d.Reason)
	assert.Positive(t, calls.Load(), "a weak hint falls back to measurement")
}

type memCache struct {
	data   map[string]types.Decision
	getErr error
	puts   int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]types.Decision)}
}

func (c *memCache) Get(key string) (types.Decision, bool, error) {
	if c.getErr != nil {
		return types.Decision{}, false, c.getErr
	}
	d, ok := c.data[key]
	return d, ok, nil
}

func (c *memCache) Put(key string, d types.Decision) error {
	c.puts++
	c.data[key] = d
	return nil
}

func TestDecideUsesDecisionCache(t *testing.T) {
	cache := newMemCache()
	p := New(config.Default(), WithProfiler(eightCores()), WithDecisionCache(cache))

	first, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)
	require.Equal(t, 1, cache.puts)

	second, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "second call replays the stored decision")
	assert.Equal(t, 1, cache.puts)
}

func TestDecideCacheErrorIsAMiss(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("store offline")
	p := New(config.Default(), WithProfiler(eightCores()), WithDecisionCache(cache))

	d, err := p.Decide(context.Background(), sleepTask, intItems(64), Constraints{})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
}

func TestCacheKeyRequiresRegisteredFunction(t *testing.T) {
	anon := func(item any) (any, error) { return item, nil }
	_, ok := cacheKey(anon, 10)
	assert.False(t, ok)

	key, ok := cacheKey(sleepTask, 10)
	require.True(t, ok)
	assert.Equal(t, "v1/planner-test-sleep/10", key)
}

func TestBatchFor(t *testing.T) {
	p := New(config.Default(), WithProfiler(eightCores()))

	// 200ms target / 50ms per item.
	assert.Equal(t, 4, p.batchFor(50*time.Millisecond, 1000, 8))
	// Cheap items clip at the per-worker share.
	assert.Equal(t, 125, p.batchFor(time.Microsecond, 1000, 8))
	// Expensive items never go below one.
	assert.Equal(t, 1, p.batchFor(time.Second, 1000, 8))
}

// Package profile provides system capacity detection and worker
// spawn-cost measurement for the batchplan planner. It detects CPU
// cores and available memory (container-aware on linux), and measures
// the one-time cost of creating a worker under each spawn strategy.
//
// Measurements are expensive and noisy, so the package keeps a
// process-wide profiler whose readings are cached behind TTLs. A
// concurrent caller that arrives while a measurement is in flight
// blocks and reuses that measurement instead of starting its own.
package profile

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/config"
	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Options configures a Profiler. Zero values select defaults.
type Options struct {
	// SpawnTTL is how long a spawn-cost measurement stays fresh.
	SpawnTTL time.Duration

	// MemoryTTL is how long a memory reading stays fresh.
	MemoryTTL time.Duration

	// MeasureTimeout bounds a single spawn-cost probe.
	MeasureTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.SpawnTTL <= 0 {
		o.SpawnTTL = config.DefaultSpawnCostTTL
	}
	if o.MemoryTTL <= 0 {
		o.MemoryTTL = config.DefaultMemoryTTL
	}
	if o.MeasureTimeout <= 0 {
		o.MeasureTimeout = config.DefaultSpawnMeasureTimeout
	}
}

type cachedSpawn struct {
	cost       time.Duration
	measuredAt time.Time
}

type cachedMemory struct {
	bytes      int64
	measuredAt time.Time
}

// Profiler measures and caches system capacity and spawn costs.
type Profiler struct {
	opts Options

	mu     sync.Mutex
	spawn  map[types.SpawnStrategy]cachedSpawn
	memory cachedMemory
}

// New creates a Profiler with the given options.
func New(opts Options) *Profiler {
	opts.applyDefaults()
	return &Profiler{
		opts:  opts,
		spawn: make(map[types.SpawnStrategy]cachedSpawn),
	}
}

// Default is the process-wide profiler shared by planning calls.
var Default = New(Options{})

// Profile returns a SystemProfile for the given spawn strategy, reusing
// cached readings when fresh.
func (p *Profiler) Profile(ctx context.Context, strategy types.SpawnStrategy) (types.SystemProfile, error) {
	physical, logical := Cores()

	mem, err := p.AvailableMemory()
	if err != nil {
		return types.SystemProfile{}, err
	}

	cost, at := p.SpawnCost(ctx, strategy)

	return types.SystemProfile{
		PhysicalCores:   physical,
		LogicalCores:    logical,
		AvailableMemory: mem,
		Strategy:        strategy,
		SpawnCost:       cost,
		MeasuredAt:      at,
	}, nil
}

// SpawnCost returns the cached spawn cost for the strategy, measuring
// it if the cache is empty or stale. The lock is held across the
// measurement so concurrent callers share one probe. Implausible or
// failed measurements fall back to a static per-strategy estimate and
// are never surfaced as errors.
func (p *Profiler) SpawnCost(ctx context.Context, strategy types.SpawnStrategy) (time.Duration, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.spawn[strategy]; ok && time.Since(cached.measuredAt) < p.opts.SpawnTTL {
		return cached.cost, cached.measuredAt
	}

	cost := p.measureSpawnCost(ctx, strategy)
	entry := cachedSpawn{cost: cost, measuredAt: time.Now()}
	p.spawn[strategy] = entry
	return entry.cost, entry.measuredAt
}

// measureSpawnCost runs one probe and validates it against the
// strategy's plausibility bounds. Callers hold p.mu.
func (p *Profiler) measureSpawnCost(ctx context.Context, strategy types.SpawnStrategy) time.Duration {
	logger := logging.Get("profile")

	ctx, cancel := context.WithTimeout(ctx, p.opts.MeasureTimeout)
	defer cancel()

	measured, err := probeSpawn(ctx, strategy)
	if err != nil {
		logger.Debug("spawn probe failed, using static estimate",
			"strategy", strategy, "error", err, "estimate", fallbackSpawnCost(strategy))
		return fallbackSpawnCost(strategy)
	}

	bounds := spawnBounds(strategy)
	if measured < bounds.min || measured > bounds.max {
		logger.Debug("spawn probe implausible, using static estimate",
			"strategy", strategy, "measured", measured,
			"min", bounds.min, "max", bounds.max)
		return fallbackSpawnCost(strategy)
	}

	logger.Debug("spawn cost measured", "strategy", strategy, "cost", measured)
	return measured
}

// AvailableMemory returns memory available to this process in bytes,
// cached behind a short TTL. On containerized hosts the cgroup memory
// ceiling caps the host reading.
func (p *Profiler) AvailableMemory() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.memory.bytes > 0 && time.Since(p.memory.measuredAt) < p.opts.MemoryTTL {
		return p.memory.bytes, nil
	}

	host, err := detectAvailableMemory()
	if err != nil {
		return 0, err
	}

	if limit, ok := containerMemoryLimit(); ok && limit < host {
		host = limit
	}

	p.memory = cachedMemory{bytes: host, measuredAt: time.Now()}
	return host, nil
}

// Invalidate drops all cached readings. The next call re-measures.
func (p *Profiler) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawn = make(map[types.SpawnStrategy]cachedSpawn)
	p.memory = cachedMemory{}
}

// Cores returns the physical and logical core counts. Physical core
// detection is platform-specific and falls back to the logical count.
func Cores() (physical, logical int) {
	logical = runtime.NumCPU()
	physical = detectPhysicalCores()
	if physical <= 0 || physical > logical {
		physical = logical
	}
	return physical, logical
}

// Package planner turns a profiled system and a sampled workload into
// a Decision: how many workers, what batch size, which backend, and
// whether runtime adaptation should run. The planner holds no state
// across calls; identical inputs with warm profiler caches yield
// identical decisions.
package planner

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/batchplan/pkg/batchplan/config"
	"github.com/jamesainslie/batchplan/pkg/batchplan/costmodel"
	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/profile"
	"github.com/jamesainslie/batchplan/pkg/batchplan/sampler"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Constraints carries the caller's knowledge and limits into one
// planning call. The zero value defers everything to configuration
// defaults and measurement.
type Constraints struct {
	// MaxWorkers caps the candidate worker counts. Zero means no cap
	// beyond physical cores.
	MaxWorkers int

	// InternalThreads declares that the function itself runs this many
	// threads internally; candidate worker counts are divided
	// accordingly to avoid oversubscription.
	InternalThreads int

	// MemoryPerWorker is the caller's estimate of bytes each worker
	// will claim. Zero disables the memory admission check.
	MemoryPerWorker int64

	// PreferredBackend overrides the workload-class backend choice.
	PreferredBackend types.Backend

	// EnableAdaptation requests runtime batch size adaptation.
	EnableAdaptation bool

	// Hint is an optional precomputed plan from an external advisor.
	Hint *Hint

	// HintConfidence is the confidence threshold a hint must clear to
	// be accepted without running the measurement path.
	HintConfidence float64
}

// SystemProfiler abstracts the capacity source so callers can inject
// fixed readings. The profile package's Profiler satisfies it.
type SystemProfiler interface {
	Profile(ctx context.Context, strategy types.SpawnStrategy) (types.SystemProfile, error)
}

// Planner plans parallel execution. It is safe for concurrent use.
type Planner struct {
	cfg      *config.Config
	profiler SystemProfiler
	cache    DecisionCache
}

// Option configures a Planner.
type Option func(*Planner)

// WithProfiler replaces the process-wide profiler.
func WithProfiler(p SystemProfiler) Option {
	return func(pl *Planner) { pl.profiler = p }
}

// WithDecisionCache attaches an optional decision cache. Cache errors
// never abort planning; they behave as misses.
func WithDecisionCache(c DecisionCache) Option {
	return func(pl *Planner) { pl.cache = c }
}

// New creates a Planner with the given configuration.
func New(cfg *config.Config, opts ...Option) *Planner {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Planner{cfg: cfg, profiler: profile.Default}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide plans the execution of fn over data.
//
// Degradations never panic and almost never error: untransferable
// functions, empty datasets, and memory pressure all produce a serial
// or reduced Decision carrying a machine-checkable reason. The one
// surfaced error is total sampling failure, which still comes with a
// usable serial Decision.
func (p *Planner) Decide(ctx context.Context, fn pool.Func, data *sampler.Dataset, cons Constraints) (types.Decision, error) {
	logger := logging.Get("planner")

	if d, ok := p.acceptHint(cons); ok {
		logger.Info("accepted advisor hint", "workers", d.Workers, "batch", d.BatchSize, "confidence", cons.Hint.Confidence)
		return d, nil
	}

	items := data.Materialize()
	n := len(items)
	switch n {
	case 0:
		return p.serialDecision(types.ReasonEmptyDataset, types.Diagnostics{}), nil
	case 1:
		return p.serialDecision(types.ReasonSingleItem, types.Diagnostics{TotalItems: 1}), nil
	}

	if cached, ok := p.cachedDecision(fn, n); ok {
		logger.Debug("decision cache hit", "workers", cached.Workers, "batch", cached.BatchSize)
		return cached, nil
	}

	report, err := sampler.Sample(fn, data, p.cfg.Planner.SampleSize)
	if err != nil {
		if errors.Is(err, sampler.ErrSamplingFailed) {
			return p.serialDecision(types.ReasonSamplingFailed, types.Diagnostics{TotalItems: n}), err
		}
		return types.Decision{}, err
	}

	backend := classifyBackend(report.Class, cons.PreferredBackend)
	if backend == types.BackendIsolated {
		if terr := report.CheckTransferability(fn, items[0]); terr != nil {
			logger.Info("falling back to serial: workload cannot cross the isolation boundary", "error", terr)
			diag := p.diagnostics(types.SystemProfile{}, report, n, backend, 1, 1)
			return p.serialDecision(types.ReasonNotTransferable, diag), nil
		}
	}

	prof, err := p.profiler.Profile(ctx, strategyFor(backend))
	if err != nil {
		return types.Decision{}, err
	}

	decision := p.search(prof, report, n, backend, cons)
	decision.ID = uuid.NewString()
	decision.CreatedAt = time.Now()

	p.storeDecision(fn, n, decision)

	logger.Info("decision made",
		"workers", decision.Workers,
		"batch", decision.BatchSize,
		"backend", decision.Backend,
		"speedup", decision.EstimatedSpeedup,
		"reason", decision.Reason)
	return decision, nil
}

// search runs the candidate sweep: for each admissible worker count,
// derive the batch size from the target chunk duration, evaluate the
// cost model, and keep the best estimate.
func (p *Planner) search(prof types.SystemProfile, report *sampler.Report, n int, backend types.Backend, cons Constraints) types.Decision {
	inputs := costmodel.Inputs{
		PerItem:    report.PerItem,
		TotalItems: n,
		SpawnCost:  prof.SpawnCost,
		ItemBytes:  report.ItemBytes,
		Backend:    backend,
	}

	maxWorkers := min(prof.PhysicalCores, n)
	if cons.MaxWorkers > 0 {
		maxWorkers = min(maxWorkers, cons.MaxWorkers)
	}
	if cons.InternalThreads > 1 {
		// The function parallelizes internally; dividing the cap keeps
		// total threads at physical capacity.
		maxWorkers = min(maxWorkers, max(1, prof.PhysicalCores/cons.InternalThreads))
	}
	maxWorkers = max(maxWorkers, 1)

	best := costmodel.Estimate(1, p.batchFor(report.PerItem, n, 1), inputs)
	memoryBreakAt := 0

	for workers := 2; workers <= maxWorkers; workers++ {
		if !p.memoryAdmits(prof, cons, workers) {
			// Larger counts only claim more; stop the sweep here.
			memoryBreakAt = workers
			break
		}
		est := costmodel.Estimate(workers, p.batchFor(report.PerItem, n, workers), inputs)
		if est.Speedup > best.Speedup {
			best = est
		}
	}

	reason := types.ReasonCostModel
	if best.Workers == 1 || best.Speedup < p.cfg.Planner.MinBenefit {
		if memoryBreakAt == 2 {
			// Memory eliminated every multi-worker candidate before one
			// could be evaluated. A break later in the sweep means the
			// evaluated candidates lost on speedup, which is plain
			// serial-optimal.
			reason = types.ReasonMemoryConstrained
		} else {
			reason = types.ReasonSerialOptimal
		}
		best = costmodel.Estimate(1, p.batchFor(report.PerItem, n, 1), inputs)
	} else if memoryBreakAt > 0 {
		// Parallel still won, but with fewer workers than the cost
		// model would otherwise have explored.
		reason = types.ReasonMemoryConstrained
	}

	batch := best.BatchSize
	adaptive := cons.EnableAdaptation
	if adaptive && report.Variability() > p.cfg.Planner.HighVariability {
		// Heterogeneous items: start smaller and let the runtime
		// controller find the right size.
		batch = max(1, batch/2)
	}

	serial := best.Workers == 1
	finalBackend := backend
	if serial {
		finalBackend = types.BackendShared
	}

	return types.Decision{
		Workers:          best.Workers,
		BatchSize:        batch,
		Backend:          finalBackend,
		EstimatedSpeedup: best.Speedup,
		Reason:           reason,
		Adaptive:         adaptive && !serial,
		Diagnostics:      p.diagnostics(prof, report, n, finalBackend, best.Workers, batch),
	}
}

// batchFor derives the batch size that makes one batch last the target
// chunk duration, clipped to [1, ceil(n/workers)] so every worker gets
// at least one batch.
func (p *Planner) batchFor(perItem time.Duration, n, workers int) int {
	target := p.cfg.Planner.TargetChunkDuration
	batch := 1
	if perItem > 0 {
		batch = int(math.Round(float64(target) / float64(perItem)))
	}
	upper := (n + workers - 1) / workers
	return min(max(batch, 1), max(upper, 1))
}

// memoryAdmits checks the memory admission constraint for a worker
// count: the worker set may claim at most the configured fraction of
// available memory.
func (p *Planner) memoryAdmits(prof types.SystemProfile, cons Constraints, workers int) bool {
	if cons.MemoryPerWorker <= 0 {
		return true
	}
	budget := float64(prof.AvailableMemory) * p.cfg.Planner.MemoryFraction
	return float64(cons.MemoryPerWorker)*float64(workers) <= budget
}

// classifyBackend picks the worker flavour: wait-bound work shares
// memory (isolation buys nothing and spawn/transfer cost something),
// compute-bound and mixed work gets isolated workers. A caller
// preference overrides.
func classifyBackend(class types.WorkloadClass, preferred types.Backend) types.Backend {
	if preferred != "" {
		return preferred
	}
	if class == types.WorkloadWaitBound {
		return types.BackendShared
	}
	return types.BackendIsolated
}

func strategyFor(backend types.Backend) types.SpawnStrategy {
	if backend == types.BackendIsolated {
		return types.StrategyExec
	}
	return types.StrategyGoroutine
}

// serialDecision builds the degraded workers=1 decision for the given
// reason.
func (p *Planner) serialDecision(reason types.Reason, diag types.Diagnostics) types.Decision {
	diag.Backend = types.BackendShared
	diag.Bottleneck = types.BottleneckCompute
	return types.Decision{
		ID:               uuid.NewString(),
		Workers:          1,
		BatchSize:        1,
		Backend:          types.BackendShared,
		EstimatedSpeedup: 1.0,
		Reason:           reason,
		Diagnostics:      diag,
		CreatedAt:        time.Now(),
	}
}

// diagnostics assembles the structured profile exposed for external
// reporting.
func (p *Planner) diagnostics(prof types.SystemProfile, report *sampler.Report, n int, backend types.Backend, workers, batch int) types.Diagnostics {
	return types.Diagnostics{
		PhysicalCores:   prof.PhysicalCores,
		LogicalCores:    prof.LogicalCores,
		AvailableMemory: prof.AvailableMemory,
		SpawnCost:       prof.SpawnCost,
		PerItemTime:     report.PerItem,
		ItemBytes:       report.ItemBytes,
		TotalItems:      n,
		WorkloadClass:   report.Class,
		Variability:     report.Variability(),
		Backend:         backend,
		Bottleneck: costmodel.Bottleneck(workers, batch, costmodel.Inputs{
			PerItem:    report.PerItem,
			TotalItems: n,
			SpawnCost:  prof.SpawnCost,
			ItemBytes:  report.ItemBytes,
			Backend:    backend,
		}),
	}
}

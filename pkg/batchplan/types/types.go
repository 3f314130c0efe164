// Package types provides core data types for the batchplan parallel
// execution planner. It includes the system profile, workload samples,
// cost estimates, and the Decision record produced by the planner,
// along with the enumerations shared across packages.
package types

import (
	"time"
)

// Backend identifies the worker pool flavour a Decision selects.
type Backend string

// Supported worker backends.
const (
	// BackendIsolated runs work in subprocess workers. Items and results
	// cross the process boundary; functions are addressed by registered name.
	BackendIsolated Backend = "isolated_worker"

	// BackendShared runs work in goroutines inside the calling process.
	// No transfer cost, no isolation.
	BackendShared Backend = "shared_memory_worker"
)

// WorkloadClass categorizes a workload by how it spends wall time.
type WorkloadClass string

// Workload classifications derived from the sampled CPU ratio.
const (
	WorkloadComputeBound WorkloadClass = "compute_bound"
	WorkloadWaitBound    WorkloadClass = "wait_bound"
	WorkloadMixed        WorkloadClass = "mixed"
)

// CPU-ratio thresholds for workload classification.
const (
	computeBoundRatio = 0.7
	waitBoundRatio    = 0.3
)

// ClassifyCPURatio maps a busy/wall ratio to a workload class.
func ClassifyCPURatio(ratio float64) WorkloadClass {
	switch {
	case ratio >= computeBoundRatio:
		return WorkloadComputeBound
	case ratio < waitBoundRatio:
		return WorkloadWaitBound
	default:
		return WorkloadMixed
	}
}

// SpawnStrategy identifies how a worker comes into existence.
type SpawnStrategy string

// Worker creation strategies, each with its own spawn-cost profile.
const (
	// StrategyExec starts a cold subprocess via exec of the host binary.
	StrategyExec SpawnStrategy = "exec"

	// StrategyWarmPool reuses a pre-started subprocess worker.
	StrategyWarmPool SpawnStrategy = "warm_pool"

	// StrategyGoroutine starts a goroutine in the calling process.
	StrategyGoroutine SpawnStrategy = "goroutine"
)

// Worker subprocess handshake. The host binary must call
// pool.WorkerMain early in main; it inspects this variable and either
// serves jobs, exits immediately (spawn probe), or returns control to
// the host program.
const (
	// WorkerModeEnv is the environment variable that marks a process
	// as a batchplan worker subprocess.
	WorkerModeEnv = "BATCHPLAN_WORKER_MODE"

	// WorkerModeServe makes the process serve jobs over stdin/stdout.
	WorkerModeServe = "serve"

	// WorkerModeProbe makes the process exit immediately; used to time
	// bare process creation.
	WorkerModeProbe = "probe"
)

// SystemProfile describes the machine capacity and worker creation cost
// observed at planning time. Profiles are produced by the profile package
// and cached process-wide with a TTL.
type SystemProfile struct {
	// PhysicalCores is the number of physical CPU cores.
	PhysicalCores int `json:"physical_cores"`

	// LogicalCores is the number of logical CPU cores (runtime.NumCPU).
	LogicalCores int `json:"logical_cores"`

	// AvailableMemory is the memory available to this process in bytes.
	// On containerized hosts this is the minimum of host capacity and
	// the cgroup memory ceiling.
	AvailableMemory int64 `json:"available_memory"`

	// Strategy is the worker creation strategy the spawn cost was
	// measured for.
	Strategy SpawnStrategy `json:"strategy"`

	// SpawnCost is the measured (or estimated) one-time cost of
	// creating a single worker. Always positive.
	SpawnCost time.Duration `json:"spawn_cost"`

	// MeasuredAt is when the spawn cost was measured.
	MeasuredAt time.Time `json:"measured_at"`
}

// Sample records the observed timing of a single serially-executed item.
type Sample struct {
	// Index is the item's position in the dataset.
	Index int `json:"index"`

	// Wall is the elapsed wall-clock time for the item.
	Wall time.Duration `json:"wall"`

	// Busy is the process CPU time consumed while the item ran.
	Busy time.Duration `json:"busy"`
}

// CPURatio returns busy/wall, the fraction of wall time spent computing.
// Ratios above 1.0 (possible when the runtime runs helper goroutines on
// other cores) are clamped.
func (s Sample) CPURatio() float64 {
	if s.Wall <= 0 {
		return 0
	}
	r := float64(s.Busy) / float64(s.Wall)
	if r > 1.0 {
		return 1.0
	}
	return r
}

// CostEstimate is the evaluation of one (workers, batchSize) candidate.
// Estimates are ephemeral; the planner keeps the survivors in the
// Decision diagnostics.
type CostEstimate struct {
	// Workers is the candidate worker count.
	Workers int `json:"workers"`

	// BatchSize is the candidate dispatch batch size.
	BatchSize int `json:"batch_size"`

	// Speedup is the estimated speedup over serial execution.
	// Exactly 1.0 when Workers is 1.
	Speedup float64 `json:"speedup"`

	// Rationale summarizes the dominant terms of the estimate.
	Rationale string `json:"rationale,omitempty"`
}

// Reason is a machine-checkable code explaining why a Decision has the
// shape it has. Every degradation branch in the planner produces a
// distinct reason.
type Reason string

// Decision reason codes.
const (
	// ReasonCostModel: parallel execution won on estimated speedup.
	ReasonCostModel Reason = "cost-model"

	// ReasonSerialOptimal: best parallel candidate did not clear the
	// minimum-benefit threshold over serial execution.
	ReasonSerialOptimal Reason = "serial-optimal"

	// ReasonEmptyDataset: nothing to execute.
	ReasonEmptyDataset Reason = "empty-dataset"

	// ReasonSingleItem: a one-item dataset cannot be parallelized.
	ReasonSingleItem Reason = "single-item"

	// ReasonNotTransferable: the function or a sampled item cannot
	// cross the isolation boundary.
	ReasonNotTransferable Reason = "not-transferable"

	// ReasonSamplingFailed: every sampled item raised an error.
	ReasonSamplingFailed Reason = "sampling-failed"

	// ReasonMemoryConstrained: memory limits eliminated every
	// multi-worker candidate.
	ReasonMemoryConstrained Reason = "memory-constrained"

	// ReasonAdvisorHint: an external advisor hint above the confidence
	// threshold was accepted without running the measurement path.
	ReasonAdvisorHint Reason = "advisor-hint"
)

// Bottleneck classifies the dominant overhead term of the chosen plan.
type Bottleneck string

// Bottleneck classifications for diagnostics.
const (
	BottleneckCompute  Bottleneck = "compute"
	BottleneckSpawn    Bottleneck = "spawn"
	BottleneckTransfer Bottleneck = "transfer"
)

// Diagnostics is the structured profile the planner exposes for external
// reporting. It has no dependency on any output channel; the diag package
// renders it for humans.
type Diagnostics struct {
	PhysicalCores   int           `json:"physical_cores"`
	LogicalCores    int           `json:"logical_cores"`
	AvailableMemory int64         `json:"available_memory"`
	SpawnCost       time.Duration `json:"spawn_cost"`
	PerItemTime     time.Duration `json:"per_item_time"`
	ItemBytes       int64         `json:"item_bytes"`
	TotalItems      int           `json:"total_items"`
	WorkloadClass   WorkloadClass `json:"workload_class"`
	Variability     float64       `json:"variability"`
	Backend         Backend       `json:"backend"`
	Bottleneck      Bottleneck    `json:"bottleneck"`
}

// Decision is the planner's output: how the caller should execute the
// workload. Decisions are immutable once returned.
type Decision struct {
	// ID identifies this decision for provenance when persisted.
	ID string `json:"id"`

	// Workers is the chosen worker count, always >= 1.
	Workers int `json:"workers"`

	// BatchSize is the initial dispatch batch size, always >= 1.
	BatchSize int `json:"batch_size"`

	// Backend is the selected worker pool flavour.
	Backend Backend `json:"backend"`

	// EstimatedSpeedup is the cost model's estimate for the chosen
	// candidate, 1.0 for serial decisions.
	EstimatedSpeedup float64 `json:"estimated_speedup"`

	// Reason explains the decision.
	Reason Reason `json:"reason"`

	// Adaptive indicates the runtime controller should revise the
	// batch size from observed durations.
	Adaptive bool `json:"adaptive"`

	// Diagnostics carries the measurements behind the decision.
	Diagnostics Diagnostics `json:"diagnostics"`

	// CreatedAt is when the decision was made.
	CreatedAt time.Time `json:"created_at"`
}

// Serial returns true when the decision is to not parallelize.
func (d Decision) Serial() bool {
	return d.Workers <= 1
}

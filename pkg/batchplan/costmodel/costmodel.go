// Package costmodel estimates the speedup of running a workload on a
// candidate (workers, batchSize) pair. The model is an Amdahl's-Law
// variant in which the non-parallelizable cost is not a fixed fraction
// but depends on the candidate itself: spawn cost scales with the
// worker count and transfer cost with the batch geometry. It therefore
// cannot be solved in closed form and is evaluated per candidate.
//
// Evaluation is pure: same inputs, same estimate, no side effects.
package costmodel

import (
	"fmt"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Transfer coefficients per backend. The isolated backend pays a fixed
// dispatch cost per batch (pipe write, gob stream framing, scheduler
// wakeup) plus a per-byte encode/decode cost; the shared backend pays
// only a small dispatch cost.
const (
	isolatedBatchOverhead = 5 * time.Millisecond
	sharedBatchOverhead   = 50 * time.Microsecond

	// isolatedBytesPerSecond is the assumed gob throughput across the
	// process boundary.
	isolatedBytesPerSecond = 100 << 20
)

// Inputs are the candidate-independent measurements the model works
// from, produced by the profiler and sampler.
type Inputs struct {
	// PerItem is the mean serial wall time of one item.
	PerItem time.Duration

	// TotalItems is the dataset size.
	TotalItems int

	// SpawnCost is the one-time cost of creating one worker.
	SpawnCost time.Duration

	// ItemBytes is the encoded size of one item, zero for the shared
	// backend.
	ItemBytes int64

	// Backend selects the transfer coefficients.
	Backend types.Backend
}

// Estimate evaluates one candidate. Workers of 1 is the serial
// baseline and returns a speedup of exactly 1.0: the measurement noise
// in the overhead terms must never make serial execution look faster
// or slower than itself.
func Estimate(workers, batchSize int, in Inputs) types.CostEstimate {
	if workers <= 1 {
		return types.CostEstimate{
			Workers:   1,
			BatchSize: batchSize,
			Speedup:   1.0,
			Rationale: "serial baseline",
		}
	}

	serial := in.PerItem.Seconds() * float64(in.TotalItems)
	spawn := in.SpawnCost.Seconds() * float64(workers)
	transfer := transferOverhead(batchSize, in)

	parallel := serial/float64(workers) + spawn + transfer
	speedup := 0.0
	if parallel > 0 {
		speedup = serial / parallel
	}

	return types.CostEstimate{
		Workers:   workers,
		BatchSize: batchSize,
		Speedup:   speedup,
		Rationale: fmt.Sprintf("serial %.3fs, compute %.3fs, spawn %.3fs, transfer %.3fs",
			serial, serial/float64(workers), spawn, transfer),
	}
}

// transferOverhead is the total batching cost in seconds: the number of
// batches times the per-batch cost, where the per-batch cost grows with
// the batch's payload size.
func transferOverhead(batchSize int, in Inputs) float64 {
	if batchSize < 1 {
		batchSize = 1
	}
	batches := float64((in.TotalItems + batchSize - 1) / batchSize)

	switch in.Backend {
	case types.BackendIsolated:
		perBatch := isolatedBatchOverhead.Seconds() +
			float64(batchSize)*float64(in.ItemBytes)/float64(isolatedBytesPerSecond)
		return batches * perBatch
	default:
		return batches * sharedBatchOverhead.Seconds()
	}
}

// Bottleneck classifies the dominant cost term of a candidate:
// compute when the divided serial work still dominates, otherwise
// whichever overhead term is larger.
func Bottleneck(workers, batchSize int, in Inputs) types.Bottleneck {
	if workers <= 1 {
		return types.BottleneckCompute
	}

	compute := in.PerItem.Seconds() * float64(in.TotalItems) / float64(workers)
	spawn := in.SpawnCost.Seconds() * float64(workers)
	transfer := transferOverhead(batchSize, in)

	if compute >= spawn && compute >= transfer {
		return types.BottleneckCompute
	}
	if spawn >= transfer {
		return types.BottleneckSpawn
	}
	return types.BottleneckTransfer
}

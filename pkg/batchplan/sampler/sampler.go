// Package sampler runs a small prefix of the dataset serially to learn
// the workload's shape: per-item wall time, CPU busyness, timing
// variability, and whether the function and items can cross the
// process isolation boundary. Single-pass datasets are wrapped so the
// caller can still traverse every original item afterwards.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Sentinel errors for sampling outcomes the planner branches on.
var (
	// ErrSamplingFailed reports that every sampled item raised an
	// error. Partial failures are tolerated and excluded from timing
	// statistics.
	ErrSamplingFailed = errors.New("all sampled items failed")

	// ErrNotTransferable reports that the function or an item cannot
	// cross the isolation boundary.
	ErrNotTransferable = errors.New("not transferable")
)

// Report is the outcome of sampling one workload.
type Report struct {
	// Samples holds per-item timings for items that succeeded.
	Samples []types.Sample

	// ItemErrors holds the errors of items that failed, excluded from
	// the statistics.
	ItemErrors []error

	// PerItem is the mean wall time of successful samples.
	PerItem time.Duration

	// Class is the workload classification from the mean CPU ratio.
	Class types.WorkloadClass

	// ItemBytes is the gob-encoded size of the first sampled item, the
	// per-item transfer weight. Zero when transferability was not
	// probed.
	ItemBytes int64
}

// Sample executes fn serially on the first sampleSize items of data and
// returns timing statistics. Per-item errors are collected, not
// propagated, unless every sample fails.
func Sample(fn pool.Func, data *Dataset, sampleSize int) (*Report, error) {
	if sampleSize < 1 {
		sampleSize = 1
	}
	items := data.take(sampleSize)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: dataset is empty", ErrSamplingFailed)
	}

	logger := logging.Get("sampler")
	report := &Report{}

	for i, item := range items {
		busyBefore, busyOK := processCPUTime()
		start := time.Now()

		_, err := runProbe(fn, item)

		wall := time.Since(start)
		busy := wall
		if busyOK {
			if after, ok := processCPUTime(); ok {
				busy = after - busyBefore
				if busy < 0 {
					busy = 0
				}
				if busy > wall {
					busy = wall
				}
			}
		}

		if err != nil {
			logger.Debug("sampled item failed", "index", i, "error", err)
			report.ItemErrors = append(report.ItemErrors, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		report.Samples = append(report.Samples, types.Sample{Index: i, Wall: wall, Busy: busy})
	}

	if len(report.Samples) == 0 {
		return nil, fmt.Errorf("%w: %d items sampled", ErrSamplingFailed, len(items))
	}

	report.PerItem = meanWall(report.Samples)
	report.Class = types.ClassifyCPURatio(meanRatio(report.Samples))

	logger.Debug("workload sampled",
		"items", len(report.Samples),
		"failed", len(report.ItemErrors),
		"per_item", report.PerItem,
		"class", report.Class)
	return report, nil
}

// runProbe calls fn on one item, converting a panic into an error.
func runProbe(fn pool.Func, item any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(item)
}

// CheckTransferability verifies fn and item can cross the isolation
// boundary and records the encoded item size on the report. A failure
// downgrades planning to a serial decision; it is detected here, before
// any parallel dispatch has begun.
func (r *Report) CheckTransferability(fn pool.Func, item any) error {
	size, err := pool.CheckTransferable(fn, item)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotTransferable, err)
	}
	r.ItemBytes = size
	return nil
}

// Variability returns the coefficient of variation of the sampled wall
// times: stddev divided by mean. High values mean heterogeneous items,
// which argues for smaller initial batches plus runtime adaptation.
func (r *Report) Variability() float64 {
	if len(r.Samples) < 2 {
		return 0
	}
	mean := float64(meanWall(r.Samples))
	if mean == 0 {
		return 0
	}

	var sumSq float64
	for _, s := range r.Samples {
		d := float64(s.Wall) - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq/float64(len(r.Samples))) / mean
}

func meanWall(samples []types.Sample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s.Wall
	}
	return total / time.Duration(len(samples))
}

func meanRatio(samples []types.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		total += s.CPURatio()
	}
	return total / float64(len(samples))
}

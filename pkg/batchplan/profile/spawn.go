package profile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// spawnRange is a plausibility window for one strategy's spawn cost.
// Measurements outside the window are artifacts (a loaded machine, a
// mis-handled probe, clock trouble) and are replaced by the static
// estimate.
type spawnRange struct {
	min time.Duration
	max time.Duration
}

// spawnBounds returns the plausibility window for a strategy.
func spawnBounds(strategy types.SpawnStrategy) spawnRange {
	switch strategy {
	case types.StrategyExec:
		// Cold exec: page-in, runtime init, handshake.
		return spawnRange{min: 500 * time.Microsecond, max: 5 * time.Second}
	case types.StrategyWarmPool:
		// Handoff to an idle worker: one IPC round trip.
		return spawnRange{min: 1 * time.Microsecond, max: 500 * time.Millisecond}
	default:
		// Goroutine creation plus scheduler handshake.
		return spawnRange{min: 100 * time.Nanosecond, max: 10 * time.Millisecond}
	}
}

// fallbackSpawnCost returns the static estimate used when measurement
// fails or is implausible.
func fallbackSpawnCost(strategy types.SpawnStrategy) time.Duration {
	switch strategy {
	case types.StrategyExec:
		return 15 * time.Millisecond
	case types.StrategyWarmPool:
		return 1 * time.Millisecond
	default:
		return 5 * time.Microsecond
	}
}

// probeSpawn launches and tears down one minimal worker under the given
// strategy and returns the elapsed time.
func probeSpawn(ctx context.Context, strategy types.SpawnStrategy) (time.Duration, error) {
	switch strategy {
	case types.StrategyExec:
		return probeExecSpawn(ctx)
	case types.StrategyWarmPool:
		return probePipeRoundTrip()
	case types.StrategyGoroutine:
		return probeGoroutineSpawn(), nil
	default:
		return 0, fmt.Errorf("unknown spawn strategy %q", strategy)
	}
}

// probeExecSpawn executes the host binary in probe mode, which exits
// immediately, and times the full create-run-reap cycle. The host must
// install pool.WorkerMain for this to terminate promptly; the caller's
// timeout and plausibility bounds guard against hosts that do not.
func probeExecSpawn(ctx context.Context) (time.Duration, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locating executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, self)
	cmd.Env = append(os.Environ(), types.WorkerModeEnv+"="+types.WorkerModeProbe)
	cmd.Stdout = nil
	cmd.Stderr = nil

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("spawn probe: %w", err)
	}
	return time.Since(start), nil
}

// probePipeRoundTrip times one byte through an OS pipe pair, the
// handoff cost of dispatching to an already-running worker.
func probePipeRoundTrip() (time.Duration, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("spawn probe pipe: %w", err)
	}
	defer r.Close()
	defer w.Close()

	buf := []byte{0}
	start := time.Now()
	if _, err := w.Write(buf); err != nil {
		return 0, err
	}
	if _, err := r.Read(buf); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// probeGoroutineSpawn times goroutine creation plus one channel
// handshake, averaged over a small burst since a single spawn is below
// timer resolution.
func probeGoroutineSpawn() time.Duration {
	const rounds = 64

	done := make(chan struct{})
	start := time.Now()
	for i := 0; i < rounds; i++ {
		go func() { done <- struct{}{} }()
		<-done
	}
	return time.Since(start) / rounds
}

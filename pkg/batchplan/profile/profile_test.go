package profile

import (
	"context"
	"testing"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

func TestCores(t *testing.T) {
	physical, logical := Cores()
	if physical < 1 {
		t.Errorf("physical cores = %d, want >= 1", physical)
	}
	if logical < physical {
		t.Errorf("logical cores %d < physical cores %d", logical, physical)
	}
}

func TestAvailableMemory(t *testing.T) {
	p := New(Options{})

	mem, err := p.AvailableMemory()
	if err != nil {
		t.Fatalf("AvailableMemory() error: %v", err)
	}
	if mem <= 0 {
		t.Fatalf("AvailableMemory() = %d, want > 0", mem)
	}

	// The second read inside the TTL returns the cached value.
	again, err := p.AvailableMemory()
	if err != nil {
		t.Fatalf("AvailableMemory() second call error: %v", err)
	}
	if again != mem {
		t.Errorf("cached read = %d, first read = %d", again, mem)
	}
}

func TestSpawnCostCaching(t *testing.T) {
	p := New(Options{})

	cost1, at1 := p.SpawnCost(context.Background(), types.StrategyGoroutine)
	cost2, at2 := p.SpawnCost(context.Background(), types.StrategyGoroutine)

	if cost1 != cost2 {
		t.Errorf("cached cost %v != first cost %v", cost2, cost1)
	}
	if !at1.Equal(at2) {
		t.Errorf("cached timestamp %v != first timestamp %v", at2, at1)
	}
}

func TestSpawnCostInvalidate(t *testing.T) {
	p := New(Options{})

	_, at1 := p.SpawnCost(context.Background(), types.StrategyGoroutine)
	p.Invalidate()
	_, at2 := p.SpawnCost(context.Background(), types.StrategyGoroutine)

	if !at2.After(at1) {
		t.Errorf("post-invalidate timestamp %v is not after %v", at2, at1)
	}
}

func TestSpawnCostExecFallsBackOnFailedProbe(t *testing.T) {
	p := New(Options{})

	// A cancelled context fails the probe immediately; the static
	// estimate stands in.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cost, _ := p.SpawnCost(ctx, types.StrategyExec)
	if want := fallbackSpawnCost(types.StrategyExec); cost != want {
		t.Errorf("failed probe cost = %v, want fallback %v", cost, want)
	}
}

func TestSpawnCostWithinBounds(t *testing.T) {
	p := New(Options{})

	for _, strategy := range []types.SpawnStrategy{types.StrategyWarmPool, types.StrategyGoroutine} {
		cost, _ := p.SpawnCost(context.Background(), strategy)
		bounds := spawnBounds(strategy)
		if cost < bounds.min || cost > bounds.max {
			if cost != fallbackSpawnCost(strategy) {
				t.Errorf("strategy %s: cost %v outside [%v, %v] and not the fallback",
					strategy, cost, bounds.min, bounds.max)
			}
		}
	}
}

func TestSpawnBounds(t *testing.T) {
	tests := []struct {
		strategy types.SpawnStrategy
		min      time.Duration
		max      time.Duration
	}{
		{types.StrategyExec, 500 * time.Microsecond, 5 * time.Second},
		{types.StrategyWarmPool, time.Microsecond, 500 * time.Millisecond},
		{types.StrategyGoroutine, 100 * time.Nanosecond, 10 * time.Millisecond},
	}

	for _, tt := range tests {
		got := spawnBounds(tt.strategy)
		if got.min != tt.min || got.max != tt.max {
			t.Errorf("spawnBounds(%s) = [%v, %v], want [%v, %v]",
				tt.strategy, got.min, got.max, tt.min, tt.max)
		}
	}
}

func TestFallbackSpawnCost(t *testing.T) {
	tests := []struct {
		strategy types.SpawnStrategy
		want     time.Duration
	}{
		{types.StrategyExec, 15 * time.Millisecond},
		{types.StrategyWarmPool, time.Millisecond},
		{types.StrategyGoroutine, 5 * time.Microsecond},
	}

	for _, tt := range tests {
		if got := fallbackSpawnCost(tt.strategy); got != tt.want {
			t.Errorf("fallbackSpawnCost(%s) = %v, want %v", tt.strategy, got, tt.want)
		}
	}
}

func TestProbeGoroutineSpawn(t *testing.T) {
	d := probeGoroutineSpawn()
	if d <= 0 {
		t.Errorf("probeGoroutineSpawn() = %v, want > 0", d)
	}
}

func TestProbePipeRoundTrip(t *testing.T) {
	d, err := probePipeRoundTrip()
	if err != nil {
		t.Fatalf("probePipeRoundTrip() error: %v", err)
	}
	if d <= 0 {
		t.Errorf("probePipeRoundTrip() = %v, want > 0", d)
	}
}

func TestProfile(t *testing.T) {
	p := New(Options{})

	prof, err := p.Profile(context.Background(), types.StrategyGoroutine)
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if prof.PhysicalCores < 1 {
		t.Errorf("PhysicalCores = %d, want >= 1", prof.PhysicalCores)
	}
	if prof.AvailableMemory <= 0 {
		t.Errorf("AvailableMemory = %d, want > 0", prof.AvailableMemory)
	}
	if prof.SpawnCost <= 0 {
		t.Errorf("SpawnCost = %v, want > 0", prof.SpawnCost)
	}
	if prof.Strategy != types.StrategyGoroutine {
		t.Errorf("Strategy = %s, want %s", prof.Strategy, types.StrategyGoroutine)
	}
	if prof.MeasuredAt.IsZero() {
		t.Error("MeasuredAt is zero")
	}
}

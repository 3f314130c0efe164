package main

import (
	"fmt"
	"time"

	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
)

// Built-in calibration tasks. Each takes a workItem and burns its cost
// in a different way, so the three workload classes can all be
// exercised from the CLI.
//
// Registration happens before pool.WorkerMain so worker subprocesses
// can resolve the tasks by name.

// workItem is one unit of synthetic work.
type workItem struct {
	// Cost is how long the item should take.
	Cost time.Duration

	// Payload pads the item so transfer cost is measurable.
	Payload []byte
}

func registerTasks() {
	pool.RegisterType(workItem{})

	pool.Register("spin", taskSpin)
	pool.Register("sleep", taskSleep)
	pool.Register("mixed", taskMixed)
}

// taskSpin busy-loops for the item's cost: compute-bound.
func taskSpin(item any) (any, error) {
	w, ok := item.(workItem)
	if !ok {
		return nil, fmt.Errorf("spin: expected workItem, got %T", item)
	}
	deadline := time.Now().Add(w.Cost)
	x := 0
	for time.Now().Before(deadline) {
		x++
	}
	return x, nil
}

// taskSleep sleeps for the item's cost: wait-bound.
func taskSleep(item any) (any, error) {
	w, ok := item.(workItem)
	if !ok {
		return nil, fmt.Errorf("sleep: expected workItem, got %T", item)
	}
	time.Sleep(w.Cost)
	return int(w.Cost), nil
}

// taskMixed spins for half the cost and sleeps the rest: mixed.
func taskMixed(item any) (any, error) {
	w, ok := item.(workItem)
	if !ok {
		return nil, fmt.Errorf("mixed: expected workItem, got %T", item)
	}
	half := workItem{Cost: w.Cost / 2}
	if _, err := taskSpin(half); err != nil {
		return nil, err
	}
	time.Sleep(w.Cost / 2)
	return int(w.Cost), nil
}

// lookupTask resolves a task name for the plan command.
func lookupTask(name string) (pool.Func, error) {
	fn, ok := pool.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown task %q (built-ins: spin, sleep, mixed)", name)
	}
	return fn, nil
}

// buildItems generates a synthetic dataset for the built-in tasks.
func buildItems(count int, perItem time.Duration, payloadBytes int) []any {
	items := make([]any, count)
	for i := range items {
		items[i] = workItem{Cost: perItem, Payload: make([]byte, payloadBytes)}
	}
	return items
}

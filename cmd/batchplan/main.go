// Package main provides the batchplan CLI: plan a workload, inspect
// the system profile, and serve as its own isolated-worker executable.
package main

import (
	"os"

	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
)

func main() {
	// Must run first: a process started as a worker serves jobs and
	// never reaches the CLI.
	registerTasks()
	pool.WorkerMain()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

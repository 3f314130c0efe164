//go:build !unix

package sampler

import "time"

// processCPUTime is unavailable here; busy time falls back to wall
// time, which classifies workloads as compute-bound. That is the
// conservative choice: isolated workers are never skipped when they
// might be needed.
func processCPUTime() (time.Duration, bool) {
	return 0, false
}

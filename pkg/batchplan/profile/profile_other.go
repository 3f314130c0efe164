//go:build !linux && !darwin

package profile

// defaultAvailableMemory is the fallback when platform detection is not
// implemented. Half of an assumed 8GB machine.
const defaultAvailableMemory = 4 * 1024 * 1024 * 1024

// detectAvailableMemory returns a conservative default on platforms
// without a specific implementation.
func detectAvailableMemory() (int64, error) {
	return defaultAvailableMemory, nil
}

func containerMemoryLimit() (int64, bool) {
	return 0, false
}

// detectPhysicalCores returns 0; the caller falls back to the logical
// core count.
func detectPhysicalCores() int {
	return 0
}

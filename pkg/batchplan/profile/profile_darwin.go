//go:build darwin

package profile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectAvailableMemory estimates available memory on darwin. Precise
// availability requires host_statistics, so a conservative half of
// physical memory is used; macOS reclaims file cache aggressively and
// the planner only needs an upper bound for worker admission.
func detectAvailableMemory() (int64, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	return int64(memsize) / 2, nil
}

// containerMemoryLimit: darwin has no cgroup equivalent.
func containerMemoryLimit() (int64, bool) {
	return 0, false
}

// detectPhysicalCores reads the physical core count from sysctl.
func detectPhysicalCores() int {
	physical, err := unix.SysctlUint32("hw.physicalcpu")
	if err != nil {
		return 0
	}
	return int(physical)
}

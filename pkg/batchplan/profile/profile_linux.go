//go:build linux

package profile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// cgroup memory ceiling locations. v2 first; "max" means unlimited.
const (
	cgroupV2MemoryMax = "/sys/fs/cgroup/memory.max"
	cgroupV1MemoryMax = "/sys/fs/cgroup/memory/memory.limit_in_bytes"
)

// detectAvailableMemory reads MemAvailable from /proc/meminfo, falling
// back to sysinfo free+buffer memory on older kernels.
func detectAvailableMemory() (int64, error) {
	if avail, err := readMemAvailable("/proc/meminfo"); err == nil {
		return avail, nil
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return (int64(info.Freeram) + int64(info.Bufferram)) * unit, nil
}

// readMemAvailable parses the MemAvailable line of a meminfo file.
func readMemAvailable(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in %s", path)
}

// containerMemoryLimit returns the cgroup memory ceiling, if one is
// imposed. Absurdly large v1 limits mean "no limit".
func containerMemoryLimit() (int64, bool) {
	for _, path := range []string{cgroupV2MemoryMax, cgroupV1MemoryMax} {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(raw))
		if text == "max" {
			return 0, false
		}
		limit, err := strconv.ParseInt(text, 10, 64)
		if err != nil || limit <= 0 {
			continue
		}
		// v1 reports ~2^63 when unconstrained.
		if limit > int64(1)<<50 {
			return 0, false
		}
		return limit, true
	}
	return 0, false
}

// detectPhysicalCores counts distinct (physical id, core id) pairs in
// /proc/cpuinfo. Returns 0 when the topology is unreadable, in which
// case the caller falls back to the logical count.
func detectPhysicalCores() int {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	cores := make(map[string]struct{})
	var physicalID string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "physical id":
			physicalID = value
		case "core id":
			cores[physicalID+"/"+value] = struct{}{}
		}
	}
	return len(cores)
}

//go:build unix

package sampler

import (
	"time"

	"golang.org/x/sys/unix"
)

// processCPUTime returns the process's cumulative CPU time (user plus
// system). Sampling runs serially, so the delta around one call is
// attributable to that item.
func processCPUTime() (time.Duration, bool) {
	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return 0, false
	}
	user := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	sys := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return user + sys, true
}

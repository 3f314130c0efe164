// Package diag renders planner decisions and their diagnostics for
// humans and for structured log sinks. It depends only on the decision
// record, never on an output channel, so callers can route the report
// anywhere.
package diag

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Fields flattens a decision into key-value pairs for structured
// logging, in a stable order.
func Fields(d types.Decision) []any {
	return []any{
		"workers", d.Workers,
		"batch_size", d.BatchSize,
		"backend", string(d.Backend),
		"speedup", fmt.Sprintf("%.2fx", d.EstimatedSpeedup),
		"reason", string(d.Reason),
		"adaptive", d.Adaptive,
		"workload", string(d.Diagnostics.WorkloadClass),
		"bottleneck", string(d.Diagnostics.Bottleneck),
		"per_item", formatDuration(d.Diagnostics.PerItemTime),
		"spawn_cost", formatDuration(d.Diagnostics.SpawnCost),
		"cores", fmt.Sprintf("%d/%d", d.Diagnostics.PhysicalCores, d.Diagnostics.LogicalCores),
		"memory", humanize.IBytes(uint64(max(d.Diagnostics.AvailableMemory, 0))),
	}
}

// Report renders a multi-line human-readable summary of a decision.
func Report(d types.Decision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "plan: %d worker(s), batch size %d (%s)\n", d.Workers, d.BatchSize, d.Backend)
	fmt.Fprintf(&b, "  estimated speedup: %.2fx\n", d.EstimatedSpeedup)
	fmt.Fprintf(&b, "  reason:            %s\n", d.Reason)
	fmt.Fprintf(&b, "  adaptation:        %s\n", onOff(d.Adaptive))

	diag := d.Diagnostics
	fmt.Fprintf(&b, "system:\n")
	fmt.Fprintf(&b, "  cores:             %d physical, %d logical\n", diag.PhysicalCores, diag.LogicalCores)
	fmt.Fprintf(&b, "  available memory:  %s\n", humanize.IBytes(uint64(max(diag.AvailableMemory, 0))))
	fmt.Fprintf(&b, "  spawn cost:        %s\n", formatDuration(diag.SpawnCost))

	fmt.Fprintf(&b, "workload:\n")
	fmt.Fprintf(&b, "  items:             %s\n", humanize.Comma(int64(diag.TotalItems)))
	fmt.Fprintf(&b, "  per-item time:     %s\n", formatDuration(diag.PerItemTime))
	if diag.ItemBytes > 0 {
		fmt.Fprintf(&b, "  item payload:      %s\n", humanize.IBytes(uint64(diag.ItemBytes)))
	}
	fmt.Fprintf(&b, "  class:             %s\n", diag.WorkloadClass)
	fmt.Fprintf(&b, "  variability:       %.2f\n", diag.Variability)
	fmt.Fprintf(&b, "  bottleneck:        %s\n", diag.Bottleneck)

	return b.String()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "n/a"
	}
	return d.Round(time.Microsecond).String()
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/batchplan/pkg/batchplan/adaptive"
	"github.com/jamesainslie/batchplan/pkg/batchplan/diag"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// Color constants using the ANSI 256-color palette.
const (
	colorPrimary = lipgloss.Color("39")
	colorSuccess = lipgloss.Color("42")
	colorWarning = lipgloss.Color("214")
	colorMuted   = lipgloss.Color("245")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	reportBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	serialStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	parallelStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// renderDecision renders the plan summary for the terminal.
func renderDecision(d types.Decision) string {
	headline := parallelStyle.Render(fmt.Sprintf("parallel: %d workers", d.Workers))
	if d.Serial() {
		headline = serialStyle.Render("serial execution")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Execution plan"))
	b.WriteString("  ")
	b.WriteString(headline)
	b.WriteString("\n")
	b.WriteString(reportBox.Render(strings.TrimRight(diag.Report(d), "\n")))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("decision " + d.ID))
	b.WriteString("\n")
	return b.String()
}

// renderRun renders controller statistics after an executed plan.
func renderRun(elapsed time.Duration, results, failures int, stats adaptive.Stats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  elapsed:          %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  items:            %s (%d failed)\n", humanize.Comma(int64(results)), failures)
	fmt.Fprintf(&b, "  final batch size: %d\n", stats.BatchSize)
	fmt.Fprintf(&b, "  adaptations:      %d\n", stats.Adaptations)
	fmt.Fprintf(&b, "  avg batch time:   %s\n", stats.AverageBatchDuration.Round(time.Microsecond))
	return b.String()
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/batchplan/pkg/batchplan/adaptive"
	"github.com/jamesainslie/batchplan/pkg/batchplan/diag"
	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/planner"
	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/sampler"
	"github.com/jamesainslie/batchplan/pkg/batchplan/store"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan parallel execution of a workload",
	Long: `Plan samples a workload, measures system capacity, and prints the
resulting execution decision. With --run the plan is also executed
through the adaptive batch controller and runtime statistics are
reported.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().String("task", "spin", "task to plan (spin, sleep, mixed)")
	planCmd.Flags().Int("items", 1000, "number of synthetic items")
	planCmd.Flags().Duration("per-item", 5*time.Millisecond, "cost of one synthetic item")
	planCmd.Flags().Int("payload", 256, "payload bytes per item")
	planCmd.Flags().Int("max-workers", 0, "cap worker count (0 = physical cores)")
	planCmd.Flags().Bool("adapt", true, "enable runtime batch adaptation")
	planCmd.Flags().Bool("run", false, "execute the plan and report controller stats")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	taskName, _ := cmd.Flags().GetString("task")
	items, _ := cmd.Flags().GetInt("items")
	perItem, _ := cmd.Flags().GetDuration("per-item")
	payload, _ := cmd.Flags().GetInt("payload")
	maxWorkers, _ := cmd.Flags().GetInt("max-workers")
	adapt, _ := cmd.Flags().GetBool("adapt")
	execute, _ := cmd.Flags().GetBool("run")

	fn, err := lookupTask(taskName)
	if err != nil {
		return err
	}

	p := planner.New(cfg, plannerOptions()...)
	dataset := sampler.FromSlice(buildItems(items, perItem, payload))

	decision, err := p.Decide(cmd.Context(), fn, dataset, planner.Constraints{
		MaxWorkers:       maxWorkers,
		EnableAdaptation: adapt,
	})
	if err != nil {
		return err
	}

	fmt.Print(renderDecision(decision))

	if !execute {
		return nil
	}
	return executePlan(cmd, decision, fn, dataset)
}

// plannerOptions wires the optional decision store when configured.
func plannerOptions() []planner.Option {
	if cfg.StorePath == "" {
		return nil
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		// Persistence never blocks planning.
		logging.Get("cli").Warn("decision store unavailable", "path", cfg.StorePath, "error", err)
		return nil
	}
	return []planner.Option{planner.WithDecisionCache(store.NewDecisionCache(s))}
}

// executePlan runs the decision through the adaptive controller. A run
// of the same task over the same dataset shape earlier in this process
// is served from the result memo instead of re-executing.
func executePlan(cmd *cobra.Command, decision types.Decision, fn pool.Func, dataset *sampler.Dataset) error {
	items := dataset.Materialize()

	if cached, ok := cachedRun(fn, len(items)); ok {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("cached results from an identical earlier run (%d items)", len(cached))))
		return nil
	}

	ctrl, err := adaptive.NewFromDecision(decision, fn, cfg.Adaptive)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := ctrl.Map(cmd.Context(), items)
	elapsed := time.Since(start)

	ctrl.Close()
	if joinErr := ctrl.Join(); joinErr != nil {
		logging.Get("cli").Warn("controller shutdown", "error", joinErr)
	}
	if err != nil {
		return err
	}
	rememberRun(fn, len(items), results)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}

	stats := ctrl.Stats()
	fmt.Print(renderRun(elapsed, len(results), failures, stats))

	logging.Get("cli").Debug("run complete", diag.Fields(decision)...)
	return nil
}

// runResults memoizes completed runs for the lifetime of the process.
var runResults = newRunMemo()

func newRunMemo() *store.ResultCache {
	c, err := store.NewResultCache(16)
	if err != nil {
		panic(err)
	}
	return c
}

// cachedRun looks up a prior run of the same task over the same dataset
// size. Unregistered functions have no stable identity and never hit.
func cachedRun(fn pool.Func, n int) ([]pool.Result, bool) {
	name, ok := pool.NameOf(fn)
	if !ok {
		return nil, false
	}
	return runResults.Get(store.NewResultKey(name, n))
}

// rememberRun records a completed run in the memo.
func rememberRun(fn pool.Func, n int, results []pool.Result) {
	name, ok := pool.NameOf(fn)
	if !ok {
		return
	}
	runResults.Put(store.NewResultKey(name, n), results)
}

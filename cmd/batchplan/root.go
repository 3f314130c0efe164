package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/batchplan/pkg/batchplan/config"
	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "batchplan",
		Short: "Plan and tune parallel batch execution",
		Long: `Batchplan decides whether parallel execution is worth it for a
workload, how many workers to use, and how items should be grouped into
dispatch batches. It measures worker spawn cost, samples the workload
serially, and evaluates a cost model over candidate configurations.

Examples:
  batchplan plan --task spin --items 1000      # Plan a built-in CPU workload
  batchplan plan --task sleep --items 500      # Plan a built-in wait workload
  batchplan profile                            # Show the system profile
  batchplan version                            # Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/batchplan/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

// initConfig loads configuration and initializes logging.
func initConfig() {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "batchplan: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
		Quiet:      viper.GetBool("quiet"),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "batchplan: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "batchplan: %v\n", err)
		return err
	}
	return nil
}

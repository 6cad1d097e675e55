package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/regiondispatch/app"
	"github.com/kilianp07/regiondispatch/config"
	"github.com/kilianp07/regiondispatch/infra/logger"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "regiondispatch",
	Short: "Regional emergency dispatch simulation",
	Long: `Runs one duty session: the simulated clock, the crime generator, the
dispatch engine and its units until interrupted. Completed calls are kept in
the call log for the calls and report commands.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/regiondispatch.yaml", "configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return err
		}
	}
	closer := logger.Setup(cfg.Logging.Options())
	defer closer.Close()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/regiondispatch/config"
	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/pkg/export"
)

var (
	callsZone     string
	callsPriority string
	callsUnit     string
	callsClosure  string
	callsSince    time.Duration
	callsFormat   string
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Call log related commands",
}

var callsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List completed calls from the call log",
	RunE:  runCallsLs,
}

func init() {
	addQueryFlags(callsLsCmd)
	callsLsCmd.Flags().StringVarP(&callsFormat, "format", "f", "csv", "output format (csv or json)")
	callsCmd.AddCommand(callsLsCmd)
	rootCmd.AddCommand(callsCmd)
}

func addQueryFlags(c *cobra.Command) {
	c.Flags().StringVar(&callsZone, "zone", "", "only calls in this zone")
	c.Flags().StringVar(&callsPriority, "priority", "", "only calls of this priority")
	c.Flags().StringVar(&callsUnit, "unit", "", "only calls attended by this unit")
	c.Flags().StringVar(&callsClosure, "closure", "", "only calls with this closure")
	c.Flags().DurationVar(&callsSince, "since", 0, "only calls completed within this duration")
}

func buildQuery() (calllog.Query, error) {
	q := calllog.Query{ZoneID: callsZone, UnitID: callsUnit, Closure: callsClosure}
	if callsPriority != "" {
		p, err := model.ParsePriority(callsPriority)
		if err != nil {
			return q, err
		}
		q.Priority = p
	}
	if callsSince > 0 {
		q.Start = time.Now().Add(-callsSince)
	}
	return q, nil
}

// queryCallLog opens the configured call log and returns the records
// matching the command line filters.
func queryCallLog(ctx context.Context) ([]calllog.Record, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := calllog.New(cfg.CallLog)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("call log is disabled in the configuration")
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error while closing call log: %v\n", err)
		}
	}()
	q, err := buildQuery()
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, q)
}

func runCallsLs(cmd *cobra.Command, args []string) error {
	recs, err := queryCallLog(cmd.Context())
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), callsFormat, recs)
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/regiondispatch/pkg/export"
	"github.com/kilianp07/regiondispatch/pkg/report"
)

var (
	reportOut    string
	reportExport string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render an HTML duty report from the call log",
	RunE:  runReport,
}

func init() {
	addQueryFlags(reportCmd)
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "report.html", "HTML report path")
	reportCmd.Flags().StringVar(&reportExport, "export", "", "also export the records to this .csv or .json file")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	recs, err := queryCallLog(cmd.Context())
	if err != nil {
		return err
	}
	summary := report.Summarize(recs)
	if err := writeFile(reportOut, func(f *os.File) error { return report.Render(f, summary) }); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if reportExport != "" {
		format := strings.TrimPrefix(filepath.Ext(reportExport), ".")
		if err := writeFile(reportExport, func(f *os.File) error { return export.Write(f, format, recs) }); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d calls across %d zones written to %s\n", summary.Total, len(summary.Zones), reportOut)
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

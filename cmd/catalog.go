package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/regiondispatch/config"
	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog related commands",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a zone and scenario catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Catalog.Path
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ZONE\tNAME\tLOCATIONS\tCALLS(NIGHT/MORNING/DAY/EVENING)\n")
	zones := append([]*model.Zone(nil), cat.Zones...)
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	for _, z := range zones {
		fmt.Fprintf(w, "%s\t%s\t%d\t", z.ID, z.Name, len(z.Locations))
		for i, p := range model.Periods {
			if i > 0 {
				fmt.Fprint(w, "/")
			}
			fmt.Fprint(w, z.CallsDuring(p))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d zones, %d scenarios in %d categories\n",
		path, len(cat.Zones), len(cat.Scenarios), len(cat.Categories()))
	return nil
}

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/database"
	"github.com/codyseavey/folio/internal/services"
)

var (
	summaryPortfolio string
	summarySort      string
	summaryDir       string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the enriched dashboard summary for a scope",
	Long: `Load the dashboard summary for a portfolio (root when --portfolio is empty),
merge live crypto prices and logos, and print the asset rows.

Rows follow the persisted sort order unless --sort/--dir are given.

Examples:
  folioctl summary
  folioctl summary --portfolio 7c1e... --sort weightPct --dir asc
  folioctl summary --format json`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringVar(&summaryPortfolio, "portfolio", "", "Portfolio id (default: root scope)")
	summaryCmd.Flags().StringVar(&summarySort, "sort", "", "Sort key: weightPct, quantity, valueAmount, unitPrice")
	summaryCmd.Flags().StringVar(&summaryDir, "dir", "", "Sort direction: asc or desc")
}

func runSummary(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	order := storedSort(ctx, e)
	if summarySort != "" {
		key, ok := services.ParseSortKey(summarySort)
		if !ok {
			return fmt.Errorf("unknown sort key %q", summarySort)
		}
		order.Key = key
	}
	if summaryDir != "" {
		dir, ok := services.ParseSortDir(summaryDir)
		if !ok {
			return fmt.Errorf("unknown sort direction %q", summaryDir)
		}
		order.Dir = dir
	}

	prices := services.NewPriceService(e.backend, e.cfg.PriceRPS, e.cfg.PriceBurst, e.log)
	logos := services.NewLogoCache(e.backend, e.log)
	pipeline := services.NewPipeline(e.backend, prices, logos, e.log)

	res, err := pipeline.LoadScope(ctx, summaryPortfolio)
	if err != nil {
		return err
	}
	res.Rows = services.SortRows(res.Rows, order)

	if outputFormat == "json" {
		return writeJSON(out, res)
	}

	scope := res.Summary.Scope.Name
	if res.IsRoot {
		scope = "All portfolios"
	}
	fmt.Fprintf(out, "%s  total %.2f %s  positions %d\n", scope, res.Summary.Totals.Total, res.Summary.Currency, res.Summary.Totals.PositionsCount)
	if !res.PricesAvailable {
		fmt.Fprintln(out, "live prices unavailable, unit price and quantity are not shown")
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tSYMBOL\tTYPE\tVALUE\tWEIGHT %\tUNIT PRICE\tQUANTITY")
	for _, r := range res.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			r.Name, r.Symbol, r.Type, r.ValueAmount, r.WeightPct,
			formatOptional(r.UnitPrice, 2), formatOptional(r.Quantity, 8))
	}
	return w.Flush()
}

// storedSort reads the persisted order, falling back to the default when the local
// preference database cannot be opened
func storedSort(ctx context.Context, e *env) services.AssetSort {
	db, err := database.Open(e.cfg.DBPath)
	if err != nil {
		e.log.Debug().Err(err).Msg("preference database unavailable, using default sort")
		return services.DefaultAssetSort
	}
	return services.NewPreferenceService(db, e.log).AssetSort(ctx)
}

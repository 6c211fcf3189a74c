package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/services"
)

var assetCmd = &cobra.Command{
	Use:   "asset <assetId>",
	Short: "Show one asset's weight, live price and distribution by portfolio",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsset,
}

func init() {
	rootCmd.AddCommand(assetCmd)
}

func runAsset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	prices := services.NewPriceService(e.backend, e.cfg.PriceRPS, e.cfg.PriceBurst, e.log)
	details := services.NewAssetDetailService(e.backend, prices, e.backend, e.log)

	d, err := details.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(out, d)
	}

	fmt.Fprintf(out, "%s (%s, %s)\n", d.Name, d.Symbol, d.Type)
	fmt.Fprintf(out, "  total       %.2f %s\n", d.Total, d.Currency)
	fmt.Fprintf(out, "  weight      %.2f%%\n", d.WeightPct)
	fmt.Fprintf(out, "  unit price  %s\n", formatOptional(d.UnitPrice, 2))
	fmt.Fprintf(out, "  quantity    %s\n", formatOptional(d.Quantity, 8))
	fmt.Fprintf(out, "  portfolios  %d\n\n", d.PortfoliosCount)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORTFOLIO\tQUANTITY\tVALUE\tSHARE %")
	for _, p := range d.ByPortfolio {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n", p.PortfolioName, formatOptional(p.Quantity, 8), p.Value, p.Pct)
	}
	return w.Flush()
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/models"
)

var (
	logsPortfolio string
	logsAsset     string
	logsLimit     int
	logsOffset    int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List position log entries",
	Long: `List the audit entries the backend writes for market position upserts.

Examples:
  folioctl logs
  folioctl logs --asset crypto-btc --limit 20
  folioctl logs --portfolio 7c1e... --offset 50`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsPortfolio, "portfolio", "", "Filter by portfolio id")
	logsCmd.Flags().StringVar(&logsAsset, "asset", "", "Filter by asset id")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "Page size (1-200)")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "Entries to skip")
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if logsLimit < 1 || logsLimit > 200 {
		return fmt.Errorf("--limit must be between 1 and 200")
	}
	if logsOffset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	page, err := e.backend.ListLogs(ctx, models.PositionLogQuery{
		PortfolioID: logsPortfolio,
		AssetID:     logsAsset,
		Limit:       logsLimit,
		Offset:      logsOffset,
	})
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(out, page)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPORTFOLIO\tASSET\tACTION\tOLD\tDELTA\tNEW")
	for _, l := range page.Items {
		portfolio := l.PortfolioID
		if l.Portfolio != nil && l.Portfolio.Name != "" {
			portfolio = l.Portfolio.Name
		}
		asset := l.AssetID
		if l.Asset != nil && l.Asset.Symbol != "" {
			asset = l.Asset.Symbol
		}
		old := "-"
		if l.OldQuantity != nil {
			old = *l.OldQuantity
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.CreatedAt.Local().Format(time.DateTime), portfolio, asset, l.Action, old, l.DeltaQuantity, l.NewQuantity)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d of %d entries\n", len(page.Items), page.Count)
	return nil
}

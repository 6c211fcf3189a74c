package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/models"
	"github.com/codyseavey/folio/internal/services"
)

var (
	newPortfolioName     string
	newPortfolioParent   string
	newPortfolioCategory string
	newPortfolioCurrency string
)

var portfoliosCmd = &cobra.Command{
	Use:   "portfolios",
	Short: "Print the portfolio tree",
	RunE:  runPortfolios,
}

var portfolioCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a portfolio",
	Long: `Create a portfolio under --parent (or a new root). The category decides which
position form applies to it; CRYPTO portfolios take crypto symbols.

Examples:
  folioctl portfolios create --name Main
  folioctl portfolios create --name "Cold wallet" --parent 7c1e... --category CRYPTO`,
	RunE: runPortfolioCreate,
}

var positionsCmd = &cobra.Command{
	Use:   "positions <portfolioId>",
	Short: "List the positions held directly in a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(portfoliosCmd)
	rootCmd.AddCommand(positionsCmd)
	portfoliosCmd.AddCommand(portfolioCreateCmd)

	portfolioCreateCmd.Flags().StringVar(&newPortfolioName, "name", "", "Portfolio name (required)")
	portfolioCreateCmd.Flags().StringVar(&newPortfolioParent, "parent", "", "Parent portfolio id (default: new root)")
	portfolioCreateCmd.Flags().StringVar(&newPortfolioCategory, "category", string(models.CategoryGeneral), "GENERAL, CRYPTO, METALS, ETF, STOCKS, CASH or OTHER")
	portfolioCreateCmd.Flags().StringVar(&newPortfolioCurrency, "currency", "", "Portfolio currency (default: FOLIO_CURRENCY)")
	_ = portfolioCreateCmd.MarkFlagRequired("name")
}

func runPortfolios(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	roots, err := e.backend.GetPortfolioTree(ctx)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(out, roots)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORTFOLIO\tID\tCATEGORY")
	for _, r := range roots {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.ID, r.Category)
	}
	// non-root portfolios in depth order; roots cannot hold positions
	for _, opt := range services.FlattenPortfolios(roots) {
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", strings.Repeat("  ", opt.Depth), opt.Name, opt.ID, opt.Category)
	}
	return w.Flush()
}

func runPortfolioCreate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	name := strings.TrimSpace(newPortfolioName)
	if name == "" {
		return fmt.Errorf("--name must not be empty")
	}
	currency := strings.ToUpper(strings.TrimSpace(newPortfolioCurrency))
	if currency == "" {
		currency = e.cfg.Currency
	}

	p, err := e.backend.CreatePortfolio(ctx, models.CreatePortfolioRequest{
		Name:     name,
		ParentID: strings.TrimSpace(newPortfolioParent),
		Category: models.NormalizeCategory(newPortfolioCategory),
		Currency: currency,
	})
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(out, p)
	}
	fmt.Fprintf(out, "created portfolio %s (%s, %s)\n", p.ID, p.Name, p.Category)
	return nil
}

func runPositions(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	positions, err := e.backend.ListPortfolioPositions(ctx, args[0])
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(out, positions)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tASSET\tMODE\tAMOUNT\tQUANTITY\tCOST")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.AssetID, p.ValueMode,
			formatOptional(p.ValueAmount, 2), formatOptional(p.Quantity, 8), formatOptional(p.CostAmount, 2))
	}
	return w.Flush()
}

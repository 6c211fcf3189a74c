package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/database"
	"github.com/codyseavey/folio/internal/services"
)

var sortCmd = &cobra.Command{
	Use:   "sort [key] [dir]",
	Short: "Show or persist the dashboard row order",
	Long: `Without arguments, print the persisted dashboard sort order. With a key (and
optionally a direction), store a new order in the local preference database.

Keys: weightPct, quantity, valueAmount, unitPrice. Directions: asc, desc.

Examples:
  folioctl sort
  folioctl sort weightPct asc`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSort,
}

func init() {
	rootCmd.AddCommand(sortCmd)
}

func runSort(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := database.Open(e.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open preference database: %w", err)
	}
	prefs := services.NewPreferenceService(db, e.log)

	order := prefs.AssetSort(ctx)
	if len(args) > 0 {
		key, ok := services.ParseSortKey(args[0])
		if !ok {
			return fmt.Errorf("unknown sort key %q", args[0])
		}
		order.Key = key
		if len(args) > 1 {
			dir, ok := services.ParseSortDir(args[1])
			if !ok {
				return fmt.Errorf("unknown sort direction %q", args[1])
			}
			order.Dir = dir
		}
		if err := prefs.SetAssetSort(ctx, order); err != nil {
			return err
		}
	}

	if outputFormat == "json" {
		return writeJSON(out, order)
	}
	fmt.Fprintf(out, "%s %s\n", order.Key, order.Dir)
	return nil
}

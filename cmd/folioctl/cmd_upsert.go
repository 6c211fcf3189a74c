package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/models"
	"github.com/codyseavey/folio/internal/services"
)

var (
	upsertPortfolio string
	upsertAsset     string
	upsertSymbol    string
	upsertMarket    bool
	upsertAmount    string
	upsertQuantity  string
	upsertCost      string
	upsertSet       bool
	upsertNotes     string
	upsertNewType   string
	upsertNewName   string
	upsertNewSymbol string
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Add to or set a position",
	Long: `Submit a position through the same form rules the UI uses. The portfolio's
category decides the form: CRYPTO portfolios take a symbol, in MANUAL (amount) or
MARKET (quantity) valuation; every other portfolio takes an existing asset id, or a
new asset created with --new-type/--new-name, valued by amount.

Examples:
  folioctl upsert --portfolio crypto-pf --symbol BTC --market --quantity 0.5
  folioctl upsert --portfolio crypto-pf --symbol ETH --amount 1200
  folioctl upsert --portfolio metals-pf --asset gold-bar --amount 900 --set
  folioctl upsert --portfolio metals-pf --new-type METAL --new-name "Silver coins" --amount 300`,
	RunE: runUpsert,
}

func init() {
	rootCmd.AddCommand(upsertCmd)

	upsertCmd.Flags().StringVar(&upsertPortfolio, "portfolio", "", "Target portfolio id (required)")
	upsertCmd.Flags().StringVar(&upsertAsset, "asset", "", "Existing asset id (non-crypto portfolios)")
	upsertCmd.Flags().StringVar(&upsertSymbol, "symbol", "", "Crypto symbol (crypto portfolios)")
	upsertCmd.Flags().BoolVar(&upsertMarket, "market", false, "MARKET valuation by quantity (crypto portfolios)")
	upsertCmd.Flags().StringVar(&upsertAmount, "amount", "", "Declared value for MANUAL valuation")
	upsertCmd.Flags().StringVar(&upsertQuantity, "quantity", "", "Quantity for MARKET valuation")
	upsertCmd.Flags().StringVar(&upsertCost, "cost", "", "Optional cost basis for MARKET valuation")
	upsertCmd.Flags().BoolVar(&upsertSet, "set", false, "Replace the existing position instead of adding to it")
	upsertCmd.Flags().StringVar(&upsertNotes, "notes", "", "Free-form notes")
	upsertCmd.Flags().StringVar(&upsertNewType, "new-type", "", "Create an asset of this type first (non-crypto portfolios)")
	upsertCmd.Flags().StringVar(&upsertNewName, "new-name", "", "Name of the asset to create")
	upsertCmd.Flags().StringVar(&upsertNewSymbol, "new-symbol", "", "Optional symbol of the asset to create")
	_ = upsertCmd.MarkFlagRequired("portfolio")
}

func runUpsert(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	workspaces, err := services.NewWorkspaces(e.backend, services.NewPositionService(e.backend, e.log), e.cfg.Currency, e.cfg.TreeRefresh, e.log)
	if err != nil {
		return err
	}
	ws, err := workspaces.For(ctx)
	if err == nil {
		err = ws.Index.LastError()
	}
	if err != nil {
		return fmt.Errorf("failed to load portfolio tree: %w", err)
	}
	forms := ws.Forms

	if _, status := ws.Index.Lookup(upsertPortfolio); status != services.LookupKnown {
		return fmt.Errorf("portfolio %q is not a selectable portfolio", upsertPortfolio)
	}

	view := forms.Create(upsertPortfolio)
	if upsertMarket {
		if view, err = forms.SetValuationMode(view.ID, models.ValueModeMarket); err != nil {
			return err
		}
	}

	if upsertNewType != "" || upsertNewName != "" {
		if _, err = forms.OpenManualAsset(view.ID); err != nil {
			return err
		}
		if _, err = forms.SetManualAssetDraft(view.ID, services.ManualAssetDraft{
			Type:   models.NormalizeAssetType(upsertNewType),
			Name:   upsertNewName,
			Symbol: upsertNewSymbol,
		}); err != nil {
			return err
		}
		var asset *models.Asset
		view, asset, err = forms.CreateManualAsset(ctx, view.ID)
		if err != nil {
			return reportFormError(cmd.ErrOrStderr(), view, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "created asset %s (%s)\n", asset.ID, asset.Name)
	}

	mergeMode := string(models.MergeAdd)
	if upsertSet {
		mergeMode = string(models.MergeSet)
	}
	update := services.FieldUpdate{MergeMode: &mergeMode}
	setIf := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	setIf(&update.AssetID, upsertAsset)
	setIf(&update.CryptoSymbol, upsertSymbol)
	setIf(&update.ValueAmount, upsertAmount)
	setIf(&update.Quantity, upsertQuantity)
	setIf(&update.CostAmount, upsertCost)
	setIf(&update.Notes, upsertNotes)

	if view, err = forms.UpdateFields(view.ID, update); err != nil {
		return reportFormError(cmd.ErrOrStderr(), view, err)
	}

	view, result, err := forms.Submit(ctx, view.ID)
	if err != nil {
		return reportFormError(cmd.ErrOrStderr(), view, err)
	}

	if outputFormat == "json" {
		return writeJSON(out, map[string]any{
			"outcome":    result.Result.Mode,
			"position":   result.Result.Position,
			"payload":    result.Payload,
			"asset":      result.ResolvedAsset,
			"resolution": result.Resolution,
		})
	}
	if result.ResolvedAsset != nil {
		fmt.Fprintf(out, "asset %s %s (%s)\n", result.ResolvedAsset.ID, result.Resolution, result.ResolvedAsset.Name)
	}
	fmt.Fprintf(out, "position %s %s in portfolio %s\n", result.Result.Position.ID, result.Result.Mode, result.Result.Position.PortfolioID)
	return nil
}

// reportFormError prints per-field errors before returning err
func reportFormError(w io.Writer, view services.FormView, err error) error {
	var verr *services.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(w, "  %s: %s\n", f, verr.Fields[f])
	}
	return fmt.Errorf("%s form rejected: %w", view.Kind, err)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codyseavey/folio/internal/config"
	"github.com/codyseavey/folio/internal/services"
)

var (
	backendURL   string
	backendToken string
	outputFormat string
	cmdTimeout   time.Duration
	verbose      bool
)

// rootCmd is the base command for the folio CLI
var rootCmd = &cobra.Command{
	Use:   "folioctl",
	Short: "Inspect and edit folio portfolios from the terminal",
	Long: `folioctl talks to the portfolio backend with the same services the folio
server uses: enriched dashboard summaries, asset drill-downs, position logs,
position upserts and the persisted dashboard sort order.

Backend settings come from FOLIO_* environment variables (and .env) unless
overridden with flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Portfolio backend API base (overrides FOLIO_BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&backendToken, "token", "", "Bearer token (overrides FOLIO_BACKEND_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 30*time.Second, "Overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand is built from
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend *services.BackendClient
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendURL != "" {
		cfg.BackendURL = strings.TrimRight(backendURL, "/")
	}
	if backendToken != "" {
		cfg.BackendToken = backendToken
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if outputFormat != "table" && outputFormat != "json" {
		return nil, fmt.Errorf("invalid --format %q: expected table or json", outputFormat)
	}

	log := zerolog.Nop()
	if verbose {
		log = config.NewLogger("debug", "console")
	}
	return &env{
		cfg:     cfg,
		log:     log,
		backend: services.NewBackendClient(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, log),
	}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cmdTimeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatOptional(v *float64, precision int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", precision, *v)
}

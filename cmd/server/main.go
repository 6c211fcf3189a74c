package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/codyseavey/folio/internal/api"
	"github.com/codyseavey/folio/internal/config"
	"github.com/codyseavey/folio/internal/database"
	"github.com/codyseavey/folio/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	if err := database.Initialize(cfg.DBPath, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize services
	backend := services.NewBackendClient(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, log)

	positions := services.NewPositionService(backend, log)
	workspaces, err := services.NewWorkspaces(backend, positions, cfg.Currency, cfg.TreeRefresh, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize workspaces")
	}

	prices := services.NewPriceService(backend, cfg.PriceRPS, cfg.PriceBurst, log)
	logos := services.NewLogoCache(backend, log)
	pipeline := services.NewPipeline(backend, prices, logos, log)

	view, err := services.NewDashboardView(pipeline, cfg.ScopeCacheSize, cfg.ScopeCacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize dashboard view")
	}
	positions.Subscribe(view.OnSaved)

	details := services.NewAssetDetailService(backend, prices, backend, log)
	prefs := services.NewPreferenceService(database.GetDB(), log)

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logos.Warm(ctx)

	// Keep the server workspace's tree current in background with panic recovery
	go runWithRestart(ctx, log, "tree refresher", workspaces.Start)

	router := api.SetupRouter(cfg, api.Services{
		Workspaces: workspaces,
		Logos:      logos,
		Prices:     prices,
		View:       view,
		Details:    details,
		Prefs:      prefs,
		Logs:       backend,
	}, log)

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.BackendURL).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Cancel the context to stop the refresher
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// runWithRestart runs fn until ctx is done, restarting it 30 seconds after a panic
func runWithRestart(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context)) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("worker", name).Msg("Worker panicked, restarting in 30 seconds")
				}
			}()
			fn(ctx)
		}()

		select {
		case <-ctx.Done():
			return // Graceful shutdown
		case <-time.After(30 * time.Second):
			log.Info().Str("worker", name).Msg("Worker restarting after panic recovery")
		}
	}
}

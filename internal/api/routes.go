package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/codyseavey/folio/internal/api/handlers"
	"github.com/codyseavey/folio/internal/config"
	"github.com/codyseavey/folio/internal/services"
)

// Services bundles what the HTTP surface is built on
type Services struct {
	Workspaces *services.Workspaces
	Logos      *services.LogoCache
	Prices     *services.PriceService
	View       *services.DashboardView
	Details    *services.AssetDetailService
	Prefs      *services.PreferenceService
	Logs       handlers.LogLister
}

func SetupRouter(cfg *config.Config, svc Services, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	frontendPath := cfg.FrontendDistPath
	serveFrontend := frontendPath != "" && dirExists(frontendPath)

	// CORS configuration - allow origins from config or use defaults
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:4200", "http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	dashboardHandler := handlers.NewDashboardHandler(svc.View, svc.Prefs, svc.Details)
	formHandler := handlers.NewFormHandler(svc.Workspaces)
	catalogHandler := handlers.NewCatalogHandler(svc.Workspaces, svc.Logos, svc.Logs)

	api := router.Group("/api", bearerPassthrough())
	{
		api.GET("/dashboard", dashboardHandler.GetDashboard)
		api.GET("/assets/:assetId", dashboardHandler.GetAssetDetail)
		api.GET("/logs", catalogHandler.GetLogs)

		prefs := api.Group("/preferences")
		{
			prefs.GET("/asset-sort", dashboardHandler.GetAssetSort)
			prefs.PUT("/asset-sort", dashboardHandler.PutAssetSort)
		}

		forms := api.Group("/forms")
		{
			forms.POST("", formHandler.CreateForm)
			forms.GET("/:id", formHandler.GetForm)
			forms.DELETE("/:id", formHandler.DeleteForm)
			forms.POST("/:id/portfolio", formHandler.SelectPortfolio)
			forms.POST("/:id/valuation-mode", formHandler.SetValuationMode)
			forms.POST("/:id/fields", formHandler.UpdateFields)
			forms.POST("/:id/manual-asset/open", formHandler.OpenManualAsset)
			forms.POST("/:id/manual-asset/close", formHandler.CloseManualAsset)
			forms.PUT("/:id/manual-asset", formHandler.UpdateManualAsset)
			forms.POST("/:id/manual-asset/create", formHandler.CreateManualAsset)
			forms.POST("/:id/submit", formHandler.Submit)
		}

		api.GET("/portfolios/tree", catalogHandler.GetPortfolioTree)
		api.GET("/assets", catalogHandler.GetAssets)
		api.GET("/crypto/catalog", catalogHandler.GetCryptoCatalog)
	}

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":        "ok",
			"tree":          svc.Workspaces.Server().Refresher.Status(),
			"workspaces":    svc.Workspaces.Len(),
			"price_breaker": svc.Prices.BreakerState(),
			"catalog_ready": svc.Logos.Loaded(),
			"open_forms":    svc.Workspaces.OpenForms(),
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Serve frontend static files
	if serveFrontend {
		indexPath := filepath.Join(frontendPath, "index.html")

		router.Static("/assets-static", filepath.Join(frontendPath, "assets"))
		router.StaticFile("/favicon.ico", filepath.Join(frontendPath, "favicon.ico"))

		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback - serve index.html for all non-API routes
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

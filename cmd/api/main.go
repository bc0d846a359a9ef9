package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/app"
	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/handler"
	"github.com/GTDGit/gtd_map/internal/middleware"
	"github.com/GTDGit/gtd_map/internal/sse"
	"github.com/GTDGit/gtd_map/internal/worker"
)

// embeddingBackfillLimit caps the products embedded per backfill tick.
const embeddingBackfillLimit = 200

// Handlers groups the HTTP handlers.
type Handlers struct {
	Match     *handler.MatchHandler
	Catalog   *handler.CatalogHandler
	Embedding *handler.EmbeddingHandler
	Stats     *handler.StatsHandler
	Health    *handler.HealthHandler
	Events    *handler.EventsHandler
}

// main is the entrypoint for the MAP monitoring API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	app.SetupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting gtd map api")

	// 3. Connect database, run migrations, connect Redis and build services
	a, err := app.New(cfg, "file://migrations")
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// 4. Event hub for dashboard clients
	hub := sse.NewHub()
	notifier := sse.NewHubNotifier(hub)
	a.Matching.SetNotifier(notifier)
	a.Manual.SetNotifier(notifier)

	// 5. Initialize handlers
	var redisPinger handler.Pinger
	if a.Redis != nil {
		redisPinger = handler.PingFunc(a.Redis.Ping)
	}
	handlers := &Handlers{
		Match:     handler.NewMatchHandler(a.Matching, a.Manual),
		Catalog:   handler.NewCatalogHandler(a.Catalog),
		Embedding: handler.NewEmbeddingHandler(a.Embeddings),
		Stats:     handler.NewStatsHandler(a.Stats),
		Health:    handler.NewHealthHandler(a.DB, redisPinger, a.Embeddings.ProviderName()),
		Events:    handler.NewEventsHandler(hub),
	}

	// 6. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedHosts))

	heavyLimiter := middleware.NewIPRateLimiter(10*time.Second, 3)
	setupRoutes(router, handlers, heavyLimiter.Middleware())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Start background workers
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				heavyLimiter.Cleanup(30 * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Worker.FeedSyncInterval > 0 && len(cfg.Feeds) > 0 {
		go worker.NewFeedSyncWorker(a.Catalog, cfg.Worker.FeedSyncInterval).Start(ctx)
	}
	if cfg.Worker.EmbeddingBackfillInterval > 0 && a.Embeddings.Enabled() {
		go worker.NewEmbeddingBackfillWorker(a.Embeddings, cfg.Worker.EmbeddingBackfillInterval, embeddingBackfillLimit).Start(ctx)
	}

	// 8. Start HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 9. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 10. Cancel context to stop workers
	cancel()

	// 11. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func setupRoutes(router *gin.Engine, h *Handlers, heavy gin.HandlerFunc) {
	v1 := router.Group("/v1")
	v1.GET("/health", h.Health.GetHealth)

	matches := v1.Group("/matches")
	{
		matches.POST("/generate", heavy, h.Match.Generate)
		matches.GET("", h.Match.List)
		matches.GET("/manual", h.Match.ListManual)
		matches.POST("/manual", h.Match.CreateManual)
		matches.GET("/:id", h.Match.Get)
		matches.POST("/:id/reject", h.Match.Reject)
		matches.DELETE("/:id", h.Match.Delete)
	}

	v1.GET("/violations/history", h.Match.History)

	catalog := v1.Group("/catalog")
	{
		catalog.GET("/products", h.Catalog.List)
		catalog.GET("/products/:id", h.Catalog.Get)
		catalog.POST("/vendors/fix", h.Catalog.FixVendors)
		catalog.POST("/:source/products", h.Catalog.Ingest)
		catalog.POST("/:source/sync", heavy, h.Catalog.Sync)
		catalog.DELETE("/:source", h.Catalog.DeleteSource)
	}

	v1.POST("/embeddings/update", heavy, h.Embedding.Update)
	v1.GET("/dashboard/stats", h.Stats.Dashboard)
	v1.GET("/events", h.Events.Stream)
}

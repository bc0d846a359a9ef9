// Package app wires the database, cache, repositories and services shared by
// the HTTP server and the operator CLI.
package app

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/cache"
	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/database"
	"github.com/GTDGit/gtd_map/internal/repository"
	"github.com/GTDGit/gtd_map/internal/service"
	"github.com/GTDGit/gtd_map/pkg/feed"
)

const runLockKey = "match:run"

// App holds the shared dependencies.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *cache.RedisClient // nil when Redis is unavailable

	Products *repository.ProductRepository
	Matches  *repository.MatchRepository

	Embeddings *service.EmbeddingService
	Matching   *service.MatchService
	Manual     *service.ManualMatchService
	Catalog    *service.CatalogService
	Stats      *service.StatsService
}

// New connects to Postgres and Redis and builds the service graph. When
// migrationsURL is non-empty, pending migrations are applied first. A Redis
// failure is not fatal: the run lock falls back to in-process only and
// embeddings are not cached.
func New(cfg *config.Config, migrationsURL string) (*App, error) {
	db, err := database.Connect(&cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if migrationsURL != "" {
		if err := RunMigrations(db.DB, migrationsURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info().Msg("migrations completed successfully")
	}

	a := &App{Config: cfg, DB: db}

	var (
		store       cache.Store
		vectorCache service.VectorCache
	)
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable - run lock is process-local and embeddings are not cached")
	} else {
		log.Info().Msg("redis connected successfully")
		a.Redis = redisClient
		store = redisClient
		vectorCache = cache.NewEmbeddingCache(redisClient, cfg.Embedding.CacheTTL)
	}

	a.Products = repository.NewProductRepository(db)
	a.Matches = repository.NewMatchRepository(db)

	provider := service.NewEmbeddingProvider(cfg.Embedding)
	a.Embeddings = service.NewEmbeddingService(provider, a.Products, vectorCache, cfg.Embedding.BatchSize)
	log.Info().Str("provider", a.Embeddings.ProviderName()).Msg("embedding provider configured")

	lock := cache.NewRunLock(store, runLockKey, cfg.Matching.LockTTL)
	a.Matching = service.NewMatchService(a.Products, a.Matches, lock, a.Embeddings, cfg.Matching)
	a.Manual = service.NewManualMatchService(a.Products, a.Matches, cfg.Matching.ReferenceSource)
	a.Catalog = service.NewCatalogService(a.Products, feed.NewClient(), cfg.Feeds, cfg.Matching)
	a.Stats = service.NewStatsService(a.Products, a.Matches)

	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Warn().Err(err).Msg("database close failed")
	}
}

// RunMigrations applies pending migrations from sourceURL.
func RunMigrations(db *sql.DB, sourceURL string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

package service

import (
	"context"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/repository"
	"github.com/GTDGit/gtd_map/pkg/feed"
)

// CatalogStore reads and writes catalog products.
// Implemented by repository.ProductRepository.
type CatalogStore interface {
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Upsert(ctx context.Context, p *models.Product) (*models.Product, error)
	DeleteProducts(ctx context.Context, source string, keepExternalIDs []string) (int64, error)
	UpdateEmbeddings(ctx context.Context, id string, title, features models.Vector) error
	UpdateVendor(ctx context.Context, id, vendor, features string) error
	CountBySource(ctx context.Context) ([]models.SourceCount, error)
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]models.PriceHistory, error)
}

// MatchStore persists matches and violation history.
// Implemented by repository.MatchRepository.
type MatchStore interface {
	Reconcile(ctx context.Context, fn func(w repository.MatchWriter) error) error
	ManualCompetitorIDs(ctx context.Context) ([]string, error)
	PriorAutomaticStates(ctx context.Context) ([]models.PriorMatchState, error)
	List(ctx context.Context, filter models.MatchFilter) ([]models.MatchView, int, error)
	GetByID(ctx context.Context, id string) (*models.MatchView, error)
	PairExists(ctx context.Context, idcProductID, competitorProductID string) (bool, error)
	CreateManual(ctx context.Context, m *models.ProductMatch, h *models.MapViolationHistory) error
	SetRejected(ctx context.Context, id string, rejected bool) error
	Delete(ctx context.Context, id string) error
	ListHistory(ctx context.Context, matchID string, page, limit int) ([]models.MapViolationHistory, int, error)
	Stats(ctx context.Context, minScore float64) (*models.DashboardStats, error)
}

// RunLocker guards a matching run. Implemented by cache.RunLock.
type RunLocker interface {
	TryAcquire(ctx context.Context) (func(), error)
}

// VectorCache caches embedding vectors. Implemented by cache.EmbeddingCache.
type VectorCache interface {
	Get(ctx context.Context, model, text string) ([]float64, bool, error)
	Set(ctx context.Context, model, text string, v []float64) error
}

// FeedFetcher downloads product feeds. Implemented by feed.Client.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Record, error)
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/repository"
	"github.com/GTDGit/gtd_map/internal/service"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// MatchRunner runs matching and serves match queries.
type MatchRunner interface {
	Run(ctx context.Context, threshold float64) (*models.RunSummary, error)
	DefaultThreshold() float64
	List(ctx context.Context, filter models.MatchFilter) ([]models.MatchView, int, error)
	Get(ctx context.Context, id string) (*models.MatchView, error)
	History(ctx context.Context, matchID string, page, limit int) ([]models.MapViolationHistory, int, error)
}

// ManualMatcher manages manual matches and rejections.
type ManualMatcher interface {
	Create(ctx context.Context, req service.ManualMatchRequest) (*models.ProductMatch, error)
	ListManual(ctx context.Context, page, limit int) ([]models.MatchView, int, error)
	Reject(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// CatalogManager manages catalog products.
type CatalogManager interface {
	Ingest(ctx context.Context, source string, records []models.Product) (*service.IngestResult, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	Get(ctx context.Context, id string) (*models.Product, []models.PriceHistory, error)
	DeleteSource(ctx context.Context, source string) (int64, error)
	FixVendors(ctx context.Context, dryRun bool) ([]models.VendorFix, error)
	SyncFeed(ctx context.Context, source string) (*service.IngestResult, error)
}

// EmbeddingUpdater backfills product embeddings.
type EmbeddingUpdater interface {
	Update(ctx context.Context, source string, limit int, dryRun bool) (*models.EmbeddingUpdateResult, error)
}

// DashboardReader returns dashboard statistics.
type DashboardReader interface {
	Dashboard(ctx context.Context) (*models.DashboardStats, error)
}

// handleError maps service errors to API responses.
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrMatchingBusy):
		utils.Error(c, http.StatusConflict, "MATCHING_ALREADY_RUNNING", "A matching run is already in progress")
	case errors.Is(err, utils.ErrEmptyReferenceCatalog):
		utils.Error(c, http.StatusBadRequest, "EMPTY_REFERENCE_CATALOG", "No reference products found")
	case errors.Is(err, utils.ErrEmptyCompetitorCatalog):
		utils.Error(c, http.StatusBadRequest, "EMPTY_COMPETITOR_CATALOG", "No competitor products found")
	case errors.Is(err, utils.ErrInvalidThreshold):
		utils.Error(c, http.StatusBadRequest, "INVALID_THRESHOLD", "Confidence threshold must be between 0.1 and 1.0")
	case errors.Is(err, utils.ErrProductNotFound):
		utils.Error(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
	case errors.Is(err, utils.ErrMatchNotFound):
		utils.Error(c, http.StatusNotFound, "MATCH_NOT_FOUND", "Match not found")
	case errors.Is(err, utils.ErrMatchExists):
		utils.Error(c, http.StatusConflict, "MATCH_ALREADY_EXISTS", "A match for this product pair already exists")
	case errors.Is(err, utils.ErrInvalidSource):
		utils.Error(c, http.StatusBadRequest, "INVALID_SOURCE", "Unknown or invalid product source")
	case errors.Is(err, utils.ErrNoEmbeddingProvider):
		utils.Error(c, http.StatusBadRequest, "NO_EMBEDDING_PROVIDER", "No embedding provider is configured")
	default:
		log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Request failed")
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// pagination reads page and limit, defaulting to 1 and 50. The limit is
// capped at repository.MaxPageSize so the response meta matches the rows.
func pagination(c *gin.Context) (int, int) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(c, "limit", 50)
	if limit < 1 {
		limit = 50
	}
	return page, min(limit, repository.MaxPageSize)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return b
}

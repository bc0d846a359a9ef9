package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GTDGit/gtd_map/internal/cache"
	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/matching"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/repository"
	"github.com/GTDGit/gtd_map/internal/sse"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// MatchService runs the matching pipeline and serves match queries.
type MatchService struct {
	products   CatalogStore
	matches    MatchStore
	lock       RunLocker
	embeddings *EmbeddingService
	brands     *matching.BrandResolver
	cfg        config.MatchingConfig
	notifier   sse.MatchNotifier
	now        func() time.Time
}

// NewMatchService constructs a MatchService. embeddings may be nil.
func NewMatchService(
	products CatalogStore,
	matches MatchStore,
	lock RunLocker,
	embeddings *EmbeddingService,
	cfg config.MatchingConfig,
) *MatchService {
	return &MatchService{
		products:   products,
		matches:    matches,
		lock:       lock,
		embeddings: embeddings,
		brands:     matching.NewBrandResolver(cfg.StoreVendors),
		cfg:        cfg,
		notifier:   sse.NopNotifier{},
		now:        time.Now,
	}
}

// SetNotifier sets the sink for run and violation events.
func (s *MatchService) SetNotifier(n sse.MatchNotifier) {
	s.notifier = n
}

// DefaultThreshold returns the configured confidence threshold.
func (s *MatchService) DefaultThreshold() float64 {
	return s.cfg.ConfidenceThreshold
}

// Run executes one matching run: load both catalogs, fill in missing
// embeddings, assign matches and replace every automatic match with the
// result. Only one run executes at a time; a concurrent call fails with
// utils.ErrMatchingBusy.
func (s *MatchService) Run(ctx context.Context, threshold float64) (*models.RunSummary, error) {
	if !matching.ValidThreshold(threshold) {
		return nil, utils.ErrInvalidThreshold
	}

	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrLockHeld) {
			log.Error().Err(err).Msg("Failed to acquire matching lock")
		}
		return nil, utils.ErrMatchingBusy
	}
	defer release()

	start := s.now()
	summary := &models.RunSummary{RunID: uuid.NewString(), ConfidenceThreshold: threshold}
	logger := log.With().Str("run_id", summary.RunID).Logger()

	refs, comps, err := s.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	summary.ReferenceProductsAnalyzed = len(refs)
	summary.CompetitorProductsAnalyzed = len(comps)

	if s.cfg.EmbedMissing && s.embeddings.Enabled() {
		var missing []*models.Product
		for _, p := range append(append([]*models.Product{}, refs...), comps...) {
			if !p.HasEmbeddings() {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			summary.EmbeddingFailures = s.embeddings.Embed(ctx, missing).Failed
		}
	}

	reserved := make(map[string]struct{})
	if s.cfg.ReserveManual {
		ids, err := s.matches.ManualCompetitorIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			reserved[id] = struct{}{}
		}
	}
	summary.ReservedCompetitors = len(reserved)

	states, err := s.matches.PriorAutomaticStates(ctx)
	if err != nil {
		return nil, err
	}
	prior := make(map[models.MatchPair]models.PriorMatchState, len(states))
	for _, st := range states {
		prior[st.MatchPair] = st
	}

	accepted, err := matching.Assign(ctx, s.profiles(refs), s.profiles(comps), matching.Options{
		Threshold: threshold,
		Workers:   s.cfg.ScoringWorkers,
		Reserved:  reserved,
	})
	if err != nil {
		return nil, fmt.Errorf("assign matches: %w", err)
	}

	now := s.now()
	var newViolations []models.ProductMatch
	err = s.matches.Reconcile(ctx, func(w repository.MatchWriter) error {
		deleted, err := w.DeleteAutomaticMatches(ctx)
		if err != nil {
			return err
		}
		logger.Debug().Int64("deleted", deleted).Msg("Cleared automatic matches")

		for _, m := range accepted {
			rec := m.Record(uuid.NewString(), now)
			carryForward(&rec, prior)

			if err := w.InsertMatch(ctx, &rec); err != nil {
				summary.FailedInserts++
				logger.Warn().Err(err).
					Str("idc_product_id", rec.IdcProductID).
					Str("competitor_product_id", rec.CompetitorProductID).
					Msg("Failed to insert match")
				continue
			}
			summary.MatchesCreated++
			if m.Score.Mode == matching.RuleBasedOnly {
				summary.MatchedWithoutEmbeddings++
			}
			if !rec.IsMapViolation {
				continue
			}
			summary.ViolationsDetected++
			if rec.FirstViolationDate != nil && rec.FirstViolationDate.Equal(now) {
				newViolations = append(newViolations, rec)
			}

			h := violationHistory(&rec, m.Reference.Product.Price, m.Competitor.Product.Price, models.ViolationTypeNew, now)
			if err := w.InsertViolationHistory(ctx, h); err != nil {
				logger.Warn().Err(err).Str("match_id", rec.ID).Msg("Failed to insert violation history")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile matches: %w", err)
	}

	summary.DurationMs = s.now().Sub(start).Milliseconds()
	logger.Info().
		Int("matches_created", summary.MatchesCreated).
		Int("violations_detected", summary.ViolationsDetected).
		Int("reference_products", summary.ReferenceProductsAnalyzed).
		Int("competitor_products", summary.CompetitorProductsAnalyzed).
		Int("without_embeddings", summary.MatchedWithoutEmbeddings).
		Int("failed_inserts", summary.FailedInserts).
		Float64("threshold", threshold).
		Int64("duration_ms", summary.DurationMs).
		Msg("Matching run completed")

	for i := range newViolations {
		s.notifier.NotifyViolation(&newViolations[i])
	}
	s.notifier.NotifyRunCompleted(summary)
	return summary, nil
}

func (s *MatchService) loadCatalogs(ctx context.Context) ([]*models.Product, []*models.Product, error) {
	refs, _, err := s.products.List(ctx, models.ProductFilter{Source: s.cfg.ReferenceSource})
	if err != nil {
		return nil, nil, fmt.Errorf("load reference catalog: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil, utils.ErrEmptyReferenceCatalog
	}
	comps, _, err := s.products.List(ctx, models.ProductFilter{ExcludeSource: s.cfg.ReferenceSource})
	if err != nil {
		return nil, nil, fmt.Errorf("load competitor catalog: %w", err)
	}
	if len(comps) == 0 {
		return nil, nil, utils.ErrEmptyCompetitorCatalog
	}
	return pointers(refs), pointers(comps), nil
}

func (s *MatchService) profiles(products []*models.Product) []*matching.Profile {
	out := make([]*matching.Profile, len(products))
	for i, p := range products {
		out[i] = matching.NewProfile(p, s.brands)
	}
	return out
}

// carryForward keeps the rejection flag and the first violation date of the
// previous run's automatic match of the same pair.
func carryForward(rec *models.ProductMatch, prior map[models.MatchPair]models.PriorMatchState) {
	st, ok := prior[models.MatchPair{IdcProductID: rec.IdcProductID, CompetitorProductID: rec.CompetitorProductID}]
	if !ok {
		return
	}
	rec.IsRejected = st.IsRejected
	if rec.IsMapViolation && st.FirstViolationDate != nil {
		first := *st.FirstViolationDate
		rec.FirstViolationDate = &first
	}
}

func violationHistory(rec *models.ProductMatch, idcPrice, competitorPrice decimal.NullDecimal, violationType string, now time.Time) *models.MapViolationHistory {
	matchID := rec.ID
	return &models.MapViolationHistory{
		ID:                  uuid.NewString(),
		ProductMatchID:      &matchID,
		IdcProductID:        rec.IdcProductID,
		CompetitorProductID: rec.CompetitorProductID,
		ViolationType:       violationType,
		IdcPrice:            idcPrice,
		CompetitorPrice:     competitorPrice,
		ViolationAmount:     rec.ViolationAmount,
		ViolationSeverity:   rec.ViolationSeverity,
		DetectedAt:          now,
	}
}

func pointers(products []models.Product) []*models.Product {
	out := make([]*models.Product, len(products))
	for i := range products {
		out[i] = &products[i]
	}
	return out
}

// List returns matches for the listing endpoint.
func (s *MatchService) List(ctx context.Context, filter models.MatchFilter) ([]models.MatchView, int, error) {
	return s.matches.List(ctx, filter)
}

// Get returns one match.
func (s *MatchService) Get(ctx context.Context, id string) (*models.MatchView, error) {
	m, err := s.matches.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.ErrMatchNotFound
	}
	return m, err
}

// History returns violation history, optionally for one match.
func (s *MatchService) History(ctx context.Context, matchID string, page, limit int) ([]models.MapViolationHistory, int, error) {
	return s.matches.ListHistory(ctx, matchID, page, limit)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/matching"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/sse"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// ManualMatchRequest is a human-confirmed pairing.
type ManualMatchRequest struct {
	IdcProductID        string   `json:"idcProductId" binding:"required"`
	CompetitorProductID string   `json:"competitorProductId" binding:"required"`
	Confidence          *float64 `json:"confidence"`
}

// ManualMatchService manages manual overrides: creating, rejecting and
// removing matches.
type ManualMatchService struct {
	products        CatalogStore
	matches         MatchStore
	referenceSource string
	notifier        sse.MatchNotifier
	now             func() time.Time
}

// NewManualMatchService constructs a ManualMatchService.
func NewManualMatchService(products CatalogStore, matches MatchStore, referenceSource string) *ManualMatchService {
	return &ManualMatchService{
		products:        products,
		matches:         matches,
		referenceSource: referenceSource,
		notifier:        sse.NopNotifier{},
		now:             time.Now,
	}
}

// SetNotifier sets the sink for violation events.
func (s *ManualMatchService) SetNotifier(n sse.MatchNotifier) {
	s.notifier = n
}

// Create stores a manual match with perfect component scores. The pricing
// verdict is computed from current prices, and a violating match gets a
// "manual_violation" history row.
func (s *ManualMatchService) Create(ctx context.Context, req ManualMatchRequest) (*models.ProductMatch, error) {
	overall := 1.0
	if req.Confidence != nil {
		if *req.Confidence <= 0 || *req.Confidence > 1 {
			return nil, utils.ErrInvalidThreshold
		}
		overall = *req.Confidence
	}

	ref, err := s.product(ctx, req.IdcProductID)
	if err != nil {
		return nil, err
	}
	comp, err := s.product(ctx, req.CompetitorProductID)
	if err != nil {
		return nil, err
	}
	if ref.Source != s.referenceSource || comp.Source == s.referenceSource {
		return nil, utils.ErrInvalidSource
	}

	exists, err := s.matches.PairExists(ctx, ref.ID, comp.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing match: %w", err)
	}
	if exists {
		return nil, utils.ErrMatchExists
	}

	now := s.now()
	m := matching.Match{
		Reference:  &matching.Profile{Product: ref},
		Competitor: &matching.Profile{Product: comp},
		Score:      matching.PerfectScore(overall),
		Verdict:    matching.EvaluateViolation(ref.Price, comp.Price),
	}
	rec := m.Record(uuid.NewString(), now)
	rec.Confidence = models.ConfidenceManual
	rec.IsManualMatch = true

	var h *models.MapViolationHistory
	if rec.IsMapViolation {
		h = violationHistory(&rec, ref.Price, comp.Price, models.ViolationTypeManual, now)
	}
	if err := s.matches.CreateManual(ctx, &rec, h); err != nil {
		return nil, fmt.Errorf("create manual match: %w", err)
	}

	log.Info().
		Str("match_id", rec.ID).
		Str("idc_product_id", rec.IdcProductID).
		Str("competitor_product_id", rec.CompetitorProductID).
		Bool("violation", rec.IsMapViolation).
		Msg("Manual match created")

	if rec.IsMapViolation {
		s.notifier.NotifyViolation(&rec)
	}
	return &rec, nil
}

// ListManual returns manual matches.
func (s *ManualMatchService) ListManual(ctx context.Context, page, limit int) ([]models.MatchView, int, error) {
	return s.matches.List(ctx, models.MatchFilter{ManualOnly: true, IncludeRejected: true, Page: page, Limit: limit})
}

// Reject flags a match as a false positive.
func (s *ManualMatchService) Reject(ctx context.Context, id string) error {
	if err := s.matches.SetRejected(ctx, id, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrMatchNotFound
		}
		return err
	}
	log.Info().Str("match_id", id).Msg("Match rejected")
	return nil
}

// Delete removes a match, manual or automatic.
func (s *ManualMatchService) Delete(ctx context.Context, id string) error {
	if err := s.matches.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrMatchNotFound
		}
		return err
	}
	log.Info().Str("match_id", id).Msg("Match deleted")
	return nil
}

func (s *ManualMatchService) product(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

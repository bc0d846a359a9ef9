package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/gtd_map/internal/database"
	"github.com/GTDGit/gtd_map/internal/models"
)

// MatchWriter writes one matching run's output inside a transaction.
// Each insert runs under its own savepoint, so a failed insert leaves the
// transaction usable for the rest of the run.
type MatchWriter interface {
	DeleteAutomaticMatches(ctx context.Context) (int64, error)
	InsertMatch(ctx context.Context, m *models.ProductMatch) error
	InsertViolationHistory(ctx context.Context, h *models.MapViolationHistory) error
}

// MatchRepository is the match store: product matches and violation history.
type MatchRepository struct {
	db *sqlx.DB
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Reconcile runs fn in one transaction. Nothing is committed if fn fails.
func (r *MatchRepository) Reconcile(ctx context.Context, fn func(w MatchWriter) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&txWriter{tx: tx})
	})
}

// ManualCompetitorIDs returns competitor ids held by active manual matches.
func (r *MatchRepository) ManualCompetitorIDs(ctx context.Context) ([]string, error) {
	const q = `
        SELECT DISTINCT competitor_product_id FROM product_matches
        WHERE is_manual_match = TRUE AND is_rejected = FALSE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("list manual competitor ids: %w", err)
	}
	return ids, nil
}

// PriorAutomaticStates returns the carried-over state of existing automatic
// matches that were rejected or are violating.
func (r *MatchRepository) PriorAutomaticStates(ctx context.Context) ([]models.PriorMatchState, error) {
	const q = `
        SELECT idc_product_id, competitor_product_id, first_violation_date, is_rejected
        FROM product_matches
        WHERE is_manual_match = FALSE AND (is_rejected = TRUE OR first_violation_date IS NOT NULL)`
	var states []models.PriorMatchState
	if err := r.db.SelectContext(ctx, &states, q); err != nil {
		return nil, fmt.Errorf("load prior match states: %w", err)
	}
	return states, nil
}

func matchViewSelect() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.From("product_matches m")
	sb.Join("products i", "i.id = m.idc_product_id")
	sb.Join("products c", "c.id = m.competitor_product_id")
	return sb
}

var matchViewColumns = []string{
	"m.*",
	"i.title AS idc_title", "i.vendor AS idc_vendor", "i.price AS idc_price", "i.url AS idc_url",
	"c.title AS competitor_title", "c.vendor AS competitor_vendor", "c.source AS competitor_source",
	"c.price AS competitor_price", "c.url AS competitor_url",
}

// List returns matches ordered by overall score, highest first.
func (r *MatchRepository) List(ctx context.Context, filter models.MatchFilter) ([]models.MatchView, int, error) {
	where := func(sb *sqlbuilder.SelectBuilder) {
		var conds []string
		if filter.MinConfidence > 0 {
			conds = append(conds, sb.GreaterEqualThan("m.overall_score", filter.MinConfidence))
		}
		if filter.Source != "" {
			conds = append(conds, sb.Equal("c.source", filter.Source))
		}
		if filter.ViolationsOnly {
			conds = append(conds, "m.is_map_violation = TRUE")
		}
		if filter.ManualOnly {
			conds = append(conds, "m.is_manual_match = TRUE")
		}
		if !filter.IncludeRejected {
			conds = append(conds, "m.is_rejected = FALSE")
		}
		if len(conds) > 0 {
			sb.Where(conds...)
		}
	}

	_, limit, offset := pageOffset(filter.Page, filter.Limit, 50)

	cb := matchViewSelect()
	cb.Select("COUNT(1)")
	where(cb)
	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	sb := matchViewSelect()
	sb.Select(matchViewColumns...)
	where(sb)
	sb.OrderBy("m.overall_score DESC", "m.id ASC")
	sb.Limit(limit).Offset(offset)
	query, args := sb.Build()

	var views []models.MatchView
	if err := r.db.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	return views, total, nil
}

// GetByID returns one match with product details.
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*models.MatchView, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	sb := matchViewSelect()
	sb.Select(matchViewColumns...)
	sb.Where(sb.Equal("m.id", id))
	sb.Limit(1)
	query, args := sb.Build()

	var v models.MatchView
	if err := r.db.GetContext(ctx, &v, query, args...); err != nil {
		return nil, err
	}
	return &v, nil
}

// PairExists reports whether any match exists for the pair.
func (r *MatchRepository) PairExists(ctx context.Context, idcProductID, competitorProductID string) (bool, error) {
	if !validID(idcProductID) || !validID(competitorProductID) {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM product_matches WHERE idc_product_id = $1 AND competitor_product_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, idcProductID, competitorProductID); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateManual inserts a manual match and, when given, its history row.
func (r *MatchRepository) CreateManual(ctx context.Context, m *models.ProductMatch, h *models.MapViolationHistory) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertMatch(ctx, tx, m); err != nil {
			return err
		}
		if h == nil {
			return nil
		}
		return insertHistory(ctx, tx, h)
	})
}

// SetRejected flags or unflags a match as rejected.
func (r *MatchRepository) SetRejected(ctx context.Context, id string, rejected bool) error {
	if !validID(id) {
		return sql.ErrNoRows
	}
	const q = `UPDATE product_matches SET is_rejected = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, rejected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a match. Its history rows keep their product ids.
func (r *MatchRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM product_matches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListHistory returns violation history, newest first. An empty matchID
// lists every row.
func (r *MatchRepository) ListHistory(ctx context.Context, matchID string, page, limit int) ([]models.MapViolationHistory, int, error) {
	if matchID != "" && !validID(matchID) {
		return nil, 0, nil
	}
	_, limit, offset := pageOffset(page, limit, 50)

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(1)").From("map_violation_history")
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("map_violation_history")
	if matchID != "" {
		cb.Where(cb.Equal("product_match_id", matchID))
		sb.Where(sb.Equal("product_match_id", matchID))
	}
	sb.OrderBy("detected_at DESC", "id ASC")
	sb.Limit(limit).Offset(offset)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count violation history: %w", err)
	}

	query, args := sb.Build()
	var rows []models.MapViolationHistory
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list violation history: %w", err)
	}
	return rows, total, nil
}

// Stats aggregates match counts. Violations and revenue at risk only count
// non-rejected matches scoring at least minScore.
func (r *MatchRepository) Stats(ctx context.Context, minScore float64) (*models.DashboardStats, error) {
	const q = `
        SELECT
            COUNT(1) AS total_matches,
            COUNT(1) FILTER (WHERE is_manual_match) AS manual_matches,
            COUNT(1) FILTER (WHERE is_rejected) AS rejected_matches,
            COUNT(1) FILTER (WHERE is_map_violation AND NOT is_rejected AND overall_score >= $1) AS map_violations,
            COALESCE(SUM(violation_amount) FILTER (WHERE is_map_violation AND NOT is_rejected AND overall_score >= $1), 0) AS revenue_at_risk,
            MAX(last_checked) AS last_match_check
        FROM product_matches`
	const worstQ = `
        SELECT c.source, COUNT(1) AS count
        FROM product_matches m
        JOIN products c ON c.id = m.competitor_product_id
        WHERE m.is_map_violation AND NOT m.is_rejected AND m.overall_score >= $1
        GROUP BY c.source
        ORDER BY count DESC, c.source ASC
        LIMIT 1`

	var stats models.DashboardStats
	if err := r.db.GetContext(ctx, &stats, q, minScore); err != nil {
		return nil, fmt.Errorf("match stats: %w", err)
	}

	var worst models.SourceCount
	switch err := r.db.GetContext(ctx, &worst, worstQ, minScore); {
	case err == nil:
		stats.WorstOffender = &worst
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("worst offender: %w", err)
	}
	return &stats, nil
}

// txWriter implements MatchWriter on a transaction.
type txWriter struct {
	tx *sqlx.Tx
}

func (w *txWriter) DeleteAutomaticMatches(ctx context.Context) (int64, error) {
	res, err := w.tx.ExecContext(ctx, `DELETE FROM product_matches WHERE is_manual_match = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("delete automatic matches: %w", err)
	}
	return res.RowsAffected()
}

func (w *txWriter) InsertMatch(ctx context.Context, m *models.ProductMatch) error {
	return w.savepoint(ctx, func() error { return insertMatch(ctx, w.tx, m) })
}

func (w *txWriter) InsertViolationHistory(ctx context.Context, h *models.MapViolationHistory) error {
	return w.savepoint(ctx, func() error { return insertHistory(ctx, w.tx, h) })
}

func (w *txWriter) savepoint(ctx context.Context, fn func() error) error {
	if _, err := w.tx.ExecContext(ctx, `SAVEPOINT match_write`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := w.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT match_write`); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return err
	}
	_, err := w.tx.ExecContext(ctx, `RELEASE SAVEPOINT match_write`)
	return err
}

func insertMatch(ctx context.Context, db sqlx.ExecerContext, m *models.ProductMatch) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("product_matches")
	ib.Cols(
		"id", "idc_product_id", "competitor_product_id",
		"overall_score", "title_similarity", "brand_similarity", "type_similarity", "price_similarity",
		"embedding_similarity", "confidence",
		"price_difference", "price_difference_percent", "is_map_violation", "violation_amount", "violation_severity",
		"is_manual_match", "is_rejected", "first_violation_date", "last_checked", "created_at", "updated_at",
	)
	ib.Values(
		m.ID, m.IdcProductID, m.CompetitorProductID,
		m.OverallScore, m.TitleSimilarity, m.BrandSimilarity, m.TypeSimilarity, m.PriceSimilarity,
		m.EmbeddingSimilarity, m.Confidence,
		m.PriceDifference, m.PriceDifferencePercent, m.IsMapViolation, m.ViolationAmount, m.ViolationSeverity,
		m.IsManualMatch, m.IsRejected, m.FirstViolationDate, m.LastChecked, m.CreatedAt, m.UpdatedAt,
	)
	query, args := ib.Build()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

func insertHistory(ctx context.Context, db sqlx.ExecerContext, h *models.MapViolationHistory) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("map_violation_history")
	ib.Cols(
		"id", "product_match_id", "idc_product_id", "competitor_product_id", "violation_type",
		"idc_price", "competitor_price", "violation_amount", "violation_severity", "detected_at",
	)
	ib.Values(
		h.ID, h.ProductMatchID, h.IdcProductID, h.CompetitorProductID, h.ViolationType,
		h.IdcPrice, h.CompetitorPrice, h.ViolationAmount, h.ViolationSeverity, h.DetectedAt,
	)
	query, args := ib.Build()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert violation history %s: %w", h.ID, err)
	}
	return nil
}

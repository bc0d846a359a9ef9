package service

import (
	"context"

	"github.com/GTDGit/gtd_map/internal/models"
)

// ActiveViolationScore is the minimum overall score for a violation to count
// on the dashboard.
const ActiveViolationScore = 0.8

// StatsService aggregates dashboard numbers.
type StatsService struct {
	products CatalogStore
	matches  MatchStore
}

// NewStatsService constructs a StatsService.
func NewStatsService(products CatalogStore, matches MatchStore) *StatsService {
	return &StatsService{products: products, matches: matches}
}

// Dashboard returns product counts per source and match statistics.
func (s *StatsService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	stats, err := s.matches.Stats(ctx, ActiveViolationScore)
	if err != nil {
		return nil, err
	}
	counts, err := s.products.CountBySource(ctx)
	if err != nil {
		return nil, err
	}
	stats.Products = counts
	return stats, nil
}

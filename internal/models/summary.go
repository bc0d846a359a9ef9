package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunSummary reports the outcome of one matching run.
type RunSummary struct {
	RunID                      string  `json:"runId"`
	MatchesCreated             int     `json:"matchesCreated"`
	ViolationsDetected         int     `json:"violationsDetected"`
	ReferenceProductsAnalyzed  int     `json:"referenceProductsAnalyzed"`
	CompetitorProductsAnalyzed int     `json:"competitorProductsAnalyzed"`
	MatchedWithoutEmbeddings   int     `json:"matchedWithoutEmbeddings"`
	EmbeddingFailures          int     `json:"embeddingFailures"`
	ReservedCompetitors        int     `json:"reservedCompetitors"`
	FailedInserts              int     `json:"failedInserts"`
	ConfidenceThreshold        float64 `json:"confidenceThreshold"`
	DurationMs                 int64   `json:"durationMs"`
}

// EmbeddingUpdateResult reports an embedding backfill pass.
type EmbeddingUpdateResult struct {
	Candidates int  `json:"candidates"`
	Updated    int  `json:"updated"`
	Failed     int  `json:"failed"`
	Cached     int  `json:"cached"`
	DryRun     bool `json:"dryRun"`
}

// VendorFix describes one brand re-resolution.
type VendorFix struct {
	ID        string `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	OldVendor string `db:"old_vendor" json:"oldVendor"`
	NewVendor string `db:"new_vendor" json:"newVendor"`
}

// SourceCount is a product count for one source.
type SourceCount struct {
	Source string `db:"source" json:"source"`
	Count  int    `db:"count" json:"count"`
}

// DashboardStats aggregates the monitoring state.
type DashboardStats struct {
	Products       []SourceCount   `json:"products"`
	TotalMatches   int             `db:"total_matches" json:"totalMatches"`
	ManualMatches  int             `db:"manual_matches" json:"manualMatches"`
	RejectedCount  int             `db:"rejected_matches" json:"rejectedMatches"`
	MapViolations  int             `db:"map_violations" json:"mapViolations"`
	RevenueAtRisk  decimal.Decimal `db:"revenue_at_risk" json:"revenueAtRisk"`
	WorstOffender  *SourceCount    `json:"worstOffender,omitempty"`
	LastMatchCheck *time.Time      `db:"last_match_check" json:"lastMatchCheck,omitempty"`
}

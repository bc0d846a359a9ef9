package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Confidence labels derived from overall_score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceManual = "manual"
)

// Violation types recorded in map_violation_history.
const (
	ViolationTypeNew    = "new_violation"
	ViolationTypeManual = "manual_violation"
)

// ProductMatch pairs one reference product with one competitor product.
type ProductMatch struct {
	ID                  string `db:"id" json:"id"`
	IdcProductID        string `db:"idc_product_id" json:"idcProductId"`
	CompetitorProductID string `db:"competitor_product_id" json:"competitorProductId"`

	OverallScore        float64  `db:"overall_score" json:"overallScore"`
	TitleSimilarity     float64  `db:"title_similarity" json:"titleSimilarity"`
	BrandSimilarity     float64  `db:"brand_similarity" json:"brandSimilarity"`
	TypeSimilarity      float64  `db:"type_similarity" json:"typeSimilarity"`
	PriceSimilarity     float64  `db:"price_similarity" json:"priceSimilarity"`
	EmbeddingSimilarity *float64 `db:"embedding_similarity" json:"embeddingSimilarity"`
	Confidence          string   `db:"confidence" json:"confidence"`

	PriceDifference        decimal.Decimal     `db:"price_difference" json:"priceDifference"`
	PriceDifferencePercent float64             `db:"price_difference_percent" json:"priceDifferencePercent"`
	IsMapViolation         bool                `db:"is_map_violation" json:"isMapViolation"`
	ViolationAmount        decimal.NullDecimal `db:"violation_amount" json:"violationAmount"`
	ViolationSeverity      *float64            `db:"violation_severity" json:"violationSeverity"`

	IsManualMatch      bool       `db:"is_manual_match" json:"isManualMatch"`
	IsRejected         bool       `db:"is_rejected" json:"isRejected"`
	FirstViolationDate *time.Time `db:"first_violation_date" json:"firstViolationDate,omitempty"`
	LastChecked        time.Time  `db:"last_checked" json:"lastChecked"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// MatchView is a ProductMatch joined with the display fields of both products.
type MatchView struct {
	ProductMatch

	IdcTitle         string              `db:"idc_title" json:"idcTitle"`
	IdcVendor        string              `db:"idc_vendor" json:"idcVendor"`
	IdcPrice         decimal.NullDecimal `db:"idc_price" json:"idcPrice"`
	IdcURL           string              `db:"idc_url" json:"idcUrl"`
	CompetitorTitle  string              `db:"competitor_title" json:"competitorTitle"`
	CompetitorVendor string              `db:"competitor_vendor" json:"competitorVendor"`
	CompetitorSource string              `db:"competitor_source" json:"competitorSource"`
	CompetitorPrice  decimal.NullDecimal `db:"competitor_price" json:"competitorPrice"`
	CompetitorURL    string              `db:"competitor_url" json:"competitorUrl"`
}

// MatchFilter narrows match listings.
type MatchFilter struct {
	MinConfidence   float64
	Source          string
	ViolationsOnly  bool
	ManualOnly      bool
	IncludeRejected bool
	Page            int
	Limit           int
}

// MapViolationHistory is an append-only record of a violation detection event.
type MapViolationHistory struct {
	ID                  string              `db:"id" json:"id"`
	ProductMatchID      *string             `db:"product_match_id" json:"productMatchId"`
	IdcProductID        string              `db:"idc_product_id" json:"idcProductId"`
	CompetitorProductID string              `db:"competitor_product_id" json:"competitorProductId"`
	ViolationType       string              `db:"violation_type" json:"violationType"`
	IdcPrice            decimal.NullDecimal `db:"idc_price" json:"idcPrice"`
	CompetitorPrice     decimal.NullDecimal `db:"competitor_price" json:"competitorPrice"`
	ViolationAmount     decimal.NullDecimal `db:"violation_amount" json:"violationAmount"`
	ViolationSeverity   *float64            `db:"violation_severity" json:"violationSeverity"`
	DetectedAt          time.Time           `db:"detected_at" json:"detectedAt"`
}

// MatchPair identifies a reference/competitor pairing.
type MatchPair struct {
	IdcProductID        string `db:"idc_product_id"`
	CompetitorProductID string `db:"competitor_product_id"`
}

// PriorMatchState is read from the previous run's automatic match of a pair
// before the wipe and carried onto the regenerated match.
type PriorMatchState struct {
	MatchPair
	FirstViolationDate *time.Time `db:"first_violation_date"`
	IsRejected         bool       `db:"is_rejected"`
}

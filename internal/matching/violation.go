package matching

import (
	"github.com/shopspring/decimal"

	"github.com/GTDGit/gtd_map/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Verdict is the pricing-compliance outcome of a match.
type Verdict struct {
	PriceDifference        decimal.Decimal
	PriceDifferencePercent float64
	IsMapViolation         bool
	ViolationAmount        decimal.NullDecimal
	ViolationSeverity      *float64
}

// EvaluateViolation compares a competitor price against the reference (MAP)
// price. A competitor price strictly below the reference is a violation.
// An unknown or non-positive competitor price is never a violation.
func EvaluateViolation(reference, competitor decimal.NullDecimal) Verdict {
	ref := reference.Decimal
	if !reference.Valid {
		ref = decimal.Zero
	}
	comp := competitor.Decimal
	if !competitor.Valid {
		comp = decimal.Zero
	}

	v := Verdict{PriceDifference: comp.Sub(ref)}
	if ref.IsPositive() {
		v.PriceDifferencePercent = v.PriceDifference.Div(ref).Mul(hundred).InexactFloat64()
	}
	if !comp.IsPositive() || !comp.LessThan(ref) {
		return v
	}

	amount := ref.Sub(comp)
	severity := amount.Div(ref).Mul(hundred).InexactFloat64()
	v.IsMapViolation = true
	v.ViolationAmount = decimal.NewNullDecimal(amount)
	v.ViolationSeverity = &severity
	return v
}

// ConfidenceLabel buckets an overall score.
func ConfidenceLabel(overall float64) string {
	switch {
	case overall >= 0.9:
		return models.ConfidenceHigh
	case overall >= 0.8:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

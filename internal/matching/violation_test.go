package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_map/internal/models"
)

func price(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestEvaluateViolation(t *testing.T) {
	tests := []struct {
		name        string
		ref, comp   decimal.NullDecimal
		wantDiff    string
		wantPercent float64
		wantAmount  string // empty when compliant
		wantSev     float64
	}{
		{
			name: "undercut", ref: price("3200"), comp: price("3050"),
			wantDiff: "-150", wantPercent: -4.6875, wantAmount: "150", wantSev: 4.6875,
		},
		{
			name: "equal price is compliant", ref: price("1000"), comp: price("1000"),
			wantDiff: "0", wantPercent: 0,
		},
		{
			name: "above reference", ref: price("1000"), comp: price("1100"),
			wantDiff: "100", wantPercent: 10,
		},
		{
			name: "cents", ref: price("899.99"), comp: price("849.99"),
			wantDiff: "-50", wantPercent: -5.555617284636496, wantAmount: "50", wantSev: 5.555617284636496,
		},
		{
			name: "unknown reference price", ref: decimal.NullDecimal{}, comp: price("100"),
			wantDiff: "100", wantPercent: 0,
		},
		{
			name: "unknown competitor price", ref: price("100"), comp: decimal.NullDecimal{},
			wantDiff: "-100", wantPercent: -100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := EvaluateViolation(tt.ref, tt.comp)
			assert.True(t, v.PriceDifference.Equal(decimal.RequireFromString(tt.wantDiff)), "diff = %s", v.PriceDifference)
			assert.InDelta(t, tt.wantPercent, v.PriceDifferencePercent, 1e-6)

			if tt.wantAmount == "" {
				assert.False(t, v.IsMapViolation)
				assert.False(t, v.ViolationAmount.Valid)
				assert.Nil(t, v.ViolationSeverity)
				return
			}
			assert.True(t, v.IsMapViolation)
			require.True(t, v.ViolationAmount.Valid)
			assert.True(t, v.ViolationAmount.Decimal.Equal(decimal.RequireFromString(tt.wantAmount)))
			require.NotNil(t, v.ViolationSeverity)
			assert.InDelta(t, tt.wantSev, *v.ViolationSeverity, 1e-6)
		})
	}
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, models.ConfidenceHigh, ConfidenceLabel(0.95))
	assert.Equal(t, models.ConfidenceHigh, ConfidenceLabel(0.9))
	assert.Equal(t, models.ConfidenceMedium, ConfidenceLabel(0.85))
	assert.Equal(t, models.ConfidenceMedium, ConfidenceLabel(0.8))
	assert.Equal(t, models.ConfidenceLow, ConfidenceLabel(0.79))
}

func TestValidThreshold(t *testing.T) {
	assert.True(t, ValidThreshold(0.1))
	assert.True(t, ValidThreshold(DefaultThreshold))
	assert.True(t, ValidThreshold(1.0))
	assert.False(t, ValidThreshold(0.09))
	assert.False(t, ValidThreshold(1.01))
}

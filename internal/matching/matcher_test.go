package matching

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_map/internal/models"
)

func product(id, source, vendor, title, productType string, price float64, embedding ...float64) *models.Product {
	p := &models.Product{
		ID:          id,
		ExternalID:  id,
		Source:      source,
		Vendor:      vendor,
		Title:       title,
		ProductType: productType,
	}
	if price > 0 {
		p.Price = decimal.NewNullDecimal(decimal.NewFromFloat(price))
	}
	if len(embedding) > 0 {
		p.TitleEmbedding = embedding
	}
	return p
}

func profiles(products ...*models.Product) []*Profile {
	brands := NewBrandResolver([]string{"idrinkcoffee"})
	out := make([]*Profile, len(products))
	for i, p := range products {
		out[i] = NewProfile(p, brands)
	}
	return out
}

func pairs(matches []Match) map[string]string {
	out := make(map[string]string, len(matches))
	for _, m := range matches {
		out[m.Reference.Product.ID] = m.Competitor.Product.ID
	}
	return out
}

func TestAssign_ECMSynchronikaViolation(t *testing.T) {
	refs := profiles(product("r1", models.SourceReference, "ECM", "ECM Synchronika", "", 3200))
	comps := profiles(product("c1", "cafe_liegeois", "ECM", "ECM Synchronika Dual Boiler", "", 3050))

	matches, err := Assign(context.Background(), refs, comps, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "c1", m.Competitor.Product.ID)
	assert.GreaterOrEqual(t, m.Score.Overall, 0.5)
	assert.True(t, m.Verdict.IsMapViolation)
	require.True(t, m.Verdict.ViolationAmount.Valid)
	assert.True(t, m.Verdict.ViolationAmount.Decimal.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, m.Verdict.ViolationSeverity)
	assert.InDelta(t, 4.6875, *m.Verdict.ViolationSeverity, 1e-9)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := m.Record("m1", now)
	assert.Equal(t, "r1", rec.IdcProductID)
	assert.Equal(t, "c1", rec.CompetitorProductID)
	assert.Equal(t, models.ConfidenceLow, rec.Confidence)
	assert.Nil(t, rec.EmbeddingSimilarity)
	require.NotNil(t, rec.FirstViolationDate)
	assert.Equal(t, now, *rec.FirstViolationDate)
	assert.False(t, rec.IsManualMatch)
}

func TestAssign_BrandGate(t *testing.T) {
	refs := profiles(product("r1", models.SourceReference, "Eureka", "Eureka Mignon Silenzio", "Grinders", 400))
	comps := profiles(product("c1", "kitchen_barista", "Profitec", "Profitec Mignon Silenzio", "Grinders", 395))

	matches, err := Assign(context.Background(), refs, comps, Options{Threshold: MinThreshold})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAssign_ThresholdRespected(t *testing.T) {
	refs := profiles(product("r1", models.SourceReference, "ECM", "ECM Synchronika", "", 3200))
	comps := profiles(product("c1", "cafe_liegeois", "ECM", "ECM Synchronika Dual Boiler", "", 3050))

	matches, err := Assign(context.Background(), refs, comps, Options{Threshold: DefaultThreshold})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// Scores at threshold 0.8 (rule based):
//
//	r-jump vs c-jump 1.00, r-jump vs c-jump-pid 0.90
//	r-dual vs c-jump 0.85, r-dual vs c-jump-pid 0.85
func jumpCatalog() (refJump, refDual, compJump, compPID *models.Product) {
	refJump = product("r-jump", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000)
	refDual = product("r-dual", models.SourceReference, "Profitec", "Profitec Jump Dual Boiler", "Espresso Machines", 1000)
	compJump = product("c-jump", "home_coffee_solutions", "Profitec", "Profitec Jump", "Espresso Machines", 1000)
	compPID = product("c-jump-pid", "home_coffee_solutions", "Profitec", "Profitec Jump PID", "Espresso Machines", 1000)
	return
}

func TestAssign_ReferenceOrderDecides(t *testing.T) {
	refJump, refDual, compJump, compPID := jumpCatalog()
	comps := profiles(compJump, compPID)

	t.Run("input order", func(t *testing.T) {
		matches, err := Assign(context.Background(), profiles(refJump, refDual), comps, Options{Threshold: 0.8})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"r-jump": "c-jump", "r-dual": "c-jump-pid"}, pairs(matches))
	})

	t.Run("reversed order", func(t *testing.T) {
		matches, err := Assign(context.Background(), profiles(refDual, refJump), comps, Options{Threshold: 0.8})
		require.NoError(t, err)
		// r-dual ties between both and keeps the first candidate
		assert.Equal(t, map[string]string{"r-dual": "c-jump", "r-jump": "c-jump-pid"}, pairs(matches))
	})
}

func TestAssign_BestCandidateOnly(t *testing.T) {
	refJump, _, compJump, compPID := jumpCatalog()

	matches, err := Assign(context.Background(), profiles(refJump), profiles(compPID, compJump), Options{Threshold: 0.8})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c-jump", matches[0].Competitor.Product.ID)
	assert.InDelta(t, 1.0, matches[0].Score.Overall, 1e-9)
	assert.Equal(t, models.ConfidenceHigh, ConfidenceLabel(matches[0].Score.Overall))
}

func TestAssign_Exclusivity(t *testing.T) {
	refs := profiles(
		product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000),
		product("r2", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000),
		product("r3", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000),
	)
	comps := profiles(
		product("c1", "cafe_liegeois", "Profitec", "Profitec Jump", "Espresso Machines", 1000),
		product("c2", "cafe_liegeois", "Profitec", "Profitec Jump", "Espresso Machines", 1000),
	)

	matches, err := Assign(context.Background(), refs, comps, Options{Threshold: 0.5, Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r1": "c1", "r2": "c2"}, pairs(matches))
}

func TestAssign_ReservedCompetitorsSkipped(t *testing.T) {
	refJump, _, compJump, compPID := jumpCatalog()

	matches, err := Assign(context.Background(), profiles(refJump), profiles(compJump, compPID), Options{
		Threshold: 0.8,
		Reserved:  map[string]struct{}{"c-jump": {}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r-jump": "c-jump-pid"}, pairs(matches))
}

func TestAssign_Deterministic(t *testing.T) {
	refJump, refDual, compJump, compPID := jumpCatalog()
	refs := profiles(refJump, refDual,
		product("r-ecm", models.SourceReference, "ECM", "ECM Synchronika", "", 3200),
		product("r-eureka", models.SourceReference, "idrinkcoffee", "Eureka Mignon Oro", "Grinders", 900),
	)
	comps := profiles(compPID, compJump,
		product("c-ecm", "cafe_liegeois", "ECM", "ECM Synchronika Dual Boiler", "", 3050),
		product("c-eureka", "kitchen_barista", "", "Eureka Mignon Oro Single Dose", "Grinders", 850),
	)

	first, err := Assign(context.Background(), refs, comps, Options{Threshold: 0.5, Workers: 4})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Assign(context.Background(), refs, comps, Options{Threshold: 0.5, Workers: 4})
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].Reference.Product.ID, again[j].Reference.Product.ID)
			assert.Equal(t, first[j].Competitor.Product.ID, again[j].Competitor.Product.ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}

	seen := map[string]bool{}
	for _, m := range first {
		assert.GreaterOrEqual(t, m.Score.Overall, 0.5)
		assert.True(t, SameBrand(m.Reference.Brand, m.Competitor.Brand))
		assert.False(t, seen[m.Competitor.Product.ID], "competitor %s matched twice", m.Competitor.Product.ID)
		seen[m.Competitor.Product.ID] = true
	}
}

func TestAssign_NullReferencePriceStillMatches(t *testing.T) {
	refs := profiles(product("r1", models.SourceReference, "Lelit", "Lelit Bianca", "Espresso Machines", 0))
	comps := profiles(product("c1", "cafe_liegeois", "Lelit", "Lelit Bianca", "Espresso Machines", 3100))

	matches, err := Assign(context.Background(), refs, comps, Options{Threshold: 0.8})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Score.Price)
	assert.InDelta(t, 0.9, matches[0].Score.Overall, 1e-9)
	assert.False(t, matches[0].Verdict.IsMapViolation)
	assert.Zero(t, matches[0].Verdict.PriceDifferencePercent)
}

func TestAssign_Canceled(t *testing.T) {
	refJump, _, compJump, _ := jumpCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Assign(ctx, profiles(refJump), profiles(compJump), Options{Threshold: 0.5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssign_IdenticalPairPassesMaxThreshold(t *testing.T) {
	tests := []struct {
		name      string
		embedding []float64
	}{
		{"rule based", nil},
		{"with embeddings", []float64{0.3, 0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := profiles(product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1399, tt.embedding...))
			comps := profiles(product("c1", "cafe", "Profitec", "Profitec Jump", "Espresso Machines", 1399, tt.embedding...))

			matches, err := Assign(context.Background(), refs, comps, Options{Threshold: MaxThreshold})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, 1.0, matches[0].Score.Overall)
		})
	}
}

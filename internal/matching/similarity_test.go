package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_map/internal/models"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rocket Espresso Appartamento Semi-Automatic Machine!", "rocket appartamento"},
		{"Eureka Mignon Specialita (Black) - Grinder", "eureka mignon specialita black"},
		{"ECM   Synchronika", "ecm synchronika"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTitle(tt.in))
		})
	}
}

func TestTitleTokens_DropsShortTokens(t *testing.T) {
	assert.Equal(t, []string{"lelit", "bianca"}, TitleTokens("Lelit Bianca V3 PL"))
}

func TestTokenOverlap(t *testing.T) {
	t.Run("exact tokens", func(t *testing.T) {
		assert.InDelta(t, 0.5, TitleSimilarity("ECM Synchronika", "ECM Synchronika Dual Boiler"), 1e-9)
	})
	t.Run("substring counts half", func(t *testing.T) {
		assert.InDelta(t, 0.5, TokenOverlap([]string{"synchronika"}, []string{"synchron"}), 1e-9)
		assert.InDelta(t, 0.5, TokenOverlap([]string{"synchron"}, []string{"synchronika"}), 1e-9)
	})
	t.Run("first match wins", func(t *testing.T) {
		// "pro" hits "profitec" as a substring before reaching the exact "pro"
		assert.InDelta(t, 0.5, TokenOverlap([]string{"pro"}, []string{"profitec", "pro"}), 1e-9)
	})
	t.Run("empty side", func(t *testing.T) {
		assert.Zero(t, TokenOverlap(nil, []string{"ecm"}))
		assert.Zero(t, TitleSimilarity("Espresso Machine", "ECM Synchronika"))
	})
}

func TestTypeSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TypeSimilarity("Espresso Machines", "espresso machines"))
	assert.Equal(t, 0.0, TypeSimilarity("Espresso Machines", "Super Automatic Espresso Machines"))
	assert.Equal(t, 0.0, TypeSimilarity("", ""))
	assert.Equal(t, 0.0, TypeSimilarity("Grinders", ""))
}

func TestPriceSimilarity(t *testing.T) {
	assert.InDelta(t, 0.953125, PriceSimilarity(3200, 3050), 1e-9)
	assert.InDelta(t, 0.953125, PriceSimilarity(3050, 3200), 1e-9)
	assert.Equal(t, 1.0, PriceSimilarity(100, 100))
	assert.Zero(t, PriceSimilarity(0, 100))
	assert.Zero(t, PriceSimilarity(100, 0))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestWeights_SumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, EmbeddingWeights.Sum(), 1e-12)
	assert.InDelta(t, 1.0, RuleBasedWeights.Sum(), 1e-12)

	assert.Equal(t, Weights{Embedding: 0.40, Brand: 0.25, Title: 0.20, Type: 0.10, Price: 0.05}, EmbeddingWeights)
	assert.Equal(t, Weights{Brand: 0.40, Title: 0.30, Type: 0.20, Price: 0.10}, RuleBasedWeights)
}

func TestScorePair(t *testing.T) {
	brands := NewBrandResolver([]string{"idrinkcoffee"})

	t.Run("perfect pair with embeddings scores one", func(t *testing.T) {
		ref := NewProfile(product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0), brands)
		cand := NewProfile(product("c1", "cafe", "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0), brands)

		s := ScorePair(ref, cand)
		assert.Equal(t, WithEmbeddings, s.Mode)
		require.NotNil(t, s.Embedding)
		assert.InDelta(t, 1.0, *s.Embedding, 1e-9)
		assert.Equal(t, 1.0, s.Overall)
	})

	t.Run("embedding weight applies", func(t *testing.T) {
		ref := NewProfile(product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0), brands)
		cand := NewProfile(product("c1", "cafe", "Profitec", "Profitec Jump", "Espresso Machines", 1000, 0, 1), brands)

		s := ScorePair(ref, cand)
		assert.Equal(t, WithEmbeddings, s.Mode)
		assert.InDelta(t, 0.60, s.Overall, 1e-9)
	})

	t.Run("missing embedding on one side falls back", func(t *testing.T) {
		ref := NewProfile(product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0), brands)
		cand := NewProfile(product("c1", "cafe", "Profitec", "Profitec Jump", "Espresso Machines", 1000), brands)

		s := ScorePair(ref, cand)
		assert.Equal(t, RuleBasedOnly, s.Mode)
		assert.Nil(t, s.Embedding)
		assert.Equal(t, 1.0, s.Overall, "identical products score exactly one")
	})

	t.Run("mismatched vector lengths score zero embedding", func(t *testing.T) {
		ref := NewProfile(product("r1", models.SourceReference, "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0), brands)
		cand := NewProfile(product("c1", "cafe", "Profitec", "Profitec Jump", "Espresso Machines", 1000, 1, 0, 0), brands)

		s := ScorePair(ref, cand)
		assert.Equal(t, WithEmbeddings, s.Mode)
		require.NotNil(t, s.Embedding)
		assert.Zero(t, *s.Embedding)
		assert.InDelta(t, 0.60, s.Overall, 1e-9)
	})

	t.Run("rule based components", func(t *testing.T) {
		ref := NewProfile(product("r1", models.SourceReference, "ECM", "ECM Synchronika", "", 3200), brands)
		cand := NewProfile(product("c1", "cafe", "ECM", "ECM Synchronika Dual Boiler", "", 3050), brands)

		s := ScorePair(ref, cand)
		assert.Equal(t, 1.0, s.Brand)
		assert.InDelta(t, 0.5, s.Title, 1e-9)
		assert.Zero(t, s.Type)
		assert.InDelta(t, 0.953125, s.Price, 1e-9)
		assert.InDelta(t, 0.4+0.15+0.0953125, s.Overall, 1e-9)
	})
}

package matching

import (
	"math"
	"strings"

	"github.com/GTDGit/gtd_map/internal/models"
)

// ScoringMode selects the weight set of a composite score.
type ScoringMode int

const (
	// RuleBasedOnly scores with brand, title, type and price only.
	RuleBasedOnly ScoringMode = iota
	// WithEmbeddings adds cosine similarity of the title embeddings.
	WithEmbeddings
)

func (m ScoringMode) String() string {
	if m == WithEmbeddings {
		return "with_embeddings"
	}
	return "rule_based_only"
}

// Weights of the composite score. Each set sums to 1.
type Weights struct {
	Embedding float64
	Brand     float64
	Title     float64
	Type      float64
	Price     float64
}

var (
	EmbeddingWeights = Weights{Embedding: 0.40, Brand: 0.25, Title: 0.20, Type: 0.10, Price: 0.05}
	RuleBasedWeights = Weights{Brand: 0.40, Title: 0.30, Type: 0.20, Price: 0.10}
)

// WeightsFor returns the weight set of a mode.
func WeightsFor(mode ScoringMode) Weights {
	if mode == WithEmbeddings {
		return EmbeddingWeights
	}
	return RuleBasedWeights
}

// Sum adds up the weights.
func (w Weights) Sum() float64 {
	return w.Embedding + w.Brand + w.Title + w.Type + w.Price
}

// Score is the similarity record of one reference/candidate pair.
type Score struct {
	Mode      ScoringMode
	Overall   float64
	Title     float64
	Brand     float64
	Type      float64
	Price     float64
	Embedding *float64 // nil in RuleBasedOnly mode
}

// Profile is a product prepared for scoring: brand resolved and title
// tokenized once per run.
type Profile struct {
	Product   *models.Product
	Brand     string
	Tokens    []string
	Embedding []float64

	brandKey string
	price    float64
}

// NewProfile prepares p for scoring.
func NewProfile(p *models.Product, brands *BrandResolver) *Profile {
	brand := brands.Resolve(p.Vendor, p.Title)
	return &Profile{
		Product:   p,
		Brand:     brand,
		Tokens:    TitleTokens(p.Title),
		Embedding: p.TitleEmbedding,
		brandKey:  strings.ToLower(strings.TrimSpace(brand)),
		price:     p.PriceValue(),
	}
}

// BrandKey is the case-folded brand used for brand scoping.
func (p *Profile) BrandKey() string {
	return p.brandKey
}

// ModeFor picks WithEmbeddings only when both sides carry a title embedding.
func ModeFor(a, b *Profile) ScoringMode {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return WithEmbeddings
	}
	return RuleBasedOnly
}

// ScorePair computes the composite similarity of a reference and a candidate.
func ScorePair(ref, cand *Profile) Score {
	s := Score{
		Mode:  ModeFor(ref, cand),
		Brand: BrandSimilarity(ref.Brand, cand.Brand),
		Title: TokenOverlap(ref.Tokens, cand.Tokens),
		Type:  TypeSimilarity(ref.Product.ProductType, cand.Product.ProductType),
		Price: PriceSimilarity(ref.price, cand.price),
	}
	w := WeightsFor(s.Mode)
	s.Overall = w.Brand*s.Brand + w.Title*s.Title + w.Type*s.Type + w.Price*s.Price
	if s.Mode == WithEmbeddings {
		e := CosineSimilarity(ref.Embedding, cand.Embedding)
		s.Embedding = &e
		s.Overall += w.Embedding * e
	}
	s.Overall = roundScore(s.Overall)
	return s
}

// roundScore drops float summation noise so that a perfect pair scores
// exactly 1 and can pass a threshold of 1.
func roundScore(v float64) float64 {
	return math.Round(v*1e12) / 1e12
}

// PerfectScore is the score given to manual matches.
func PerfectScore(overall float64) Score {
	return Score{Mode: RuleBasedOnly, Overall: overall, Title: 1, Brand: 1, Type: 1, Price: 1}
}

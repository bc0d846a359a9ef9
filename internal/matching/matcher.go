package matching

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/gtd_map/internal/models"
)

// Confidence threshold bounds.
const (
	DefaultThreshold = 0.7
	MinThreshold     = 0.1
	MaxThreshold     = 1.0
)

// ValidThreshold reports whether t is within [MinThreshold, MaxThreshold].
func ValidThreshold(t float64) bool {
	return t >= MinThreshold && t <= MaxThreshold
}

// Options configures an assignment pass.
type Options struct {
	Threshold float64
	// Workers bounds the goroutines scoring reference products; <= 1 scores
	// sequentially.
	Workers int
	// Reserved competitor product ids are never offered as candidates.
	Reserved map[string]struct{}
}

// Match is an accepted reference/competitor pairing.
type Match struct {
	Reference  *Profile
	Competitor *Profile
	Score      Score
	Verdict    Verdict
}

// Assign pairs reference products with competitor products greedily.
//
// Reference products are visited in input order. Each takes the best scoring
// competitor of the same brand that no earlier reference took; the pair is
// accepted when the score reaches opts.Threshold. Equal scores keep the
// first-encountered competitor. Scoring runs in parallel; assignment does not.
func Assign(ctx context.Context, refs, comps []*Profile, opts Options) ([]Match, error) {
	byBrand := make(map[string][]*Profile)
	for _, c := range comps {
		if _, reserved := opts.Reserved[c.Product.ID]; reserved {
			continue
		}
		byBrand[c.brandKey] = append(byBrand[c.brandKey], c)
	}

	scores, err := scoreAll(ctx, refs, byBrand, opts.Workers)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{})
	var matches []Match
	for i, ref := range refs {
		cands := byBrand[ref.brandKey]
		best := -1
		for j, cand := range cands {
			if _, taken := used[cand.Product.ID]; taken {
				continue
			}
			if best < 0 || scores[i][j].Overall > scores[i][best].Overall {
				best = j
			}
		}
		if best < 0 || scores[i][best].Overall < opts.Threshold {
			continue
		}

		comp := cands[best]
		used[comp.Product.ID] = struct{}{}
		matches = append(matches, Match{
			Reference:  ref,
			Competitor: comp,
			Score:      scores[i][best],
			Verdict:    EvaluateViolation(ref.Product.Price, comp.Product.Price),
		})
	}
	return matches, nil
}

// scoreAll scores every reference against its brand's candidates. Row i
// lines up with byBrand[refs[i].brandKey].
func scoreAll(ctx context.Context, refs []*Profile, byBrand map[string][]*Profile, workers int) ([][]Score, error) {
	scores := make([][]Score, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cands := byBrand[ref.brandKey]
			row := make([]Score, len(cands))
			for j, cand := range cands {
				row[j] = ScorePair(ref, cand)
			}
			scores[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Record converts an accepted match into a persisted row.
func (m Match) Record(id string, now time.Time) models.ProductMatch {
	rec := models.ProductMatch{
		ID:                     id,
		IdcProductID:           m.Reference.Product.ID,
		CompetitorProductID:    m.Competitor.Product.ID,
		OverallScore:           m.Score.Overall,
		TitleSimilarity:        m.Score.Title,
		BrandSimilarity:        m.Score.Brand,
		TypeSimilarity:         m.Score.Type,
		PriceSimilarity:        m.Score.Price,
		EmbeddingSimilarity:    m.Score.Embedding,
		Confidence:             ConfidenceLabel(m.Score.Overall),
		PriceDifference:        m.Verdict.PriceDifference,
		PriceDifferencePercent: m.Verdict.PriceDifferencePercent,
		IsMapViolation:         m.Verdict.IsMapViolation,
		ViolationAmount:        m.Verdict.ViolationAmount,
		ViolationSeverity:      m.Verdict.ViolationSeverity,
		LastChecked:            now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if rec.IsMapViolation {
		first := now
		rec.FirstViolationDate = &first
	}
	return rec
}

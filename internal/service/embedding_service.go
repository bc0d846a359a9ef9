package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/matching"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
	"github.com/GTDGit/gtd_map/pkg/embedding"
)

// NewEmbeddingProvider builds the configured provider, paced by cfg.Delay.
// It returns nil when embeddings are disabled.
func NewEmbeddingProvider(cfg config.EmbeddingConfig) embedding.Provider {
	var p embedding.Provider
	switch cfg.Provider {
	case config.EmbeddingProviderCohere:
		p = embedding.NewCohereClient(cfg.CohereAPIKey, cfg.CohereModel, "")
	case config.EmbeddingProviderOpenAI:
		p = embedding.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
	default:
		return nil
	}
	return embedding.NewPaced(p, cfg.Delay)
}

// EmbeddingService computes and stores product embeddings. Provider
// failures never abort a pass; the affected products keep no embedding.
type EmbeddingService struct {
	provider  embedding.Provider
	products  CatalogStore
	cache     VectorCache
	batchSize int
}

// NewEmbeddingService constructs an EmbeddingService. provider and cache
// may be nil.
func NewEmbeddingService(provider embedding.Provider, products CatalogStore, cache VectorCache, batchSize int) *EmbeddingService {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &EmbeddingService{provider: provider, products: products, cache: cache, batchSize: batchSize}
}

// Enabled reports whether a provider is configured.
func (s *EmbeddingService) Enabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the provider name, or "none".
func (s *EmbeddingService) ProviderName() string {
	if !s.Enabled() {
		return config.EmbeddingProviderNone
	}
	return s.provider.Name()
}

// Update embeds products that have no title embedding. An empty source
// covers every source; a non-positive limit covers every candidate.
func (s *EmbeddingService) Update(ctx context.Context, source string, limit int, dryRun bool) (*models.EmbeddingUpdateResult, error) {
	if !s.Enabled() {
		return nil, utils.ErrNoEmbeddingProvider
	}

	products, _, err := s.products.List(ctx, models.ProductFilter{
		Source:            source,
		MissingEmbeddings: true,
		Limit:             limit,
		Page:              1,
	})
	if err != nil {
		return nil, fmt.Errorf("list products without embeddings: %w", err)
	}

	result := &models.EmbeddingUpdateResult{Candidates: len(products), DryRun: dryRun}
	if dryRun || len(products) == 0 {
		return result, nil
	}

	out := s.Embed(ctx, pointers(products))
	result.Updated, result.Failed, result.Cached = out.Updated, out.Failed, out.Cached
	return result, nil
}

// EmbedOutcome counts the products handled by Embed.
type EmbedOutcome struct {
	Updated int
	Failed  int
	Cached  int
}

// Embed computes title and features embeddings for products in batches,
// sets them on the products and persists them. Products are modified in
// place so a matching run can use the vectors immediately.
func (s *EmbeddingService) Embed(ctx context.Context, products []*models.Product) EmbedOutcome {
	var out EmbedOutcome
	if !s.Enabled() {
		out.Failed = len(products)
		return out
	}

	start := time.Now()
	for i := 0; i < len(products); i += s.batchSize {
		if ctx.Err() != nil {
			out.Failed += len(products) - i
			break
		}
		end := min(i+s.batchSize, len(products))
		b := s.embedBatch(ctx, products[i:end])
		out.Updated += b.Updated
		out.Failed += b.Failed
		out.Cached += b.Cached
	}

	log.Info().
		Str("provider", s.provider.Name()).
		Int("products", len(products)).
		Int("updated", out.Updated).
		Int("failed", out.Failed).
		Int("cached", out.Cached).
		Dur("duration", time.Since(start)).
		Msg("Embedding pass completed")
	return out
}

func (s *EmbeddingService) embedBatch(ctx context.Context, batch []*models.Product) EmbedOutcome {
	var out EmbedOutcome
	model := s.provider.Model()

	// two texts per product: title then features
	texts := make([]string, 0, 2*len(batch))
	for _, p := range batch {
		texts = append(texts,
			embedding.Truncate(matching.TitleEmbeddingText(p.Vendor, p.Title)),
			embedding.Truncate(matching.FeaturesEmbeddingText(p.ProductType, p.Features)),
		)
	}

	vecs := make([][]float64, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := s.cached(ctx, model, t); ok {
			vecs[i] = v
			continue
		}
		missing = append(missing, i)
	}

	failed := make(map[int]bool)
	if len(missing) > 0 {
		if err := s.fill(ctx, model, texts, vecs, missing); err != nil {
			if len(batch) == 1 {
				log.Warn().Err(err).Str("product_id", batch[0].ID).Msg("Embedding failed, product keeps no embedding")
				failed[0] = true
			} else {
				// one bad input fails the whole request; find it product by product
				log.Warn().Err(err).Int("products", len(batch)).Msg("Batch embedding failed, retrying products individually")
				for k, p := range batch {
					var own []int
					for _, i := range missing {
						if i/2 == k {
							own = append(own, i)
						}
					}
					if len(own) == 0 {
						continue
					}
					if err := s.fill(ctx, model, texts, vecs, own); err != nil {
						log.Warn().Err(err).Str("product_id", p.ID).Msg("Embedding failed, product keeps no embedding")
						failed[k] = true
					}
				}
			}
		}
	}

	for k, p := range batch {
		if failed[k] {
			out.Failed++
			continue
		}
		title, features := vecs[2*k], vecs[2*k+1]
		if len(title) == 0 {
			log.Warn().Str("product_id", p.ID).Msg("Empty title embedding")
			out.Failed++
			continue
		}
		p.TitleEmbedding = title
		p.FeaturesEmbedding = features
		if err := s.products.UpdateEmbeddings(ctx, p.ID, title, features); err != nil {
			log.Error().Err(err).Str("product_id", p.ID).Msg("Failed to store embeddings")
			out.Failed++
			continue
		}
		out.Updated++
		if !slices.Contains(missing, 2*k) && !slices.Contains(missing, 2*k+1) {
			out.Cached++
		}
	}
	return out
}

// fill requests embeddings for texts[idx] in one provider call and stores
// them in vecs and the cache.
func (s *EmbeddingService) fill(ctx context.Context, model string, texts []string, vecs [][]float64, idx []int) error {
	req := make([]string, len(idx))
	for j, i := range idx {
		req[j] = texts[i]
	}
	got, err := s.provider.Embed(ctx, req)
	if err != nil {
		return err
	}
	if len(got) != len(req) {
		return embedding.ErrCountMismatch
	}
	for j, i := range idx {
		vecs[i] = got[j]
		s.store(ctx, model, texts[i], got[j])
	}
	return nil
}

func (s *EmbeddingService) cached(ctx context.Context, model, text string) ([]float64, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok, err := s.cache.Get(ctx, model, text)
	if err != nil {
		log.Warn().Err(err).Msg("Embedding cache read failed")
		return nil, false
	}
	return v, ok
}

func (s *EmbeddingService) store(ctx context.Context, model, text string, v []float64) {
	if s.cache == nil || len(v) == 0 {
		return
	}
	if err := s.cache.Set(ctx, model, text, v); err != nil {
		log.Warn().Err(err).Msg("Embedding cache write failed")
	}
}

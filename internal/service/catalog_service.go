package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/matching"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
	"github.com/GTDGit/gtd_map/pkg/feed"
)

// IngestResult reports a bulk upsert.
type IngestResult struct {
	Source   string `json:"source"`
	Received int    `json:"received"`
	Upserted int    `json:"upserted"`
	Failed   int    `json:"failed"`
	Removed  int64  `json:"removed"`
}

// CatalogService keeps the product catalogs: ingestion, feed sync and
// vendor repair.
type CatalogService struct {
	products CatalogStore
	fetcher  FeedFetcher
	feeds    []config.FeedSource
	brands   *matching.BrandResolver
	refSrc   string
}

// NewCatalogService constructs a CatalogService. fetcher may be nil when no
// feeds are configured.
func NewCatalogService(products CatalogStore, fetcher FeedFetcher, feeds []config.FeedSource, cfg config.MatchingConfig) *CatalogService {
	return &CatalogService{
		products: products,
		fetcher:  fetcher,
		feeds:    feeds,
		brands:   matching.NewBrandResolver(cfg.StoreVendors),
		refSrc:   cfg.ReferenceSource,
	}
}

// Ingest upserts records into source. Each record's vendor is replaced by
// its resolved brand and its features are recomputed. A failing record is
// logged and skipped.
func (s *CatalogService) Ingest(ctx context.Context, source string, records []models.Product) (*IngestResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, utils.ErrInvalidSource
	}

	result := &IngestResult{Source: source, Received: len(records)}
	for i := range records {
		p := &records[i]
		if strings.TrimSpace(p.ExternalID) == "" || strings.TrimSpace(p.Title) == "" {
			log.Warn().Str("source", source).Int("index", i).Msg("Skipping product without externalId or title")
			result.Failed++
			continue
		}
		p.Source = source
		s.normalize(p)

		if _, err := s.products.Upsert(ctx, p); err != nil {
			log.Error().Err(err).
				Str("source", source).
				Str("external_id", p.ExternalID).
				Msg("Failed to upsert product")
			result.Failed++
			continue
		}
		result.Upserted++
	}

	log.Info().
		Str("source", source).
		Int("received", result.Received).
		Int("upserted", result.Upserted).
		Int("failed", result.Failed).
		Msg("Catalog ingested")
	return result, nil
}

// normalize resolves the vendor to a brand and recomputes features.
func (s *CatalogService) normalize(p *models.Product) {
	p.Vendor = s.brands.Resolve(p.Vendor, p.Title)
	p.Features = matching.FeatureString(featureInput(p))
}

func featureInput(p *models.Product) matching.FeatureInput {
	return matching.FeatureInput{
		Title:       p.Title,
		Brand:       p.Vendor,
		ProductType: p.ProductType,
		Description: p.Description,
		Price:       p.PriceValue(),
	}
}

// DeleteSource removes every product of a source.
func (s *CatalogService) DeleteSource(ctx context.Context, source string) (int64, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, utils.ErrInvalidSource
	}
	n, err := s.products.DeleteProducts(ctx, source, nil)
	if err != nil {
		return 0, err
	}
	log.Info().Str("source", source).Int64("deleted", n).Msg("Catalog source deleted")
	return n, nil
}

// List returns catalog products.
func (s *CatalogService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	return s.products.List(ctx, filter)
}

// Get returns a product and its recent price history.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Product, []models.PriceHistory, error) {
	p, err := s.products.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, utils.ErrProductNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	history, err := s.products.ListPriceHistory(ctx, id, 50)
	if err != nil {
		return nil, nil, err
	}
	return p, history, nil
}

// FixVendors re-resolves the brand of every competitor product and, unless
// dryRun, stores each changed vendor with recomputed features.
func (s *CatalogService) FixVendors(ctx context.Context, dryRun bool) ([]models.VendorFix, error) {
	products, _, err := s.products.List(ctx, models.ProductFilter{ExcludeSource: s.refSrc})
	if err != nil {
		return nil, fmt.Errorf("list competitor products: %w", err)
	}

	fixes := []models.VendorFix{}
	for i := range products {
		p := &products[i]
		resolved := s.brands.Resolve(p.Vendor, p.Title)
		if resolved == p.Vendor {
			continue
		}
		fix := models.VendorFix{ID: p.ID, Title: p.Title, OldVendor: p.Vendor, NewVendor: resolved}
		if !dryRun {
			p.Vendor = resolved
			features := matching.FeatureString(featureInput(p))
			if err := s.products.UpdateVendor(ctx, p.ID, resolved, features); err != nil {
				log.Error().Err(err).Str("product_id", p.ID).Msg("Failed to update vendor")
				continue
			}
		}
		fixes = append(fixes, fix)
	}

	log.Info().Int("checked", len(products)).Int("fixed", len(fixes)).Bool("dry_run", dryRun).Msg("Vendor fix completed")
	return fixes, nil
}

// Feeds returns the configured feed sources.
func (s *CatalogService) Feeds() []config.FeedSource {
	return s.feeds
}

// SyncFeeds syncs every configured feed. A failing feed is logged and
// skipped.
func (s *CatalogService) SyncFeeds(ctx context.Context) []IngestResult {
	var results []IngestResult
	for _, f := range s.feeds {
		res, err := s.SyncFeed(ctx, f.Source)
		if err != nil {
			log.Error().Err(err).Str("source", f.Source).Msg("Feed sync failed")
			continue
		}
		results = append(results, *res)
	}
	return results
}

// SyncFeed fetches one configured feed, upserts its records and removes
// products of that source the feed no longer lists. An empty feed removes
// nothing.
func (s *CatalogService) SyncFeed(ctx context.Context, source string) (*IngestResult, error) {
	var url string
	for _, f := range s.feeds {
		if f.Source == source {
			url = f.URL
			break
		}
	}
	if url == "" || s.fetcher == nil {
		return nil, utils.ErrInvalidSource
	}

	start := time.Now()
	records, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", source, err)
	}

	products := make([]models.Product, len(records))
	keep := make([]string, len(records))
	for i, r := range records {
		products[i] = fromRecord(r)
		keep[i] = r.ExternalID
	}

	res, err := s.Ingest(ctx, source, products)
	if err != nil {
		return nil, err
	}
	if len(keep) > 0 {
		if res.Removed, err = s.products.DeleteProducts(ctx, source, keep); err != nil {
			return nil, fmt.Errorf("remove stale products: %w", err)
		}
	}

	log.Info().
		Str("source", source).
		Int("upserted", res.Upserted).
		Int64("removed", res.Removed).
		Dur("duration", time.Since(start)).
		Msg("Feed synced")
	return res, nil
}

func fromRecord(r feed.Record) models.Product {
	return models.Product{
		ExternalID:     r.ExternalID,
		Title:          r.Title,
		Vendor:         r.Vendor,
		ProductType:    r.ProductType,
		Description:    r.Description,
		Price:          r.Price,
		CompareAtPrice: r.CompareAtPrice,
		Available:      r.Available,
		URL:            r.URL,
		ImageURL:       r.ImageURL,
		Handle:         r.Handle,
		SKU:            r.SKU,
	}
}

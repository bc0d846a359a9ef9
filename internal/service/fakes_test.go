package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GTDGit/gtd_map/internal/cache"
	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/repository"
	"github.com/GTDGit/gtd_map/pkg/feed"
)

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		ConfidenceThreshold: 0.5,
		ScoringWorkers:      2,
		ReserveManual:       true,
		EmbedMissing:        true,
		ReferenceSource:     models.SourceReference,
		StoreVendors:        []string{"idrinkcoffee"},
	}
}

func price(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func product(source, externalID, vendor, title, productType string, p float64) models.Product {
	pr := models.Product{
		ExternalID:  externalID,
		Source:      source,
		Vendor:      vendor,
		Title:       title,
		ProductType: productType,
	}
	if p > 0 {
		pr.Price = price(p)
	}
	return pr
}

// fakeCatalog is an in-memory CatalogStore that keeps insertion order.
type fakeCatalog struct {
	mu          sync.Mutex
	products    []*models.Product
	upsertErr   map[string]error
	deleted     map[string][]string
	embedWrites int
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	c := &fakeCatalog{upsertErr: map[string]error{}, deleted: map[string][]string{}}
	for i := range products {
		p := products[i]
		if p.ID == "" {
			p.ID = p.Source + ":" + p.ExternalID
		}
		c.products = append(c.products, &p)
	}
	return c
}

func (c *fakeCatalog) get(id string) *models.Product {
	for _, p := range c.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (c *fakeCatalog) List(_ context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Product
	for _, p := range c.products {
		if f.Source != "" && p.Source != f.Source {
			continue
		}
		if f.ExcludeSource != "" && p.Source == f.ExcludeSource {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(p.Vendor, f.Brand) {
			continue
		}
		if f.MissingEmbeddings && p.HasEmbeddings() {
			continue
		}
		out = append(out, *p)
	}
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (c *fakeCatalog) GetByID(_ context.Context, id string) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.get(id); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (c *fakeCatalog) Upsert(_ context.Context, p *models.Product) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.upsertErr[p.ExternalID]; err != nil {
		return nil, err
	}
	for _, existing := range c.products {
		if existing.ExternalID == p.ExternalID && existing.Source == p.Source {
			id := existing.ID
			*existing = *p
			existing.ID = id
			cp := *existing
			return &cp, nil
		}
	}
	cp := *p
	cp.ID = p.Source + ":" + p.ExternalID
	c.products = append(c.products, &cp)
	out := cp
	return &out, nil
}

func (c *fakeCatalog) DeleteProducts(_ context.Context, source string, keep []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted[source] = keep
	var n int64
	kept := c.products[:0]
	for _, p := range c.products {
		if p.Source == source && !slices.Contains(keep, p.ExternalID) {
			n++
			continue
		}
		kept = append(kept, p)
	}
	c.products = kept
	return n, nil
}

func (c *fakeCatalog) UpdateEmbeddings(_ context.Context, id string, title, features models.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.get(id)
	if p == nil {
		return sql.ErrNoRows
	}
	p.TitleEmbedding, p.FeaturesEmbedding = title, features
	c.embedWrites++
	return nil
}

func (c *fakeCatalog) UpdateVendor(_ context.Context, id, vendor, features string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.get(id)
	if p == nil {
		return sql.ErrNoRows
	}
	p.Vendor, p.Features = vendor, features
	return nil
}

func (c *fakeCatalog) CountBySource(_ context.Context) ([]models.SourceCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := map[string]int{}
	var order []string
	for _, p := range c.products {
		if _, ok := counts[p.Source]; !ok {
			order = append(order, p.Source)
		}
		counts[p.Source]++
	}
	slices.Sort(order)
	out := make([]models.SourceCount, len(order))
	for i, s := range order {
		out[i] = models.SourceCount{Source: s, Count: counts[s]}
	}
	return out, nil
}

func (c *fakeCatalog) ListPriceHistory(_ context.Context, _ string, _ int) ([]models.PriceHistory, error) {
	return nil, nil
}

// fakeMatchStore is an in-memory MatchStore. Reconcile works on a copy and
// commits it only when fn succeeds.
type fakeMatchStore struct {
	mu        sync.Mutex
	matches   []models.ProductMatch
	history   []models.MapViolationHistory
	failPairs map[models.MatchPair]bool
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{failPairs: map[models.MatchPair]bool{}}
}

type fakeWriter struct {
	store   *fakeMatchStore
	matches []models.ProductMatch
	history []models.MapViolationHistory
}

func (w *fakeWriter) DeleteAutomaticMatches(context.Context) (int64, error) {
	kept := w.matches[:0]
	var n int64
	for _, m := range w.matches {
		if m.IsManualMatch {
			kept = append(kept, m)
			continue
		}
		n++
	}
	w.matches = kept
	return n, nil
}

func (w *fakeWriter) InsertMatch(_ context.Context, m *models.ProductMatch) error {
	pair := models.MatchPair{IdcProductID: m.IdcProductID, CompetitorProductID: m.CompetitorProductID}
	if w.store.failPairs[pair] {
		return errors.New("insert failed")
	}
	for _, existing := range w.matches {
		if existing.IdcProductID == pair.IdcProductID && existing.CompetitorProductID == pair.CompetitorProductID {
			return fmt.Errorf("duplicate pair %v", pair)
		}
	}
	w.matches = append(w.matches, *m)
	return nil
}

func (w *fakeWriter) InsertViolationHistory(_ context.Context, h *models.MapViolationHistory) error {
	w.history = append(w.history, *h)
	return nil
}

func (s *fakeMatchStore) Reconcile(_ context.Context, fn func(w repository.MatchWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &fakeWriter{
		store:   s,
		matches: slices.Clone(s.matches),
		history: slices.Clone(s.history),
	}
	if err := fn(w); err != nil {
		return err
	}
	s.matches, s.history = w.matches, w.history
	return nil
}

func (s *fakeMatchStore) ManualCompetitorIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.matches {
		if m.IsManualMatch && !m.IsRejected {
			ids = append(ids, m.CompetitorProductID)
		}
	}
	return ids, nil
}

func (s *fakeMatchStore) PriorAutomaticStates(context.Context) ([]models.PriorMatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PriorMatchState
	for _, m := range s.matches {
		if m.IsManualMatch || (!m.IsRejected && m.FirstViolationDate == nil) {
			continue
		}
		out = append(out, models.PriorMatchState{
			MatchPair:          models.MatchPair{IdcProductID: m.IdcProductID, CompetitorProductID: m.CompetitorProductID},
			FirstViolationDate: m.FirstViolationDate,
			IsRejected:         m.IsRejected,
		})
	}
	return out, nil
}

func (s *fakeMatchStore) List(_ context.Context, f models.MatchFilter) ([]models.MatchView, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchView
	for _, m := range s.matches {
		if f.ManualOnly && !m.IsManualMatch {
			continue
		}
		if !f.IncludeRejected && m.IsRejected {
			continue
		}
		if f.ViolationsOnly && !m.IsMapViolation {
			continue
		}
		if m.OverallScore < f.MinConfidence {
			continue
		}
		out = append(out, models.MatchView{ProductMatch: m})
	}
	return out, len(out), nil
}

func (s *fakeMatchStore) GetByID(_ context.Context, id string) (*models.MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.ID == id {
			return &models.MatchView{ProductMatch: m}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeMatchStore) PairExists(_ context.Context, idc, comp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.IdcProductID == idc && m.CompetitorProductID == comp {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMatchStore) CreateManual(_ context.Context, m *models.ProductMatch, h *models.MapViolationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, *m)
	if h != nil {
		s.history = append(s.history, *h)
	}
	return nil
}

func (s *fakeMatchStore) SetRejected(_ context.Context, id string, rejected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.matches {
		if s.matches[i].ID == id {
			s.matches[i].IsRejected = rejected
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *fakeMatchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.matches {
		if s.matches[i].ID == id {
			s.matches = slices.Delete(s.matches, i, i+1)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *fakeMatchStore) ListHistory(_ context.Context, matchID string, _, _ int) ([]models.MapViolationHistory, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MapViolationHistory
	for _, h := range s.history {
		if matchID == "" || (h.ProductMatchID != nil && *h.ProductMatchID == matchID) {
			out = append(out, h)
		}
	}
	return out, len(out), nil
}

func (s *fakeMatchStore) Stats(_ context.Context, minScore float64) (*models.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.DashboardStats{TotalMatches: len(s.matches)}
	for _, m := range s.matches {
		if m.IsMapViolation && !m.IsRejected && m.OverallScore >= minScore {
			stats.MapViolations++
			stats.RevenueAtRisk = stats.RevenueAtRisk.Add(m.ViolationAmount.Decimal)
		}
	}
	return stats, nil
}

func (s *fakeMatchStore) automatic() []models.ProductMatch {
	var out []models.ProductMatch
	for _, m := range s.matches {
		if !m.IsManualMatch {
			out = append(out, m)
		}
	}
	return out
}

type fakeLock struct {
	err      error
	held     bool
	released int
}

func (l *fakeLock) TryAcquire(context.Context) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, cache.ErrLockHeld
	}
	l.held = true
	return func() {
		l.held = false
		l.released++
	}, nil
}

// fakeProvider returns the same unit vector for every text.
type fakeProvider struct {
	mu     sync.Mutex
	err    error
	failOn string // rejects any request containing a text with this substring
	calls  int
	texts  []string
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.texts = append(p.texts, texts...)
	if p.err != nil {
		return nil, p.err
	}
	if p.failOn != "" {
		for _, t := range texts {
			if strings.Contains(t, p.failOn) {
				return nil, errors.New("invalid input: " + t)
			}
		}
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

type memVectorCache struct {
	data map[string][]float64
}

func (c *memVectorCache) Get(_ context.Context, model, text string) ([]float64, bool, error) {
	v, ok := c.data[model+"|"+text]
	return v, ok, nil
}

func (c *memVectorCache) Set(_ context.Context, model, text string, v []float64) error {
	c.data[model+"|"+text] = v
	return nil
}

type fakeFetcher struct {
	records map[string][]feed.Record
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]feed.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[url], nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/service"
)

// FeedSyncer pulls every configured catalog feed.
type FeedSyncer interface {
	SyncFeeds(ctx context.Context) []service.IngestResult
}

// FeedSyncWorker periodically refreshes competitor catalogs from their feeds.
type FeedSyncWorker struct {
	catalog  FeedSyncer
	interval time.Duration
}

// NewFeedSyncWorker constructs a FeedSyncWorker.
func NewFeedSyncWorker(catalog FeedSyncer, interval time.Duration) *FeedSyncWorker {
	return &FeedSyncWorker{catalog: catalog, interval: interval}
}

// Start begins the periodic sync loop and listens for context cancellation.
func (w *FeedSyncWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting feed sync worker")

	// Run immediately on start
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Feed sync worker stopped")
			return
		}
	}
}

func (w *FeedSyncWorker) run(ctx context.Context) {
	start := time.Now()
	results := w.catalog.SyncFeeds(ctx)

	upserted, failed := 0, 0
	for _, r := range results {
		upserted += r.Upserted
		failed += r.Failed
	}
	log.Info().
		Int("feeds", len(results)).
		Int("upserted", upserted).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Feed sync completed")
}

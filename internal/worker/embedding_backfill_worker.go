package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// EmbeddingBackfiller embeds products that are still missing vectors.
type EmbeddingBackfiller interface {
	Update(ctx context.Context, source string, limit int, dryRun bool) (*models.EmbeddingUpdateResult, error)
}

// EmbeddingBackfillWorker periodically embeds newly ingested products so that
// matching runs do not pay for them inline.
type EmbeddingBackfillWorker struct {
	embeddings EmbeddingBackfiller
	interval   time.Duration
	limit      int
}

// NewEmbeddingBackfillWorker constructs an EmbeddingBackfillWorker. limit caps
// the products handled per tick; 0 means no cap.
func NewEmbeddingBackfillWorker(embeddings EmbeddingBackfiller, interval time.Duration, limit int) *EmbeddingBackfillWorker {
	return &EmbeddingBackfillWorker{embeddings: embeddings, interval: interval, limit: limit}
}

// Start begins the backfill loop and listens for context cancellation.
func (w *EmbeddingBackfillWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Int("limit", w.limit).Msg("Starting embedding backfill worker")

	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Embedding backfill worker stopped")
			return
		}
	}
}

func (w *EmbeddingBackfillWorker) run(ctx context.Context) {
	res, err := w.embeddings.Update(ctx, "", w.limit, false)
	if err != nil {
		if errors.Is(err, utils.ErrNoEmbeddingProvider) {
			log.Warn().Msg("Embedding backfill skipped: no provider configured")
			return
		}
		log.Error().Err(err).Msg("Embedding backfill failed")
		return
	}
	if res.Candidates == 0 {
		log.Debug().Msg("Embedding backfill: nothing to do")
		return
	}
	log.Info().
		Int("candidates", res.Candidates).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Msg("Embedding backfill completed")
}

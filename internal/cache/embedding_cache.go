package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// EmbeddingCache stores embedding vectors keyed by model and input text.
type EmbeddingCache struct {
	store Store
	ttl   time.Duration
}

// NewEmbeddingCache creates a new EmbeddingCache.
func NewEmbeddingCache(store Store, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{store: store, ttl: ttl}
}

func (c *EmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// Get returns a cached vector. ok is false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float64, bool, error) {
	raw, err := c.store.Get(ctx, c.key(model, text))
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v []float64
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set caches a vector.
func (c *EmbeddingCache) Set(ctx context.Context, model, text string, v []float64) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key(model, text), string(b), c.ttl)
}

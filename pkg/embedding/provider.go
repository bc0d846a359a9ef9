// Package embedding provides text embedding clients.
package embedding

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// MaxInputChars bounds the text sent per input.
const MaxInputChars = 8000

// ErrCountMismatch is returned when a provider answers with a different
// number of vectors than inputs.
var ErrCountMismatch = errors.New("embedding count mismatch")

// Provider turns texts into vectors, one per input, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
	Model() string
}

// Truncate cuts s to MaxInputChars characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxInputChars {
		return s
	}
	r := []rune(s)
	return string(r[:MaxInputChars])
}

// Paced wraps a Provider so consecutive calls are at least delay apart.
type Paced struct {
	Provider
	limiter *rate.Limiter
}

// NewPaced creates a paced provider. A non-positive delay disables pacing.
func NewPaced(p Provider, delay time.Duration) *Paced {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Paced{Provider: p, limiter: rate.NewLimiter(limit, 1)}
}

// Embed waits for the pacing slot, then calls the wrapped provider.
func (p *Paced) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.Provider.Embed(ctx, texts)
}

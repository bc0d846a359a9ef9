package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"
	"github.com/rs/zerolog/log"
)

// CohereClient embeds texts with the Cohere v2 Embed API.
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

// NewCohereClient constructs a Cohere client. baseURL may be empty for the
// public endpoint.
func NewCohereClient(apiKey, model, baseURL string) *CohereClient {
	opts := []option.RequestOption{
		option.WithToken(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &CohereClient{client: cohereclient.NewClient(opts...), model: model}
}

// Name returns the provider name.
func (c *CohereClient) Name() string { return "cohere" }

// Model returns the embedding model.
func (c *CohereClient) Model() string { return c.model }

// Embed returns one float vector per text.
func (c *CohereClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = Truncate(t)
	}

	start := time.Now()
	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          inputs,
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return nil, ErrCountMismatch
	}

	log.Debug().
		Str("model", c.model).
		Int("texts", len(texts)).
		Dur("duration", time.Since(start)).
		Msg("[COHERE] Embedded texts")
	return resp.Embeddings.Float, nil
}

// Package feed fetches product records published by a catalog collector.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Record is one product as published by a feed.
type Record struct {
	ExternalID     string              `json:"externalId"`
	Title          string              `json:"title"`
	Vendor         string              `json:"vendor"`
	ProductType    string              `json:"productType"`
	Description    string              `json:"description"`
	Price          decimal.NullDecimal `json:"price"`
	CompareAtPrice decimal.NullDecimal `json:"compareAtPrice"`
	Available      bool                `json:"available"`
	URL            string              `json:"url"`
	ImageURL       string              `json:"imageUrl"`
	Handle         string              `json:"handle"`
	SKU            string              `json:"sku"`
}

// Client fetches feeds over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient constructs a feed client.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch downloads a feed. The body is either a JSON array of records or an
// object with a "products" array. Records without an external id or title
// are dropped.
func (c *Client) Fetch(ctx context.Context, url string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	records, err := decode(body)
	if err != nil {
		return nil, err
	}

	valid := records[:0]
	for _, r := range records {
		if strings.TrimSpace(r.ExternalID) == "" || strings.TrimSpace(r.Title) == "" {
			log.Warn().Str("url", url).Str("external_id", r.ExternalID).Msg("[FEED] Dropping incomplete record")
			continue
		}
		valid = append(valid, r)
	}

	log.Debug().
		Str("url", url).
		Int("records", len(valid)).
		Dur("duration", time.Since(start)).
		Msg("[FEED] Fetched feed")
	return valid, nil
}

func decode(body []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode feed: %w", err)
		}
		return records, nil
	}
	var wrapped struct {
		Products []Record `json:"products"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return wrapped.Products, nil
}

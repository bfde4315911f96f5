// Package ml integrates the external relevance-scoring service.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PaperTracker/internal/domain"
	"PaperTracker/internal/ports"
)

// Client talks to an external inference service that scores papers.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.RelevanceScorer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Rank sends the title and abstract for scoring and returns the model's
// relevance estimate in [0, 1].
func (c *Client) Rank(ctx context.Context, paper domain.Paper) (float64, error) {
	payload := map[string]any{
		"external_id": paper.ExternalID,
		"title":       paper.Title,
		"abstract":    paper.Abstract,
	}

	var resp struct {
		Score float64 `json:"score"`
	}
	if err := c.post(ctx, "/rank", payload, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

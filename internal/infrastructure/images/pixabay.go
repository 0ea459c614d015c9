package images

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ArticlePoster/internal/config"
	"ArticlePoster/internal/ports"
)

// PixabayClient searches horizontal stock photos via the Pixabay API.
type PixabayClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ ports.ImageSource = (*PixabayClient)(nil)

// NewPixabayClient builds a client from configuration.
func NewPixabayClient(cfg config.PixabayConfig) *PixabayClient {
	return &PixabayClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Search returns up to limit direct image URLs matching the keyword.
func (p *PixabayClient) Search(ctx context.Context, keyword string, limit int) ([]string, error) {
	if p.apiKey == "" || p.endpoint == "" {
		return nil, fmt.Errorf("pixabay client misconfigured")
	}

	query := url.Values{}
	query.Set("key", p.apiKey)
	query.Set("q", keyword)
	query.Set("image_type", "photo")
	query.Set("orientation", "horizontal")
	query.Set("per_page", strconv.Itoa(limit))
	query.Set("safesearch", "true")
	query.Set("lang", "ja")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pixabay returned %s", resp.Status)
	}

	var payload struct {
		Hits []struct {
			WebformatURL string `json:"webformatURL"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	urls := make([]string, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		if hit.WebformatURL == "" {
			continue
		}
		urls = append(urls, hit.WebformatURL)
		if len(urls) == limit {
			break
		}
	}
	return urls, nil
}

package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

const (
	mediaPath      = "/wp-json/wp/v2/media"
	categoriesPath = "/wp-json/wp/v2/categories"
	postsPath      = "/wp-json/wp/v2/posts"
)

// Client publishes articles through the WordPress REST API using
// application-password basic auth.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

var _ ports.Publisher = (*Client)(nil)

// NewClient wires an HTTP client; nil gets a 30s-timeout default.
func NewClient(client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: client, logger: logger}
}

// Publish uploads the featured image, resolves the category, and submits
// the post. Image and category problems are tolerated (the post goes out
// without them); only the post submission itself can fail the publish.
func (c *Client) Publish(ctx context.Context, site domain.Site, post ports.Post) (string, error) {
	base := strings.TrimRight(site.WPURL, "/")

	mediaID := 0
	if post.FeaturedImageURL != "" {
		id, err := c.uploadFeaturedImage(ctx, site, base, post.FeaturedImageURL)
		if err != nil {
			c.logger.Warn("featured image upload failed", "site", site.ID, "error", err)
		} else {
			mediaID = id
		}
	}

	categoryID := 0
	if post.CategoryName != "" {
		id, err := c.getOrCreateCategory(ctx, site, base, post.CategoryName)
		if err != nil {
			c.logger.Warn("category lookup failed", "site", site.ID, "category", post.CategoryName, "error", err)
		} else {
			categoryID = id
		}
	}

	payload := map[string]any{
		"title":   post.Title,
		"content": post.Content,
		"status":  "publish",
	}
	if mediaID > 0 {
		payload["featured_media"] = mediaID
	}
	if categoryID > 0 {
		payload["categories"] = []int{categoryID}
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := c.doJSON(ctx, site, http.MethodPost, base+postsPath, payload, &created); err != nil {
		return "", fmt.Errorf("submit post: %w", err)
	}
	return strconv.Itoa(created.ID), nil
}

// uploadFeaturedImage downloads the image and pushes it into the WordPress
// media library, returning the media id.
func (c *Client) uploadFeaturedImage(ctx context.Context, site domain.Site, base, imageURL string) (int, error) {
	data, err := c.download(ctx, imageURL)
	if err != nil {
		return 0, fmt.Errorf("download image: %w", err)
	}

	filename := "featured.jpg"
	if parsed, err := url.Parse(imageURL); err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "/" && name != "." {
			filename = name
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+mediaPath, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(site.WPUsername, site.WPAppPassword)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("media upload returned %s", resp.Status)
	}

	var media struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return 0, fmt.Errorf("decode media response: %w", err)
	}
	return media.ID, nil
}

// getOrCreateCategory returns the id of an existing category matching the
// name, creating it when absent.
func (c *Client) getOrCreateCategory(ctx context.Context, site domain.Site, base, name string) (int, error) {
	searchURL := base + categoriesPath + "?search=" + url.QueryEscape(name)

	var found []struct {
		ID int `json:"id"`
	}
	if err := c.doJSON(ctx, site, http.MethodGet, searchURL, nil, &found); err != nil {
		return 0, fmt.Errorf("search categories: %w", err)
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := c.doJSON(ctx, site, http.MethodPost, base+categoriesPath, map[string]any{"name": name}, &created); err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return created.ID, nil
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) doJSON(ctx context.Context, site domain.Site, method, rawURL string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(site.WPUsername, site.WPAppPassword)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("wordpress returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ArticlePoster/internal/config"
)

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("key"); got != "test-key" {
			t.Errorf("key = %q", got)
		}
		if got := q.Get("q"); got != "AI" {
			t.Errorf("q = %q", got)
		}
		if got := q.Get("image_type"); got != "photo" {
			t.Errorf("image_type = %q", got)
		}
		if got := q.Get("orientation"); got != "horizontal" {
			t.Errorf("orientation = %q", got)
		}
		if got := q.Get("safesearch"); got != "true" {
			t.Errorf("safesearch = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits": [
			{"webformatURL": "https://img.example/1.jpg"},
			{"webformatURL": ""},
			{"webformatURL": "https://img.example/2.jpg"},
			{"webformatURL": "https://img.example/3.jpg"}
		]}`))
	}))
	defer srv.Close()

	c := NewPixabayClient(config.PixabayConfig{Endpoint: srv.URL, APIKey: "test-key"})
	got, err := c.Search(context.Background(), "AI", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0] != "https://img.example/1.jpg" || got[1] != "https://img.example/2.jpg" {
		t.Fatalf("urls = %v", got)
	}
}

func TestSearchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPixabayClient(config.PixabayConfig{Endpoint: srv.URL, APIKey: "test-key"})
	if _, err := c.Search(context.Background(), "AI", 2); err == nil {
		t.Fatal("expected error from 429 response")
	}
}

func TestSearchMisconfigured(t *testing.T) {
	t.Parallel()

	c := NewPixabayClient(config.PixabayConfig{Endpoint: "http://localhost"})
	if _, err := c.Search(context.Background(), "AI", 2); err == nil {
		t.Fatal("expected error without api key")
	}
}

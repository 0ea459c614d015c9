package usecase

import (
	"strings"
	"testing"
)

func TestBuildPreview(t *testing.T) {
	t.Parallel()

	got := BuildPreview("AIとは？", "https://img.example/1.jpg", "<h2>見出し</h2><p>本文です。</p>")
	if !strings.Contains(got, "<h2>AIとは？</h2>") {
		t.Errorf("preview missing heading: %q", got)
	}
	if !strings.Contains(got, "src='https://img.example/1.jpg'") {
		t.Errorf("preview missing image: %q", got)
	}
	if !strings.Contains(got, "見出し 本文です。") {
		t.Errorf("preview missing excerpt text: %q", got)
	}
}

func TestBuildPreviewNoImage(t *testing.T) {
	t.Parallel()

	got := BuildPreview("title", "", "<p>body</p>")
	if strings.Contains(got, "<img") {
		t.Errorf("preview has image tag without a URL: %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		limit int
		want  string
	}{
		{"strips markup", "<h2>a</h2><p>b c</p>", 300, "a b c"},
		{"flattens whitespace", "<p>a\n\n  b</p>", 300, "a b"},
		{"caps runes", "<p>あいうえお</p>", 3, "あいう"},
		{"plain text passes through", "plain", 300, "plain"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Excerpt(tt.body, tt.limit); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.body, tt.limit, got, tt.want)
			}
		})
	}
}

package usecase

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const excerptRunes = 300

// BuildPreview renders the short HTML snippet stored alongside an article
// for the post log: heading, featured image, and a plain-text excerpt of
// the generated body.
func BuildPreview(title, imageURL, bodyHTML string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(title))
	if imageURL != "" {
		fmt.Fprintf(&b, "<img src='%s' style='max-width:100%%;'>\n", html.EscapeString(imageURL))
	}
	fmt.Fprintf(&b, "<p>%s...</p>", html.EscapeString(Excerpt(bodyHTML, excerptRunes)))
	return b.String()
}

// Excerpt strips markup from the generated body and returns its first
// limit runes of flattened text.
func Excerpt(bodyHTML string, limit int) string {
	text := bodyHTML
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

// Placeholder content shown while a row sits in the generating state.
const (
	placeholderTitle = "タイトル生成中..."
	placeholderBody  = "本文生成中..."
)

// GPT-4 pricing used for cost accounting, USD per token.
const (
	gpt4InputCostPerToken  = 0.01 / 1000
	gpt4OutputCostPerToken = 0.03 / 1000
)

const imagesPerArticle = 2

// GeneratorDeps wires the bulk-generation pipeline's collaborators.
type GeneratorDeps struct {
	Articles ports.ArticleRepository
	PostLog  ports.PostLogRepository
	Chat     ports.ChatClient
	Images   ports.ImageSource

	// Limiter paces outbound model and image API calls.
	Limiter *rate.Limiter
	Now     func() time.Time
	Logger  *slog.Logger
}

// Generator produces a batch of articles for one genre and site, storing
// each as pending once its content is complete. A single article's failure
// never aborts the batch.
type Generator struct {
	articles ports.ArticleRepository
	postlog  ports.PostLogRepository
	chat     ports.ChatClient
	images   ports.ImageSource
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *slog.Logger
}

// NewGenerator constructs the bulk-generation pipeline.
func NewGenerator(deps GeneratorDeps) *Generator {
	g := &Generator{
		articles: deps.Articles,
		postlog:  deps.PostLog,
		chat:     deps.Chat,
		images:   deps.Images,
		limiter:  deps.Limiter,
		now:      deps.Now,
		logger:   deps.Logger,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// GenerateBatch asks the model for a set of long-tail keywords for the
// genre, then generates one article per keyword. Each article is inserted
// first in the generating state and promoted to pending when complete, so a
// crash mid-generation leaves an inspectable row rather than nothing.
func (g *Generator) GenerateBatch(ctx context.Context, genre, siteID, userID string) (int, error) {
	if err := g.wait(ctx); err != nil {
		return 0, err
	}
	keywords, err := g.chat.Keywords(ctx, genre)
	if err != nil {
		return 0, fmt.Errorf("generate keywords for %q: %w", genre, err)
	}
	g.logger.Info("keywords generated", "genre", genre, "count", len(keywords))

	g.appendLog(ctx, domain.PostLogEntry{
		SiteID:  siteID,
		Step:    domain.StepKeywordsGenerated,
		Genre:   genre,
		Keyword: strings.Join(keywords, ", "),
	})

	generated := 0
	for i, keyword := range keywords {
		g.logger.Info("generating article",
			"index", i+1, "total", len(keywords), "keyword", keyword)

		article := domain.Article{
			ID:        uuid.NewString(),
			UserID:    userID,
			SiteID:    siteID,
			Genre:     genre,
			Keyword:   keyword,
			Title:     placeholderTitle,
			Content:   placeholderBody,
			Status:    domain.StatusGenerating,
			CreatedAt: g.now().UTC(),
		}
		if err := g.articles.Insert(ctx, article); err != nil {
			g.logger.Error("insert placeholder article failed", "keyword", keyword, "error", err)
			continue
		}

		if err := g.generateOne(ctx, &article); err != nil {
			g.logger.Warn("article generation failed", "article", article.ID, "keyword", keyword, "error", err)
			if _, ferr := g.articles.MarkFailed(ctx, article.ID, domain.StatusGenerating); ferr != nil {
				g.logger.Error("record generation failure failed", "article", article.ID, "error", ferr)
			}
			continue
		}

		article.Status = domain.StatusPending
		if err := g.articles.Update(ctx, article); err != nil {
			g.logger.Error("store generated article failed", "article", article.ID, "error", err)
			continue
		}

		g.appendLog(ctx, domain.PostLogEntry{
			ArticleID: article.ID,
			SiteID:    siteID,
			Step:      domain.StepArticleGenerated,
			Genre:     genre,
			Keyword:   keyword,
			Title:     article.Title,
		})
		generated++
	}

	g.logger.Info("batch generation complete", "genre", genre, "generated", generated, "keywords", len(keywords))
	return generated, nil
}

func (g *Generator) generateOne(ctx context.Context, article *domain.Article) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	title, err := g.chat.Title(ctx, article.Keyword)
	if err != nil {
		return fmt.Errorf("generate title: %w", err)
	}

	if err := g.wait(ctx); err != nil {
		return err
	}
	body, err := g.chat.Body(ctx, title)
	if err != nil {
		return fmt.Errorf("generate body: %w", err)
	}

	if err := g.wait(ctx); err != nil {
		return err
	}
	// Missing images are tolerated; the article just publishes without a
	// featured image.
	images, err := g.images.Search(ctx, article.Keyword, imagesPerArticle)
	if err != nil {
		g.logger.Warn("image search failed", "keyword", article.Keyword, "error", err)
		images = nil
	}

	article.Title = title
	article.Content = body.Body
	article.GPTTokens = body.InputTokens + body.OutputTokens
	article.GPTCostUSD = float64(body.InputTokens)*gpt4InputCostPerToken +
		float64(body.OutputTokens)*gpt4OutputCostPerToken
	if len(images) > 0 {
		article.FeaturedImageURL = images[0]
	}
	if len(images) > 1 {
		article.ContentImageURL = images[1]
	}
	article.PreviewHTML = BuildPreview(title, article.FeaturedImageURL, body.Body)
	return nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (g *Generator) appendLog(ctx context.Context, e domain.PostLogEntry) {
	if err := g.postlog.Append(ctx, e); err != nil {
		g.logger.Warn("post log append failed", "step", e.Step, "error", err)
	}
}

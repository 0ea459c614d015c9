package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ArticlePoster/internal/domain"
	"ArticlePoster/internal/ports"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// Store persists articles, sites, and the post log in a single sqlite file.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.ArticleRepository = (*Store)(nil)
var _ ports.SiteRepository = (*Store)(nil)
var _ ports.PostLogRepository = (*Store)(nil)

// Open creates the database file (and parent directory) if needed and runs
// migrations. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	s := &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(db),
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	raw, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(raw)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var articleColumns = []string{
	"id", "user_id", "site_id", "genre", "keyword", "title", "content",
	"featured_image_url", "content_image_url", "preview_html",
	"gpt_tokens", "gpt_cost_usd", "status", "scheduled_time", "posted_time",
	"created_at",
}

// Insert stores a new article row.
func (s *Store) Insert(ctx context.Context, a domain.Article) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.UserID, a.SiteID, a.Genre, a.Keyword, a.Title, a.Content,
			a.FeaturedImageURL, a.ContentImageURL, a.PreviewHTML,
			a.GPTTokens, a.GPTCostUSD, string(a.Status),
			nullTime(a.ScheduledTime), nullTime(a.PostedTime),
			a.CreatedAt.Format(timeLayout)).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Update rewrites the content fields of an existing article, including its
// status. Prefer the Mark* transitions for lifecycle changes.
func (s *Store) Update(ctx context.Context, a domain.Article) error {
	_, err := s.sb.Update("articles").
		Set("genre", a.Genre).
		Set("keyword", a.Keyword).
		Set("title", a.Title).
		Set("content", a.Content).
		Set("featured_image_url", a.FeaturedImageURL).
		Set("content_image_url", a.ContentImageURL).
		Set("preview_html", a.PreviewHTML).
		Set("gpt_tokens", a.GPTTokens).
		Set("gpt_cost_usd", a.GPTCostUSD).
		Set("status", string(a.Status)).
		Set("scheduled_time", nullTime(a.ScheduledTime)).
		Set("posted_time", nullTime(a.PostedTime)).
		Where(sq.Eq{"id": a.ID}).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update article %s: %w", a.ID, err)
	}
	return nil
}

// Get loads one article or ports.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.Article, error) {
	row := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get article %s: %w", id, err)
	}
	return a, nil
}

// Pending returns pending articles oldest-created first.
func (s *Store) Pending(ctx context.Context, f ports.ArticleFilter, limit int) ([]domain.Article, error) {
	q := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		OrderBy("created_at ASC")
	if f.SiteID != "" {
		q = q.Where(sq.Eq{"site_id": f.SiteID})
	}
	if f.UserID != "" {
		q = q.Where(sq.Eq{"user_id": f.UserID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryArticles(ctx, q, "pending")
}

// Scheduled returns every article currently in the scheduled state.
func (s *Store) Scheduled(ctx context.Context) ([]domain.Article, error) {
	q := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(domain.StatusScheduled)}).
		OrderBy("scheduled_time ASC")
	return s.queryArticles(ctx, q, "scheduled")
}

// Due returns scheduled articles whose fire time has already passed.
func (s *Store) Due(ctx context.Context, now time.Time) ([]domain.Article, error) {
	q := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"status": string(domain.StatusScheduled)}).
		Where(sq.LtOrEq{"scheduled_time": now.UTC().Format(timeLayout)}).
		OrderBy("scheduled_time ASC")
	return s.queryArticles(ctx, q, "due")
}

// MarkScheduled transitions pending -> scheduled with the assigned time.
func (s *Store) MarkScheduled(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, s.sb.Update("articles").
		Set("status", string(domain.StatusScheduled)).
		Set("scheduled_time", at.UTC().Format(timeLayout)).
		Where(sq.Eq{"id": id, "status": string(domain.StatusPending)}))
}

// MarkPosted transitions scheduled -> posted, recording the posted time.
func (s *Store) MarkPosted(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, s.sb.Update("articles").
		Set("status", string(domain.StatusPosted)).
		Set("posted_time", at.UTC().Format(timeLayout)).
		Set("scheduled_time", nil).
		Where(sq.Eq{"id": id, "status": string(domain.StatusScheduled)}))
}

// MarkFailed transitions from -> failed, dropping any scheduled time.
func (s *Store) MarkFailed(ctx context.Context, id string, from domain.ArticleStatus) (bool, error) {
	return s.transition(ctx, s.sb.Update("articles").
		Set("status", string(domain.StatusFailed)).
		Set("scheduled_time", nil).
		Where(sq.Eq{"id": id, "status": string(from)}))
}

// ResetFailed transitions failed -> pending so the article re-enters the
// allocator's input set.
func (s *Store) ResetFailed(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, s.sb.Update("articles").
		Set("status", string(domain.StatusPending)).
		Set("scheduled_time", nil).
		Set("posted_time", nil).
		Where(sq.Eq{"id": id, "status": string(domain.StatusFailed)}))
}

// transition runs a conditional update and reports whether a row changed.
// A false return means the article already left the expected status.
func (s *Store) transition(ctx context.Context, q sq.UpdateBuilder) (bool, error) {
	res, err := q.ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("status transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) queryArticles(ctx context.Context, q sq.SelectBuilder, label string) ([]domain.Article, error) {
	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s articles: %w", label, err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s article: %w", label, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s articles: %w", label, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a                 domain.Article
		status            string
		schedRaw, postRaw sql.NullString
		createdRaw        string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.SiteID, &a.Genre, &a.Keyword, &a.Title,
		&a.Content, &a.FeaturedImageURL, &a.ContentImageURL, &a.PreviewHTML,
		&a.GPTTokens, &a.GPTCostUSD, &status, &schedRaw, &postRaw, &createdRaw)
	if err != nil {
		return domain.Article{}, err
	}

	a.Status = domain.ArticleStatus(status)
	if a.ScheduledTime, err = parseNullTime(schedRaw); err != nil {
		return domain.Article{}, err
	}
	if a.PostedTime, err = parseNullTime(postRaw); err != nil {
		return domain.Article{}, err
	}
	if a.CreatedAt, err = time.Parse(timeLayout, createdRaw); err != nil {
		return domain.Article{}, fmt.Errorf("parse created_at: %w", err)
	}
	return a, nil
}

// Upsert reuses an existing site with the same user and URL, otherwise
// inserts a new row.
func (s *Store) Upsert(ctx context.Context, site domain.Site) (domain.Site, error) {
	site.WPURL = strings.TrimRight(strings.TrimSpace(site.WPURL), "/")

	var existing domain.Site
	err := s.sb.Select("id", "user_id", "site_name", "wp_url", "wp_username", "wp_app_password").
		From("sites").
		Where(sq.Eq{"user_id": site.UserID, "wp_url": site.WPURL}).
		QueryRowContext(ctx).
		Scan(&existing.ID, &existing.UserID, &existing.Name, &existing.WPURL,
			&existing.WPUsername, &existing.WPAppPassword)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return domain.Site{}, fmt.Errorf("lookup site: %w", err)
	}

	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	_, err = s.sb.Insert("sites").
		Columns("id", "user_id", "site_name", "wp_url", "wp_username", "wp_app_password").
		Values(site.ID, site.UserID, site.Name, site.WPURL, site.WPUsername, site.WPAppPassword).
		ExecContext(ctx)
	if err != nil {
		return domain.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

// GetSite loads a site by id or returns ports.ErrNotFound.
func (s *Store) GetSite(ctx context.Context, id string) (domain.Site, error) {
	var site domain.Site
	err := s.sb.Select("id", "user_id", "site_name", "wp_url", "wp_username", "wp_app_password").
		From("sites").
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx).
		Scan(&site.ID, &site.UserID, &site.Name, &site.WPURL,
			&site.WPUsername, &site.WPAppPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Site{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("get site %s: %w", id, err)
	}
	return site, nil
}

// Append writes one post-log entry. Entries are never updated or deleted.
func (s *Store) Append(ctx context.Context, e domain.PostLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.sb.Insert("post_log").
		Columns("id", "article_id", "site_id", "step", "genre", "keyword", "title", "detail", "created_at").
		Values(e.ID, e.ArticleID, e.SiteID, e.Step, e.Genre, e.Keyword, e.Title, e.Detail,
			e.CreatedAt.Format(timeLayout)).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("append post log: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse stored time: %w", err)
	}
	return &t, nil
}

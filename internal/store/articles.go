package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"threatwatch/threatfeed/internal/models"
)

// ListActiveFeeds returns all feeds that have not been deactivated.
func (s *Store) ListActiveFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	err := s.db.SelectContext(ctx, &feeds,
		"SELECT * FROM feeds WHERE active = 1 ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}
	return feeds, nil
}

// ListFeeds returns every feed row, deactivated ones included.
func (s *Store) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	err := s.db.SelectContext(ctx, &feeds, "SELECT * FROM feeds ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// CreateFeed inserts a new feed. The name is unique; inserting a duplicate
// returns the driver's constraint error.
func (s *Store) CreateFeed(ctx context.Context, feed *models.Feed) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (name, url, active, created_at)
		VALUES (?, ?, ?, ?)`,
		feed.Name, feed.URL, feed.Active, feed.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feed %q: %w", feed.Name, err)
	}
	feed.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("feed insert id: %w", err)
	}
	return nil
}

// DeactivateFeed soft-deletes a feed. Returns false when no active feed
// with the given id exists.
func (s *Store) DeactivateFeed(ctx context.Context, feedID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE feeds SET active = 0, updated_at = ? WHERE id = ? AND active = 1",
		time.Now(), feedID)
	if err != nil {
		return false, fmt.Errorf("deactivate feed %d: %w", feedID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate feed %d rows affected: %w", feedID, err)
	}
	return affected > 0, nil
}

// CountFeeds returns the total number of feed rows, active or not.
func (s *Store) CountFeeds(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM feeds"); err != nil {
		return 0, fmt.Errorf("count feeds: %w", err)
	}
	return count, nil
}

// ArticleExists reports whether an article with the given link is stored.
// This is the idempotency boundary for re-running ingestion.
func (s *Store) ArticleExists(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM articles WHERE link = ?)", link)
	if err != nil {
		return false, fmt.Errorf("article exists %q: %w", link, err)
	}
	return exists, nil
}

// CreateArticle inserts the article unless its link is already stored.
// Returns false without error when another writer won the race.
func (s *Store) CreateArticle(ctx context.Context, article *models.Article) (bool, error) {
	// created_at is written from Go rather than the column default so its
	// format matches the values the cursor queries bind.
	article.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (title, link, published, summary, feed_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO NOTHING`,
		article.Title, article.Link, article.Published, article.Summary, article.FeedName,
		article.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert article %q: %w", article.Link, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("article insert rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	article.ID, err = res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("article insert id: %w", err)
	}
	return true, nil
}

// GetArticle loads one article by id. Returns (nil, nil) when not found.
func (s *Store) GetArticle(ctx context.Context, articleID int64) (*models.Article, error) {
	var article models.Article
	err := s.db.GetContext(ctx, &article, "SELECT * FROM articles WHERE id = ?", articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", articleID, err)
	}
	return &article, nil
}

// FetchArticles retrieves articles for cursor-based pagination, ordered by
// (created_at, id) ascending so cursors remain stable.
func (s *Store) FetchArticles(ctx context.Context, limit int, since *time.Time, cursorTimestamp *time.Time, cursorID *int64) ([]models.Article, error) {
	var articles []models.Article
	var query string
	var args []any

	const baseQuery = `SELECT * FROM articles `
	const orderBy = ` ORDER BY created_at ASC, id ASC LIMIT ?`

	switch {
	case cursorTimestamp != nil && cursorID != nil:
		query = baseQuery + `WHERE (created_at > ?) OR (created_at = ? AND id > ?)` + orderBy
		args = append(args, cursorTimestamp.UTC(), cursorTimestamp.UTC(), *cursorID, limit)
	case since != nil:
		query = baseQuery + `WHERE created_at > ?` + orderBy
		args = append(args, since.UTC(), limit)
	default:
		return nil, fmt.Errorf("either 'since' or cursor parameters must be provided")
	}

	err := s.db.SelectContext(ctx, &articles, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Article{}, nil
		}
		return nil, fmt.Errorf("fetch articles: %w", err)
	}
	return articles, nil
}

// IndicatorWithRisk is an indicator row joined with its enrichment risk
// score (zero when not yet enriched).
type IndicatorWithRisk struct {
	models.Indicator
	RiskScore float64 `db:"risk_score" json:"risk_score"`
}

// GetArticleIndicators returns the indicators linked to an article.
func (s *Store) GetArticleIndicators(ctx context.Context, articleID int64) ([]IndicatorWithRisk, error) {
	var indicators []IndicatorWithRisk
	err := s.db.SelectContext(ctx, &indicators, `
		SELECT i.*, COALESCE(e.risk_score, 0) AS risk_score
		FROM indicators i
		JOIN article_indicators ai ON ai.indicator_id = i.id
		LEFT JOIN indicator_enrichments e ON e.indicator_id = i.id
		WHERE ai.article_id = ?
		ORDER BY i.id ASC`, articleID)
	if err != nil {
		return nil, fmt.Errorf("indicators for article %d: %w", articleID, err)
	}
	return indicators, nil
}

// ListIndicators returns indicators, optionally filtered by type and
// minimum risk score, most recent first.
func (s *Store) ListIndicators(ctx context.Context, limit int, indicatorType string, minRiskScore *float64) ([]IndicatorWithRisk, error) {
	query := `
		SELECT i.*, COALESCE(e.risk_score, 0) AS risk_score
		FROM indicators i
		LEFT JOIN indicator_enrichments e ON e.indicator_id = i.id`
	var where []string
	var args []any

	if indicatorType != "" {
		where = append(where, "i.type = ?")
		args = append(args, indicatorType)
	}
	if minRiskScore != nil {
		where = append(where, "e.risk_score >= ?")
		args = append(args, *minRiskScore)
	}
	for idx, cond := range where {
		if idx == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY i.created_at DESC, i.id DESC LIMIT ?"
	args = append(args, limit)

	var indicators []IndicatorWithRisk
	if err := s.db.SelectContext(ctx, &indicators, query, args...); err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	return indicators, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"threatwatch/threatfeed/internal/models"
)

// GetSummary loads the stored summary for (article, mode). Returns
// (nil, nil) when none exists.
func (s *Store) GetSummary(ctx context.Context, articleID int64, mode string) (*models.ThreatSummary, error) {
	var summary models.ThreatSummary
	err := s.db.GetContext(ctx, &summary,
		"SELECT * FROM threat_summaries WHERE article_id = ? AND mode = ?", articleID, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load summary for article %d mode %s: %w", articleID, mode, err)
	}
	return &summary, nil
}

// CreateSummary persists a freshly generated summary. At most one row per
// (article, mode) can exist; a duplicate insert fails on the unique index.
func (s *Store) CreateSummary(ctx context.Context, summary *models.ThreatSummary) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO threat_summaries (article_id, mode, content, indicator_count, risk_level, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		summary.ArticleID, summary.Mode, summary.Content,
		summary.IndicatorCount, summary.RiskLevel, summary.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert summary for article %d mode %s: %w", summary.ArticleID, summary.Mode, err)
	}
	summary.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("summary insert id: %w", err)
	}
	return nil
}

// DeleteSummary removes the stored summary so it can be regenerated.
func (s *Store) DeleteSummary(ctx context.Context, articleID int64, mode string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM threat_summaries WHERE article_id = ? AND mode = ?", articleID, mode)
	if err != nil {
		return false, fmt.Errorf("delete summary for article %d mode %s: %w", articleID, mode, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete summary rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListSummaries returns all stored summaries for an article.
func (s *Store) ListSummaries(ctx context.Context, articleID int64) ([]models.ThreatSummary, error) {
	var summaries []models.ThreatSummary
	err := s.db.SelectContext(ctx, &summaries,
		"SELECT * FROM threat_summaries WHERE article_id = ? ORDER BY mode ASC", articleID)
	if err != nil {
		return nil, fmt.Errorf("list summaries for article %d: %w", articleID, err)
	}
	return summaries, nil
}

// IndicatorStats aggregates indicator counts for the dashboard.
type IndicatorStats struct {
	TotalCount  int64            `json:"total_count"`
	ByType      map[string]int64 `json:"by_type"`
	ByRiskLevel map[string]int64 `json:"by_risk_level"`
	RecentCount int64            `json:"recent_count"`
}

// DashboardStats is the headline view over articles and indicators.
type DashboardStats struct {
	TotalArticles      int64            `json:"total_articles"`
	TotalIndicators    int64            `json:"total_indicators"`
	HighRiskIndicators int64            `json:"high_risk_indicators"`
	RecentArticles     int64            `json:"recent_articles"`
	IndicatorTypes     map[string]int64 `json:"indicator_types"`
	RiskDistribution   map[string]int64 `json:"risk_distribution"`
}

// GetIndicatorStats computes counts by type, risk bucket and recency.
func (s *Store) GetIndicatorStats(ctx context.Context) (*IndicatorStats, error) {
	stats := &IndicatorStats{
		ByType:      make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}

	if err := s.db.GetContext(ctx, &stats.TotalCount, "SELECT COUNT(*) FROM indicators"); err != nil {
		return nil, fmt.Errorf("count indicators: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, "SELECT type, COUNT(*) FROM indicators GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("indicators by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var indicatorType string
		var count int64
		if err := rows.Scan(&indicatorType, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		stats.ByType[indicatorType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indicators by type rows: %w", err)
	}

	riskBuckets := map[string]string{
		"low":      "risk_score < 25",
		"medium":   "risk_score >= 25 AND risk_score < 50",
		"high":     "risk_score >= 50 AND risk_score < 75",
		"critical": "risk_score >= 75",
	}
	for name, cond := range riskBuckets {
		var count int64
		if err := s.db.GetContext(ctx, &count,
			"SELECT COUNT(*) FROM indicator_enrichments WHERE "+cond); err != nil {
			return nil, fmt.Errorf("risk bucket %s: %w", name, err)
		}
		stats.ByRiskLevel[name] = count
	}

	since := time.Now().Add(-24 * time.Hour)
	if err := s.db.GetContext(ctx, &stats.RecentCount,
		"SELECT COUNT(*) FROM indicators WHERE created_at >= ?", since); err != nil {
		return nil, fmt.Errorf("recent indicators: %w", err)
	}

	return stats, nil
}

// GetDashboardStats computes the headline dashboard numbers.
func (s *Store) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	indicatorStats, err := s.GetIndicatorStats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalIndicators:  indicatorStats.TotalCount,
		IndicatorTypes:   indicatorStats.ByType,
		RiskDistribution: indicatorStats.ByRiskLevel,
	}

	if err := s.db.GetContext(ctx, &stats.TotalArticles, "SELECT COUNT(*) FROM articles"); err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.HighRiskIndicators,
		"SELECT COUNT(*) FROM indicator_enrichments WHERE risk_score >= 50"); err != nil {
		return nil, fmt.Errorf("count high risk indicators: %w", err)
	}

	since := time.Now().Add(-24 * time.Hour)
	if err := s.db.GetContext(ctx, &stats.RecentArticles,
		"SELECT COUNT(*) FROM articles WHERE created_at >= ?", since); err != nil {
		return nil, fmt.Errorf("count recent articles: %w", err)
	}

	return stats, nil
}

package summarize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/models"
	"threatwatch/threatfeed/internal/store"
)

// ErrArticleNotFound is returned when a summary is requested for an
// article ID with no stored row.
var ErrArticleNotFound = errors.New("article not found")

// Service ties summary generation to persistence. A summary is generated
// at most once per (article, mode); later requests return the stored row.
type Service struct {
	store      *store.Store
	summarizer *Summarizer
}

// NewService creates a summarization service.
func NewService(st *store.Store, summarizer *Summarizer) *Service {
	return &Service{store: st, summarizer: summarizer}
}

// SummarizeArticle returns the stored summary for (articleID, mode),
// generating and persisting one if none exists. Returns an error when the
// article does not exist or the mode is invalid.
func (s *Service) SummarizeArticle(ctx context.Context, articleID int64, mode string) (*models.ThreatSummary, error) {
	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	existing, err := s.store.GetSummary(ctx, articleID, mode)
	if err != nil {
		return nil, fmt.Errorf("look up summary: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("look up article: %w", err)
	}
	if article == nil {
		return nil, fmt.Errorf("article %d: %w", articleID, ErrArticleNotFound)
	}

	rows, err := s.store.GetArticleIndicators(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("look up indicators: %w", err)
	}
	indicators := make([]IndicatorInfo, 0, len(rows))
	for _, row := range rows {
		indicators = append(indicators, IndicatorInfo{
			Type:      row.Type,
			Value:     row.Value,
			RiskScore: row.RiskScore,
		})
	}

	content := fmt.Sprintf("Title: %s\n\nSummary: %s\n\n", article.Title, article.Summary)
	text, err := s.summarizer.Summarize(ctx, content, Mode(mode), indicators)
	if err != nil {
		return nil, err
	}

	summary := &models.ThreatSummary{
		ArticleID:      articleID,
		Mode:           mode,
		Content:        text,
		IndicatorCount: int64(len(indicators)),
		RiskLevel:      DetermineRiskLevel(indicators),
		GeneratedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}

	log.Info().
		Int64("article_id", articleID).
		Str("mode", mode).
		Str("risk_level", summary.RiskLevel).
		Int("indicators", len(indicators)).
		Msg("generated threat summary")

	return summary, nil
}

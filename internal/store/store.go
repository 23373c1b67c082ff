// Package store is the dedup-aware persistence layer for indicators, their
// enrichment and article links. All pipeline writes commit per-indicator, so
// one failing indicator never blocks the rest of an article's batch.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"threatwatch/threatfeed/internal/database"
	"threatwatch/threatfeed/internal/ioc"
	"threatwatch/threatfeed/internal/models"
)

// Store wraps the database with upsert semantics for the indicator pipeline.
type Store struct {
	db       *database.DB
	enricher *ioc.Enricher
	now      func() time.Time

	// Serializes concurrent work on the same (type, value) key so at most
	// one enrichment row is ever created per indicator. Entries are never
	// removed; growth is bounded by the number of unique indicators.
	keys sync.Map
}

// New creates a Store using the given connection and enricher.
func New(db *database.DB, enricher *ioc.Enricher) *Store {
	return &Store{
		db:       db,
		enricher: enricher,
		now:      time.Now,
	}
}

// ProcessedIndicator reports the outcome of processing one candidate.
type ProcessedIndicator struct {
	IndicatorID int64   `json:"indicator_id"`
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	RiskScore   float64 `json:"risk_score"`
}

// ProcessCandidate runs the full per-indicator write sequence: upsert the
// indicator, link it to the article, then create or bump its enrichment.
// The sequence holds the per-key lock for its whole duration.
func (s *Store) ProcessCandidate(ctx context.Context, articleID int64, c ioc.Candidate, source string, sourceConfidence float64) (ProcessedIndicator, error) {
	unlock := s.lockKey(c)
	defer unlock()

	indicator, err := s.UpsertIndicator(ctx, c, source)
	if err != nil {
		return ProcessedIndicator{}, err
	}

	if err := s.LinkArticle(ctx, articleID, indicator.ID); err != nil {
		return ProcessedIndicator{}, err
	}

	enrichment, err := s.GetOrCreateEnrichment(ctx, indicator.ID, c, sourceConfidence)
	if err != nil {
		return ProcessedIndicator{}, err
	}

	return ProcessedIndicator{
		IndicatorID: indicator.ID,
		Type:        indicator.Type,
		Value:       indicator.Value,
		RiskScore:   enrichment.RiskScore,
	}, nil
}

func (s *Store) lockKey(c ioc.Candidate) func() {
	key := string(c.Type) + "\x00" + c.Value
	v, _ := s.keys.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// UpsertIndicator returns the existing row for (type, value) or creates one.
func (s *Store) UpsertIndicator(ctx context.Context, c ioc.Candidate, source string) (*models.Indicator, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indicators (type, value, description, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type, value) DO NOTHING`,
		string(c.Type), c.Value, nullString(c.Description), nullString(source))
	if err != nil {
		return nil, fmt.Errorf("upsert indicator %s %q: %w", c.Type, c.Value, err)
	}

	var indicator models.Indicator
	err = s.db.GetContext(ctx, &indicator,
		"SELECT * FROM indicators WHERE type = ? AND value = ?", string(c.Type), c.Value)
	if err != nil {
		return nil, fmt.Errorf("load indicator %s %q: %w", c.Type, c.Value, err)
	}
	return &indicator, nil
}

// LinkArticle records the (article, indicator) pair. A second link attempt
// for the same pair is a successful no-op.
func (s *Store) LinkArticle(ctx context.Context, articleID, indicatorID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_indicators (article_id, indicator_id, discovered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(article_id, indicator_id) DO NOTHING`,
		articleID, indicatorID, s.now())
	if err != nil {
		return fmt.Errorf("link article %d to indicator %d: %w", articleID, indicatorID, err)
	}
	return nil
}

// GetOrCreateEnrichment bumps sightings and last_seen on an existing row,
// leaving the scores untouched, or enriches and inserts a new one.
//
// Sightings counts raw detection events: reprocessing an already-linked
// article increments it again, matching the sighting semantics of the
// upstream feed pipeline.
func (s *Store) GetOrCreateEnrichment(ctx context.Context, indicatorID int64, c ioc.Candidate, sourceConfidence float64) (*models.IndicatorEnrichment, error) {
	var enrichment models.IndicatorEnrichment
	err := s.db.GetContext(ctx, &enrichment,
		"SELECT * FROM indicator_enrichments WHERE indicator_id = ?", indicatorID)

	switch {
	case err == nil:
		now := s.now()
		_, err := s.db.ExecContext(ctx, `
			UPDATE indicator_enrichments
			SET sightings = sightings + 1, last_seen = ?, updated_at = ?
			WHERE indicator_id = ?`,
			now, now, indicatorID)
		if err != nil {
			return nil, fmt.Errorf("update enrichment for indicator %d: %w", indicatorID, err)
		}
		enrichment.Sightings++
		enrichment.LastSeen = now
		return &enrichment, nil

	case errors.Is(err, sql.ErrNoRows):
		return s.createEnrichment(ctx, indicatorID, c, sourceConfidence)

	default:
		return nil, fmt.Errorf("load enrichment for indicator %d: %w", indicatorID, err)
	}
}

func (s *Store) createEnrichment(ctx context.Context, indicatorID int64, c ioc.Candidate, sourceConfidence float64) (*models.IndicatorEnrichment, error) {
	bundle := s.enricher.Enrich(c, sourceConfidence, s.now())

	payloadJSON, err := json.Marshal(bundle.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment payload: %w", err)
	}
	tagsJSON, err := json.Marshal(bundle.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO indicator_enrichments
			(indicator_id, base_score, risk_score, sightings, first_seen, last_seen,
			 source_confidence, enrichment, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		indicatorID, bundle.BaseScore, bundle.RiskScore, bundle.Sightings,
		bundle.FirstSeen, bundle.LastSeen, bundle.SourceConfidence, payloadJSON, tagsJSON)
	if err != nil {
		return nil, fmt.Errorf("insert enrichment for indicator %d: %w", indicatorID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enrichment insert id for indicator %d: %w", indicatorID, err)
	}

	return &models.IndicatorEnrichment{
		ID:               id,
		IndicatorID:      indicatorID,
		BaseScore:        bundle.BaseScore,
		RiskScore:        bundle.RiskScore,
		Sightings:        bundle.Sightings,
		FirstSeen:        bundle.FirstSeen,
		LastSeen:         bundle.LastSeen,
		SourceConfidence: bundle.SourceConfidence,
		Enrichment:       payloadJSON,
		Tags:             tagsJSON,
	}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package models

import (
	"database/sql"
	"time"
)

// Indicator represents a row in the 'indicators' table, unique on
// (type, value). Indicators are shared across articles and feeds.
type Indicator struct {
	ID          int64          `db:"id" json:"id"`
	Type        string         `db:"type" json:"type"`
	Value       string         `db:"value" json:"value"`
	Description sql.NullString `db:"description" json:"-"`
	Source      sql.NullString `db:"source" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// IndicatorEnrichment holds scoring and derived metadata for one indicator.
// There is at most one enrichment row per indicator; repeat detections bump
// Sightings and LastSeen but never recompute the scores.
type IndicatorEnrichment struct {
	ID               int64        `db:"id" json:"id"`
	IndicatorID      int64        `db:"indicator_id" json:"indicator_id"`
	BaseScore        float64      `db:"base_score" json:"base_score"`
	RiskScore        float64      `db:"risk_score" json:"risk_score"`
	Sightings        int64        `db:"sightings" json:"sightings"`
	FirstSeen        time.Time    `db:"first_seen" json:"first_seen"`
	LastSeen         time.Time    `db:"last_seen" json:"last_seen"`
	SourceConfidence float64      `db:"source_confidence" json:"source_confidence"`
	Enrichment       []byte       `db:"enrichment" json:"-"` // JSON marshaled ioc.Payload
	Tags             []byte       `db:"tags" json:"-"`       // JSON marshaled []string
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        sql.NullTime `db:"updated_at" json:"-"`
}

// ArticleIndicator represents a row in the 'article_indicators' join table,
// unique on (article_id, indicator_id).
type ArticleIndicator struct {
	ID           int64     `db:"id"`
	ArticleID    int64     `db:"article_id"`
	IndicatorID  int64     `db:"indicator_id"`
	DiscoveredAt time.Time `db:"discovered_at"`
}

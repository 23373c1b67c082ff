package models

import "time"

// ThreatSummary represents a row in the 'threat_summaries' table, unique on
// (article_id, mode). Regeneration requires deleting the prior row first.
type ThreatSummary struct {
	ID             int64     `db:"id" json:"id"`
	ArticleID      int64     `db:"article_id" json:"article_id"`
	Mode           string    `db:"mode" json:"mode"`
	Content        string    `db:"content" json:"content"`
	IndicatorCount int64     `db:"indicator_count" json:"indicator_count"`
	RiskLevel      string    `db:"risk_level" json:"risk_level"`
	GeneratedAt    time.Time `db:"generated_at" json:"generated_at"`
}

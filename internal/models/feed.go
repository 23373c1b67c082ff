package models

import (
	"database/sql"
	"time"
)

// Feed represents a row in the 'feeds' table. Feeds are soft-deleted by
// clearing the active flag rather than removing the row.
type Feed struct {
	ID        int64        `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	URL       string       `db:"url" json:"url"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at" json:"-"`
}

// NewFeed creates a new active Feed with default values
func NewFeed(name, url string) *Feed {
	return &Feed{
		Name:      name,
		URL:       url,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

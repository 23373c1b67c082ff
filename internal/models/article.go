package models

import "time"

// Article represents a row in the 'articles' table. Articles are created
// once per unique link and are immutable afterwards.
type Article struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Link      string    `db:"link" json:"link"`
	Published string    `db:"published" json:"published"`
	Summary   string    `db:"summary" json:"summary"`
	FeedName  string    `db:"feed_name" json:"feed_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

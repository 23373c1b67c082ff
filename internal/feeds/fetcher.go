// Package feeds wraps syndicated feed retrieval behind a small interface so
// the ingestion pipeline can be driven by fakes in tests.
package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one item of a parsed feed.
type Entry struct {
	Title     string
	Link      string
	Published string
	Summary   string
}

// Feed is the parsed result for one source. Malformed is set when entries
// had to be dropped during parsing; callers should log it and continue.
type Feed struct {
	Entries   []Entry
	Malformed bool
}

// Fetcher retrieves and parses one feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Feed, error)
}

// HTTPFetcher fetches feeds over HTTP using gofeed.
type HTTPFetcher struct {
	parser *gofeed.Parser
}

const userAgent = "ThreatFeedReader/1.0"

// NewHTTPFetcher creates a fetcher. Timeouts are controlled by the caller's
// context.
func NewHTTPFetcher() *HTTPFetcher {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &HTTPFetcher{parser: p}
}

// Fetch downloads and parses the feed at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	parsed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	feed := &Feed{Entries: make([]Entry, 0, len(parsed.Items))}
	for _, item := range parsed.Items {
		if item == nil || item.Link == "" {
			feed.Malformed = true
			continue
		}
		feed.Entries = append(feed.Entries, Entry{
			Title:     item.Title,
			Link:      item.Link,
			Published: publishedMarker(item),
			Summary:   item.Description,
		})
	}
	return feed, nil
}

func publishedMarker(item *gofeed.Item) string {
	if item.Published != "" {
		return item.Published
	}
	if item.Updated != "" {
		return item.Updated
	}
	return time.Now().UTC().Format(time.RFC3339)
}

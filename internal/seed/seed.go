// Package seed populates the feeds table, either from the built-in
// defaults or from a CSV file.
package seed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/models"
	"threatwatch/threatfeed/internal/store"
)

// DefaultFeeds is the built-in feed set used when no CSV is supplied.
var DefaultFeeds = []struct {
	Name string
	URL  string
}{
	{"BBC News", "http://feeds.bbci.co.uk/news/rss.xml"},
	{"CNN Top Stories", "http://rss.cnn.com/rss/edition.rss"},
	{"Reuters World", "https://feeds.reuters.com/reuters/worldNews"},
	{"TechCrunch", "https://techcrunch.com/feed/"},
	{"Hacker News", "https://hnrss.org/frontpage"},
	{"The Verge", "https://www.theverge.com/rss/index.xml"},
	{"Ars Technica", "http://feeds.arstechnica.com/arstechnica/index"},
	{"NPR News", "https://feeds.npr.org/1001/rss.xml"},
	{"Guardian World", "https://www.theguardian.com/world/rss"},
	{"Associated Press", "https://feeds.apnews.com/ApNews/apf-topnews"},
	{"Wired", "https://www.wired.com/feed/rss"},
	{"MIT Technology Review", "https://www.technologyreview.com/feed/"},
	{"Scientific American", "http://rss.sciam.com/ScientificAmerican-Global"},
}

// Seeder handles feed table population.
type Seeder struct {
	store *store.Store
}

// NewSeeder creates a seeder backed by the given store.
func NewSeeder(st *store.Store) *Seeder {
	return &Seeder{store: st}
}

// SeedDefaults inserts the built-in feeds when the table is empty. A
// non-empty table is left untouched so reseeding cannot clobber operator
// changes.
func (s *Seeder) SeedDefaults(ctx context.Context) (int, error) {
	count, err := s.store.CountFeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("check existing feeds: %w", err)
	}
	if count > 0 {
		log.Info().Int64("existing", count).Msg("Feeds table already populated, skipping default seed")
		return 0, nil
	}

	inserted := 0
	for _, f := range DefaultFeeds {
		feed := models.NewFeed(f.Name, f.URL)
		if err := s.store.CreateFeed(ctx, feed); err != nil {
			return inserted, fmt.Errorf("seed feed %q: %w", f.Name, err)
		}
		inserted++
	}

	log.Info().Int("inserted", inserted).Msg("Seeded default feeds")
	return inserted, nil
}

// ImportCSV loads feeds from a CSV file with at least 'name' and 'url'
// columns. An optional 'active' column of true/false controls the initial
// state. Duplicate names are skipped with a warning.
func (s *Seeder) ImportCSV(ctx context.Context, csvPath string) (int, error) {
	log.Info().Str("csv", csvPath).Msg("Starting feed import")

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open CSV: %w", err)
	}
	defer f.Close()

	return s.importFrom(ctx, f)
}

func (s *Seeder) importFrom(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read CSV header: %w", err)
	}
	log.Debug().Strs("header", header).Msg("CSV header read")

	nameIdx := findColumnIndex(header, "name")
	urlIdx := findColumnIndex(header, "url")
	activeIdx := findColumnIndex(header, "active")
	if nameIdx < 0 || urlIdx < 0 {
		return 0, fmt.Errorf("CSV header must contain 'name' and 'url' columns")
	}

	lineCount := 1
	successCount := 0
	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			continue
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}

		name := strings.TrimSpace(record[nameIdx])
		url := strings.TrimSpace(record[urlIdx])
		if name == "" || url == "" {
			log.Warn().Int("line", lineCount).Msg("Skipping row with empty name or url")
			continue
		}

		feed := models.NewFeed(name, url)
		if activeIdx >= 0 && activeIdx < len(record) {
			switch strings.ToLower(strings.TrimSpace(record[activeIdx])) {
			case "false", "0", "no":
				feed.Active = false
			}
		}

		if err := s.store.CreateFeed(ctx, feed); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				log.Warn().Str("name", name).Msg("Feed already exists, skipping")
				continue
			}
			return successCount, fmt.Errorf("insert feed %q: %w", name, err)
		}
		successCount++
	}

	log.Info().Int("imported", successCount).Msg("Feed import completed")
	return successCount, nil
}

func findColumnIndex(header []string, name string) int {
	for i, column := range header {
		if strings.EqualFold(strings.TrimSpace(column), name) {
			return i
		}
	}
	return -1
}

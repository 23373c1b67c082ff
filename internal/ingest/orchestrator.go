// Package ingest runs the feed-to-indicator pipeline: fetch active feeds in
// parallel, store new articles, extract indicator candidates from their
// text, and persist indicators with enrichment through the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/feeds"
	"threatwatch/threatfeed/internal/ioc"
	"threatwatch/threatfeed/internal/metrics"
	"threatwatch/threatfeed/internal/models"
	"threatwatch/threatfeed/internal/store"
)

const feedTimeout = 2 * time.Minute

// Result reports the outcome of one ingestion run. A run is successful
// when the pipeline itself completed; individual feed failures are counted
// but do not fail the run.
type Result struct {
	Success             bool   `json:"success"`
	ArticlesProcessed   int64  `json:"articles_processed"`
	IndicatorsExtracted int64  `json:"indicators_extracted"`
	FeedFailures        int64  `json:"feed_failures"`
	Error               string `json:"error,omitempty"`
}

// Store is the persistence surface the orchestrator writes through.
// *store.Store satisfies it.
type Store interface {
	ListActiveFeeds(ctx context.Context) ([]models.Feed, error)
	CreateArticle(ctx context.Context, article *models.Article) (bool, error)
	ProcessCandidate(ctx context.Context, articleID int64, c ioc.Candidate, source string, sourceConfidence float64) (store.ProcessedIndicator, error)
}

// Orchestrator coordinates the ingestion pipeline. It holds no per-run
// state, so overlapping Run calls only share the store, whose writes are
// idempotent.
type Orchestrator struct {
	store       Store
	fetcher     feeds.Fetcher
	extractor   *ioc.Extractor
	WorkerCount int

	sourceConfidence float64
}

// runCounters accumulates one run's totals. Each Run owns its own set so
// concurrent runs never mix counts.
type runCounters struct {
	articles     atomic.Int64
	indicators   atomic.Int64
	feedFailures atomic.Int64
}

// NewOrchestrator creates an orchestrator. A non-positive workerCount
// defaults to the number of CPUs.
func NewOrchestrator(st Store, fetcher feeds.Fetcher, workerCount int, sourceConfidence float64) *Orchestrator {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &Orchestrator{
		store:            st,
		fetcher:          fetcher,
		extractor:        ioc.NewExtractor(),
		WorkerCount:      workerCount,
		sourceConfidence: sourceConfidence,
	}
}

// Run executes one full ingestion pass over all active feeds and returns
// aggregate counts. It is safe to call repeatedly and concurrently; the
// work queue and counters are per run, articles already stored are skipped,
// and indicator re-detections bump sightings instead of duplicating rows.
func (o *Orchestrator) Run(ctx context.Context) Result {
	start := time.Now()

	activeFeeds, err := o.store.ListActiveFeeds(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load active feeds")
		return Result{Success: false, Error: fmt.Sprintf("load active feeds: %v", err)}
	}
	log.Info().Int("feeds", len(activeFeeds)).Msg("starting ingestion run")

	feedQueue := make(chan models.Feed, o.WorkerCount*2)
	counters := &runCounters{}

	var wg sync.WaitGroup
	for i := 0; i < o.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.feedWorker(ctx, feedQueue, counters)
		}()
	}

queueLoop:
	for _, feed := range activeFeeds {
		select {
		case feedQueue <- feed:
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("context cancelled while queueing feeds")
			break queueLoop
		}
	}
	close(feedQueue)
	wg.Wait()

	elapsed := time.Since(start)
	metrics.IngestionDuration.Observe(elapsed.Seconds())

	result := Result{
		Success:             true,
		ArticlesProcessed:   counters.articles.Load(),
		IndicatorsExtracted: counters.indicators.Load(),
		FeedFailures:        counters.feedFailures.Load(),
	}
	log.Info().
		Int64("articles", result.ArticlesProcessed).
		Int64("indicators", result.IndicatorsExtracted).
		Int64("feed_failures", result.FeedFailures).
		Dur("elapsed", elapsed).
		Msg("ingestion run complete")
	return result
}

func (o *Orchestrator) feedWorker(ctx context.Context, feedQueue <-chan models.Feed, counters *runCounters) {
	for {
		select {
		case feed, ok := <-feedQueue:
			if !ok {
				return
			}
			o.processFeed(ctx, feed, counters)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) processFeed(ctx context.Context, feed models.Feed, counters *runCounters) {
	feedCtx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	log.Debug().Int64("feed_id", feed.ID).Str("url", feed.URL).Msg("processing feed")

	parsed, err := o.fetcher.Fetch(feedCtx, feed.URL)
	if err != nil {
		counters.feedFailures.Add(1)
		metrics.FeedFailures.WithLabelValues(feed.Name).Inc()
		log.Error().
			Err(err).
			Int64("feed_id", feed.ID).
			Str("url", feed.URL).
			Msg("feed fetch failed, skipping")
		return
	}
	if parsed.Malformed {
		log.Warn().
			Int64("feed_id", feed.ID).
			Str("url", feed.URL).
			Msg("feed parsed with dropped entries")
	}

	for _, entry := range parsed.Entries {
		if feedCtx.Err() != nil {
			return
		}
		if err := o.processEntry(feedCtx, feed, entry, counters); err != nil {
			log.Error().
				Err(err).
				Str("link", entry.Link).
				Str("feed", feed.Name).
				Msg("entry processing failed, continuing")
		}
	}
}

// processEntry stores the entry as an article if unseen, then extracts and
// persists its indicators. A duplicate link is a silent no-op.
func (o *Orchestrator) processEntry(ctx context.Context, feed models.Feed, entry feeds.Entry, counters *runCounters) error {
	article := &models.Article{
		Title:     entry.Title,
		Link:      entry.Link,
		Published: entry.Published,
		Summary:   entry.Summary,
		FeedName:  feed.Name,
	}
	created, err := o.store.CreateArticle(ctx, article)
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	if !created {
		return nil
	}

	counters.articles.Add(1)
	metrics.ArticlesProcessed.Inc()

	text := entry.Title + " " + entry.Summary
	processed, err := o.ProcessArticleIndicators(ctx, article.ID, text, feed.Name)
	counters.indicators.Add(int64(len(processed)))
	return err
}

// ProcessArticleIndicators extracts indicator candidates from text and
// persists each through the store. It is shared by the ingestion loop and
// on-demand API extraction. A failing candidate does not stop the others;
// the indicators that persisted are returned alongside the joined errors.
func (o *Orchestrator) ProcessArticleIndicators(ctx context.Context, articleID int64, text, source string) ([]store.ProcessedIndicator, error) {
	candidates := o.extractor.Extract(text)
	processed := make([]store.ProcessedIndicator, 0, len(candidates))
	var errs []error
	for _, c := range candidates {
		ind, err := o.store.ProcessCandidate(ctx, articleID, c, source, o.sourceConfidence)
		if err != nil {
			errs = append(errs, fmt.Errorf("process indicator %s %q: %w", c.Type, c.Value, err))
			continue
		}
		metrics.IndicatorsExtracted.WithLabelValues(string(c.Type)).Inc()
		processed = append(processed, ind)
	}
	return processed, errors.Join(errs...)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"threatwatch/threatfeed/internal/database"
	"threatwatch/threatfeed/internal/feeds"
	"threatwatch/threatfeed/internal/ingest"
	"threatwatch/threatfeed/internal/ioc"
	"threatwatch/threatfeed/internal/models"
	"threatwatch/threatfeed/internal/server/api"
	"threatwatch/threatfeed/internal/store"
	"threatwatch/threatfeed/internal/summarize"
)

type staticFetcher struct {
	feed *feeds.Feed
}

func (f *staticFetcher) Fetch(ctx context.Context, url string) (*feeds.Feed, error) {
	if f.feed != nil {
		return f.feed, nil
	}
	return &feeds.Feed{}, nil
}

type testEnv struct {
	store  *store.Store
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db, ioc.NewEnricher())
	orchestrator := ingest.NewOrchestrator(st, &staticFetcher{}, 1, 0.7)
	// Empty API key: summaries use the deterministic fallback.
	summarizer := summarize.NewSummarizer("http://unused", "model", "", time.Hour)
	handler := api.NewHandler(st, orchestrator, summarize.NewService(st, summarizer))

	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)

	return &testEnv{store: st, server: srv}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, buf.Bytes()
}

func (e *testEnv) insertArticle(t *testing.T, link, title, summary string) int64 {
	t.Helper()

	article := &models.Article{
		Title:    title,
		Link:     link,
		Summary:  summary,
		FeedName: "Test Feed",
	}
	created, err := e.store.CreateArticle(context.Background(), article)
	if err != nil || !created {
		t.Fatalf("insert article: created=%v err=%v", created, err)
	}
	return article.ID
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("body = %q", body)
	}
}

func TestFeedEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/v1/feeds", map[string]string{
		"name": "Security Feed",
		"url":  "https://feed.example.net/rss",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	// Duplicate name conflicts.
	resp, _ = env.request(t, http.MethodPost, "/v1/feeds", map[string]string{
		"name": "Security Feed",
		"url":  "https://other.example.net/rss",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	// Missing fields and bad schemes rejected.
	resp, _ = env.request(t, http.MethodPost, "/v1/feeds", map[string]string{"name": "No URL"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing url status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodPost, "/v1/feeds", map[string]string{
		"name": "Bad Scheme", "url": "ftp://feed.example.net/rss",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad scheme status = %d, want 400", resp.StatusCode)
	}

	resp, body := env.request(t, http.MethodGet, "/v1/feeds", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var listed []models.Feed
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d feeds, want 1", len(listed))
	}

	resp, _ = env.request(t, http.MethodDelete, fmt.Sprintf("/v1/feeds/%d", listed[0].ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodDelete, "/v1/feeds/9999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", resp.StatusCode)
	}
}

func TestArticlesPagination(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.insertArticle(t, fmt.Sprintf("https://news.example.net/%d", i), fmt.Sprintf("Article %d", i), "text")
	}

	resp, body := env.request(t, http.MethodGet, "/v1/articles?limit=3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var page struct {
		Items      []models.Article `json:"items"`
		NextCursor *string          `json:"next_cursor"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("first page = %d items, want 3", len(page.Items))
	}
	if page.NextCursor == nil {
		t.Fatal("expected next_cursor on first page")
	}

	resp, body = env.request(t, http.MethodGet, "/v1/articles?limit=3&cursor="+*page.NextCursor, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second page status = %d", resp.StatusCode)
	}
	// next_cursor is marshaled with omitempty; clear the first page's value
	// so an absent field in the second response decodes as nil.
	page.NextCursor = nil
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Errorf("second page = %d items, want 2", len(page.Items))
	}
	if page.NextCursor != nil {
		t.Error("last page should not carry next_cursor")
	}

	resp, _ = env.request(t, http.MethodGet, "/v1/articles?cursor=garbage", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodGet, "/v1/articles?limit=0", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", resp.StatusCode)
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	articleID := env.insertArticle(t, "https://news.example.net/1", "Botnet report", "C2 traffic at evil.com")

	resp, body := env.request(t, http.MethodPost, fmt.Sprintf("/v1/articles/%d/summarize", articleID),
		map[string]string{"mode": "executive"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var summary models.ThreatSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Mode != "executive" || summary.ArticleID != articleID {
		t.Errorf("summary = %+v", summary)
	}

	// Repeat returns the same stored row.
	resp, body = env.request(t, http.MethodPost, fmt.Sprintf("/v1/articles/%d/summarize", articleID),
		map[string]string{"mode": "executive"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d", resp.StatusCode)
	}
	var again models.ThreatSummary
	if err := json.Unmarshal(body, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != summary.ID {
		t.Errorf("repeat created new row %d, want %d", again.ID, summary.ID)
	}

	resp, _ = env.request(t, http.MethodPost, fmt.Sprintf("/v1/articles/%d/summarize", articleID),
		map[string]string{"mode": "pirate"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.request(t, http.MethodPost, "/v1/articles/9999/summarize", map[string]string{"mode": "soc"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing article status = %d, want 404", resp.StatusCode)
	}

	resp, body = env.request(t, http.MethodGet, fmt.Sprintf("/v1/articles/%d/summaries", articleID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summaries status = %d", resp.StatusCode)
	}
	var stored []models.ThreatSummary
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Errorf("stored summaries = %d, want 1", len(stored))
	}
}

func TestReprocessEndpoint(t *testing.T) {
	env := newTestEnv(t)

	articleID := env.insertArticle(t, "https://news.example.net/1", "Host report", "Beacons to 203.0.113.9 observed")

	resp, body := env.request(t, http.MethodPost, fmt.Sprintf("/v1/articles/%d/reprocess", articleID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var result struct {
		ArticleID  int64                      `json:"article_id"`
		Indicators []store.ProcessedIndicator `json:"indicators"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Indicators) != 1 || result.Indicators[0].Value != "203.0.113.9" {
		t.Errorf("indicators = %+v", result.Indicators)
	}

	resp, _ = env.request(t, http.MethodGet, fmt.Sprintf("/v1/articles/%d/indicators", articleID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("indicators status = %d", resp.StatusCode)
	}
}

func TestIndicatorsAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	articleID := env.insertArticle(t, "https://news.example.net/1", "Report", "evil.com and malware.com flagged")
	if _, err := env.store.ProcessCandidate(context.Background(), articleID,
		ioc.Candidate{Type: ioc.TypeDomain, Value: "malware.com"}, "Test Feed", 0.7); err != nil {
		t.Fatal(err)
	}

	resp, body := env.request(t, http.MethodGet, "/v1/indicators?type=domain&min_risk=30", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("indicators status = %d", resp.StatusCode)
	}
	var indicators []store.IndicatorWithRisk
	if err := json.Unmarshal(body, &indicators); err != nil {
		t.Fatal(err)
	}
	if len(indicators) != 1 || indicators[0].Value != "malware.com" {
		t.Errorf("indicators = %+v", indicators)
	}

	resp, _ = env.request(t, http.MethodGet, "/v1/indicators?type=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus type status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodGet, "/v1/indicators?min_risk=500", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range min_risk status = %d, want 400", resp.StatusCode)
	}

	resp, body = env.request(t, http.MethodGet, "/v1/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats struct {
		Indicators store.IndicatorStats `json:"indicators"`
		Dashboard  store.DashboardStats `json:"dashboard"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Indicators.TotalCount != 1 {
		t.Errorf("indicator total = %d, want 1", stats.Indicators.TotalCount)
	}
	if stats.Dashboard.TotalArticles != 1 {
		t.Errorf("dashboard articles = %d, want 1", stats.Dashboard.TotalArticles)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := apiKeyMiddleware("secret")(inner)
	open := apiKeyMiddleware("")(inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/feeds", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/feeds", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/feeds", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("correct key status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/feeds", nil)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("open mode status = %d, want 200", rec.Code)
	}
}

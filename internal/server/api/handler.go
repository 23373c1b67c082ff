// Package api holds the HTTP handlers for the threat feed service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/ingest"
	"threatwatch/threatfeed/internal/models"
	"threatwatch/threatfeed/internal/server/pagination"
	"threatwatch/threatfeed/internal/store"
	"threatwatch/threatfeed/internal/summarize"
)

const defaultLimit = 100
const maxLimit = 1000
const iso8601Format = time.RFC3339

// Handler holds dependencies for the API endpoints. Loggers come from the
// request context, not the struct.
type Handler struct {
	store        *store.Store
	orchestrator *ingest.Orchestrator
	summaries    *summarize.Service
}

// NewHandler creates a handler instance.
func NewHandler(st *store.Store, orchestrator *ingest.Orchestrator, summaries *summarize.Service) *Handler {
	return &Handler{
		store:        st,
		orchestrator: orchestrator,
		summaries:    summaries,
	}
}

// ArticlesResponse is the paginated articles payload.
type ArticlesResponse struct {
	Items      []models.Article `json:"items"`
	NextCursor *string          `json:"next_cursor,omitempty"`
}

// ListFeeds handles GET /v1/feeds.
func (h *Handler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.store.ListFeeds(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list feeds")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, feeds)
}

type createFeedRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreateFeed handles POST /v1/feeds.
func (h *Handler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.URL == "" {
		http.Error(w, "Both 'name' and 'url' are required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		http.Error(w, "Feed URL must be http or https", http.StatusBadRequest)
		return
	}

	feed := models.NewFeed(req.Name, req.URL)
	if err := h.store.CreateFeed(r.Context(), feed); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			http.Error(w, "A feed with this name already exists", http.StatusConflict)
			return
		}
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to create feed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	log.Info().Int64("feed_id", feed.ID).Str("name", feed.Name).Msg("Feed created")
	writeJSON(w, r, http.StatusCreated, feed)
}

// DeleteFeed handles DELETE /v1/feeds/{id}. Feeds are deactivated, not
// removed, so their articles keep a valid source name.
func (h *Handler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	deactivated, err := h.store.DeactivateFeed(r.Context(), feedID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("feed_id", feedID).Msg("Failed to deactivate feed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !deactivated {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"deactivated": feedID})
}

// Refresh handles POST /v1/refresh by running an ingestion pass in the
// background and returning immediately.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	hlog.FromRequest(r).Info().Msg("Manual refresh triggered")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		result := h.orchestrator.Run(ctx)
		log.Info().
			Bool("success", result.Success).
			Int64("articles", result.ArticlesProcessed).
			Int64("indicators", result.IndicatorsExtracted).
			Msg("Background refresh finished")
	}()

	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

// ListArticles handles GET /v1/articles with cursor pagination.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	query := r.URL.Query()
	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var since *time.Time
	var cursorTimestamp *time.Time
	var cursorID *int64

	if cursorStr := query.Get("cursor"); cursorStr != "" {
		ts, id, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		cursorTimestamp = &ts
		cursorID = &id
	} else if sinceStr := query.Get("since"); sinceStr != "" {
		parsed, err := time.Parse(iso8601Format, sinceStr)
		if err != nil {
			http.Error(w, "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", http.StatusBadRequest)
			return
		}
		utc := parsed.UTC()
		since = &utc
	} else {
		// No cursor or since: start from the beginning.
		epoch := time.Unix(0, 0).UTC()
		since = &epoch
	}

	articles, err := h.store.FetchArticles(r.Context(), limit+1, since, cursorTimestamp, cursorID)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching articles")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursor *string
	if len(articles) > limit {
		articles = articles[:limit]
		last := articles[len(articles)-1]
		cursor := pagination.EncodeCursor(last.CreatedAt.UTC(), last.ID)
		nextCursor = &cursor
	}

	writeJSON(w, r, http.StatusOK, ArticlesResponse{Items: articles, NextCursor: nextCursor})
}

// GetArticle handles GET /v1/articles/{id}.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	articleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	article, err := h.store.GetArticle(r.Context(), articleID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("article_id", articleID).Msg("Failed to load article")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if article == nil {
		http.Error(w, "Article not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, article)
}

// GetArticleIndicators handles GET /v1/articles/{id}/indicators.
func (h *Handler) GetArticleIndicators(w http.ResponseWriter, r *http.Request) {
	articleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	indicators, err := h.store.GetArticleIndicators(r.Context(), articleID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("article_id", articleID).Msg("Failed to load article indicators")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, indicators)
}

// GetArticleSummaries handles GET /v1/articles/{id}/summaries.
func (h *Handler) GetArticleSummaries(w http.ResponseWriter, r *http.Request) {
	articleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	summaries, err := h.store.ListSummaries(r.Context(), articleID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("article_id", articleID).Msg("Failed to load summaries")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, summaries)
}

type summarizeRequest struct {
	Mode string `json:"mode"`
}

// SummarizeArticle handles POST /v1/articles/{id}/summarize. The mode
// defaults to soc when the body omits it.
func (h *Handler) SummarizeArticle(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	articleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	req := summarizeRequest{Mode: string(summarize.ModeSOC)}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	summary, err := h.summaries.SummarizeArticle(r.Context(), articleID, req.Mode)
	if err != nil {
		if errors.Is(err, summarize.ErrInvalidMode) {
			http.Error(w, "Invalid mode: use soc, researcher or executive", http.StatusBadRequest)
			return
		}
		if errors.Is(err, summarize.ErrArticleNotFound) {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("article_id", articleID).Str("mode", req.Mode).Msg("Summarization failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, summary)
}

// ReprocessArticle handles POST /v1/articles/{id}/reprocess: it re-runs
// indicator extraction over a stored article's text. Stale summaries for
// the article are removed so the next request regenerates them.
func (h *Handler) ReprocessArticle(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	articleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	article, err := h.store.GetArticle(r.Context(), articleID)
	if err != nil {
		log.Error().Err(err).Int64("article_id", articleID).Msg("Failed to load article")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if article == nil {
		http.Error(w, "Article not found", http.StatusNotFound)
		return
	}

	text := article.Title + " " + article.Summary
	processed, err := h.orchestrator.ProcessArticleIndicators(r.Context(), articleID, text, article.FeedName)
	if err != nil {
		log.Error().Err(err).Int64("article_id", articleID).Msg("Reprocessing failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	for _, mode := range []summarize.Mode{summarize.ModeSOC, summarize.ModeResearcher, summarize.ModeExecutive} {
		if _, err := h.store.DeleteSummary(r.Context(), articleID, string(mode)); err != nil {
			log.Warn().Err(err).Int64("article_id", articleID).Str("mode", string(mode)).Msg("Failed to drop stale summary")
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"article_id": articleID,
		"indicators": processed,
	})
}

// ListIndicators handles GET /v1/indicators with optional type and
// min_risk filters.
func (h *Handler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	indicatorType := query.Get("type")
	switch indicatorType {
	case "", "ip", "domain", "url", "hash":
	default:
		http.Error(w, "Invalid 'type' parameter: use ip, domain, url or hash", http.StatusBadRequest)
		return
	}

	var minRisk *float64
	if minRiskStr := query.Get("min_risk"); minRiskStr != "" {
		parsed, err := strconv.ParseFloat(minRiskStr, 64)
		if err != nil || parsed < 0 || parsed > 100 {
			http.Error(w, "Invalid 'min_risk' parameter: must be between 0 and 100", http.StatusBadRequest)
			return
		}
		minRisk = &parsed
	}

	indicators, err := h.store.ListIndicators(r.Context(), limit, indicatorType, minRisk)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list indicators")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, indicators)
}

// GetStats handles GET /v1/stats, combining indicator and dashboard
// aggregates in one payload.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	indicatorStats, err := h.store.GetIndicatorStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute indicator stats")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	dashboard, err := h.store.GetDashboardStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute dashboard stats")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"indicators": indicatorStats,
		"dashboard":  dashboard,
	})
}

// pathID parses the {name} path segment as an int64 id, writing a 400 and
// returning false on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, fmt.Sprintf("Invalid '%s' path segment", name), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response body")
	}
}

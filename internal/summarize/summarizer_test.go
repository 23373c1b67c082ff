package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDetermineRiskLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		indicators []IndicatorInfo
		want       string
	}{
		{"no indicators", nil, "low"},
		{"all low", []IndicatorInfo{{RiskScore: 10}, {RiskScore: 20}}, "low"},
		{"medium", []IndicatorInfo{{RiskScore: 30}}, "medium"},
		{"high", []IndicatorInfo{{RiskScore: 10}, {RiskScore: 60}}, "high"},
		{"critical", []IndicatorInfo{{RiskScore: 80}}, "critical"},
		{"boundary 25", []IndicatorInfo{{RiskScore: 25}}, "medium"},
		{"boundary 50", []IndicatorInfo{{RiskScore: 50}}, "high"},
		{"boundary 75", []IndicatorInfo{{RiskScore: 75}}, "critical"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetermineRiskLevel(tt.indicators); got != tt.want {
				t.Errorf("DetermineRiskLevel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarizeInvalidMode(t *testing.T) {
	t.Parallel()
	s := NewSummarizer("http://unused", "model", "", time.Hour)

	_, err := s.Summarize(context.Background(), "content", Mode("pirate"), nil)
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSummarizeWithoutAPIKey(t *testing.T) {
	t.Parallel()
	s := NewSummarizer("http://unused", "model", "", time.Hour)

	indicators := []IndicatorInfo{
		{Type: "ip", Value: "203.0.113.9", RiskScore: 21},
		{Type: "domain", Value: "malware.com", RiskScore: 55},
	}

	got, err := s.Summarize(context.Background(), "content", ModeSOC, indicators)
	if err != nil {
		t.Fatalf("fallback path should not error: %v", err)
	}
	if !strings.Contains(got, "2 indicators of compromise") {
		t.Errorf("fallback summary missing indicator count:\n%s", got)
	}
	if !strings.Contains(got, "1 high-risk IOCs") {
		t.Errorf("fallback summary missing high-risk count:\n%s", got)
	}
	if !strings.Contains(got, "HIGH") {
		t.Errorf("fallback summary missing risk level:\n%s", got)
	}
}

func TestSummarizeFallbackModes(t *testing.T) {
	t.Parallel()
	s := NewSummarizer("http://unused", "model", "", time.Hour)

	indicators := []IndicatorInfo{{Type: "hash", Value: "cafebabe", RiskScore: 35}}

	researcher, err := s.Summarize(context.Background(), "content", ModeResearcher, indicators)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(researcher, "Technical Analysis Summary") || !strings.Contains(researcher, "hash") {
		t.Errorf("researcher fallback malformed:\n%s", researcher)
	}

	executive, err := s.Summarize(context.Background(), "content", ModeExecutive, indicators)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(executive, "Executive Threat Brief") || !strings.Contains(executive, "1 potential threat indicators") {
		t.Errorf("executive fallback malformed:\n%s", executive)
	}
}

func TestSummarizeGeneratesAndCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "openai/gpt-3.5-turbo" {
			t.Errorf("model = %q", req.Model)
		}
		if req.MaxTokens != 1000 || req.Temperature != 0.3 {
			t.Errorf("generation params = %d/%v", req.MaxTokens, req.Temperature)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content, "SOC analyst") {
			t.Errorf("prompt missing role framing:\n%s", req.Messages[0].Content)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  generated summary  "}},
			},
		})
	}))
	defer srv.Close()

	s := NewSummarizer(srv.URL, "openai/gpt-3.5-turbo", "test-key", time.Hour)

	got, err := s.Summarize(context.Background(), "article text", ModeSOC, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "generated summary" {
		t.Errorf("summary = %q, want trimmed generated text", got)
	}

	// Second identical request must come from the cache.
	again, err := s.Summarize(context.Background(), "article text", ModeSOC, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Errorf("cached summary = %q, want %q", again, got)
	}
	if calls.Load() != 1 {
		t.Errorf("generation service called %d times, want 1", calls.Load())
	}
}

func TestSummarizeServerErrorFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSummarizer(srv.URL, "model", "test-key", time.Hour)

	got, err := s.Summarize(context.Background(), "article text", ModeSOC, nil)
	if err != nil {
		t.Fatalf("generation failure should degrade, not error: %v", err)
	}
	if !strings.Contains(got, "SOC Alert Summary") {
		t.Errorf("expected fallback summary, got:\n%s", got)
	}
}

func TestSummarizeEmptyChoicesFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	s := NewSummarizer(srv.URL, "model", "test-key", time.Hour)

	got, err := s.Summarize(context.Background(), "article text", ModeExecutive, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Executive Threat Brief") {
		t.Errorf("expected fallback summary, got:\n%s", got)
	}
}

func TestRenderPromptTruncatesContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 5000)
	prompt := renderPrompt(ModeSOC, long, nil)
	if strings.Contains(prompt, strings.Repeat("x", maxPromptContentLen+1)) {
		t.Error("content not truncated")
	}
	if !strings.Contains(prompt, "None detected") {
		t.Error("empty indicator list should render as None detected")
	}
}

package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/metrics"
)

// Mode selects the audience a summary is written for.
type Mode string

const (
	ModeSOC        Mode = "soc"
	ModeResearcher Mode = "researcher"
	ModeExecutive  Mode = "executive"
)

// ErrInvalidMode is returned when a caller requests an unknown summary mode.
var ErrInvalidMode = errors.New("invalid summary mode")

// ValidMode reports whether s names a supported summary mode.
func ValidMode(s string) bool {
	switch Mode(s) {
	case ModeSOC, ModeResearcher, ModeExecutive:
		return true
	}
	return false
}

// IndicatorInfo is the slice of indicator data a summary needs.
type IndicatorInfo struct {
	Type      string
	Value     string
	RiskScore float64
}

// Summarizer generates role-targeted summaries through an OpenAI-compatible
// chat-completions endpoint, with a TTL cache in front and a deterministic
// template fallback when the service is unavailable or unconfigured.
type Summarizer struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
}

// NewSummarizer builds a summarizer. An empty apiKey disables generation;
// every request is then served by the fallback.
func NewSummarizer(endpoint, model, apiKey string, cacheTTL time.Duration) *Summarizer {
	return &Summarizer{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: NewCache(cacheTTL),
	}
}

// Summarize produces a summary of content for the given mode. It never
// fails once the mode is validated: generation errors degrade to the
// fallback summary. The cache key covers both text and indicator count so
// re-extraction that changes the indicator set invalidates the entry.
func (s *Summarizer) Summarize(ctx context.Context, content string, mode Mode, indicators []IndicatorInfo) (string, error) {
	if !ValidMode(string(mode)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if s.apiKey == "" {
		log.Warn().Str("mode", string(mode)).Msg("no generation API key configured, using fallback summary")
		metrics.SummaryFallbacks.WithLabelValues(string(mode)).Inc()
		return fallbackSummary(mode, indicators), nil
	}

	cacheContent := fmt.Sprintf("%s:%d", content, len(indicators))
	if cached, ok := s.cache.Get(cacheContent, string(mode)); ok {
		recordCacheHit(true)
		log.Debug().Str("mode", string(mode)).Msg("summary cache hit")
		return cached, nil
	}
	recordCacheHit(false)

	summary, err := s.generate(ctx, content, mode, indicators)
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("summary generation failed, using fallback")
		metrics.SummaryFallbacks.WithLabelValues(string(mode)).Inc()
		return fallbackSummary(mode, indicators), nil
	}

	s.cache.Set(cacheContent, string(mode), summary)
	return summary, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Summarizer) generate(ctx context.Context, content string, mode Mode, indicators []IndicatorInfo) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: renderPrompt(mode, content, indicators)},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generation service error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in chat response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// fallbackSummary renders a deterministic summary from indicator data
// alone. High risk here means a risk score above 50.
func fallbackSummary(mode Mode, indicators []IndicatorInfo) string {
	total := len(indicators)
	highRisk := 0
	for _, ind := range indicators {
		if ind.RiskScore > 50 {
			highRisk++
		}
	}

	switch mode {
	case ModeResearcher:
		return fmt.Sprintf(`**Technical Analysis Summary**

Security intelligence analysis completed on provided content.

**IOC Breakdown:**
- Total indicators: %d
- High-risk indicators: %d
- Indicator types: %s

**Research Notes:**
- Content requires further analysis with threat intelligence platforms
- Cross-reference indicators with known campaign data
- Monitor for additional related indicators

**Next Steps:**
- Deep dive analysis recommended for high-risk IOCs
- Correlation with historical attack data needed`,
			total, highRisk, indicatorTypes(indicators))

	case ModeExecutive:
		attention := "Routine monitoring sufficient"
		disruption := "No immediate business disruption expected"
		review := "Standard"
		timeline := "Monitor over next 24-48 hours"
		if highRisk > 0 {
			attention = "IMMEDIATE ATTENTION REQUIRED"
			disruption = "Potential active threat detected"
			review = "Urgent"
			timeline = "Immediate response required"
		}
		investigation := "Optional"
		if total > 5 {
			investigation = "Recommended"
		}
		return fmt.Sprintf(`**Executive Threat Brief**

**Situation:** Security monitoring detected %d potential threat indicators.

**Business Impact:**
- %s
- %s

**Resource Requirements:**
- SOC team review: %s
- Additional investigation: %s

**Timeline:** %s`,
			total, attention, disruption, review, investigation, timeline)

	default:
		level := "LOW"
		if highRisk > 0 {
			level = "HIGH"
		} else if total > 0 {
			level = "MEDIUM"
		}
		return fmt.Sprintf(`**SOC Alert Summary**

Content analyzed from security feed with %d indicators of compromise detected.

**Key Findings:**
- %d high-risk IOCs requiring immediate attention
- %d medium/low-risk indicators for monitoring

**Recommended Actions:**
- Review and validate high-risk IOCs immediately
- Add indicators to threat hunting queries
- Monitor for related activity in network logs

**Risk Level:** %s`,
			total, highRisk, total-highRisk, level)
	}
}

func indicatorTypes(indicators []IndicatorInfo) string {
	if len(indicators) == 0 {
		return "None"
	}
	seen := make(map[string]struct{})
	var types []string
	for _, ind := range indicators {
		if _, ok := seen[ind.Type]; ok {
			continue
		}
		seen[ind.Type] = struct{}{}
		types = append(types, ind.Type)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

// DetermineRiskLevel maps the highest indicator risk score to a level.
// No indicators means low.
func DetermineRiskLevel(indicators []IndicatorInfo) string {
	if len(indicators) == 0 {
		return "low"
	}
	var max float64
	for _, ind := range indicators {
		if ind.RiskScore > max {
			max = ind.RiskScore
		}
	}
	switch {
	case max >= 75:
		return "critical"
	case max >= 50:
		return "high"
	case max >= 25:
		return "medium"
	default:
		return "low"
	}
}

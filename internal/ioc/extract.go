package ioc

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor turns raw text into a deduplicated set of typed indicator
// candidates. It is safe for concurrent use; all patterns are compiled once.
type Extractor struct {
	urlPattern    *regexp.Regexp
	ipv4Pattern   *regexp.Regexp
	ipv6Pattern   *regexp.Regexp
	domainPattern *regexp.Regexp
	hashPatterns  []*regexp.Regexp
}

const extractedDescription = "Extracted from text content"

// Known placeholder values that show up in documentation and sample configs.
var (
	placeholderDomains = map[string]struct{}{
		"example.com": {},
		"example.org": {},
		"localhost":   {},
		"test.com":    {},
	}
	placeholderURLs = []string{
		"http://example.com",
		"https://example.com",
	}
	// Exact reserved addresses plus prefixes of private ranges.
	reservedIPs      = map[string]struct{}{"0.0.0.0": {}, "127.0.0.1": {}, "255.255.255.255": {}}
	privateIPRanges  = []string{"192.168.", "10.", "172.16."}
	validHashLengths = map[int]struct{}{32: {}, 40: {}, 64: {}, 128: {}}
)

// NewExtractor compiles the per-type patterns.
func NewExtractor() *Extractor {
	return &Extractor{
		urlPattern:    regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s<>"{}|\\^` + "`" + `\[\]]+`),
		ipv4Pattern:   regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
		ipv6Pattern:   regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
		domainPattern: regexp.MustCompile(`\b[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}\b`),
		hashPatterns: []*regexp.Regexp{
			regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`),  // MD5
			regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`),  // SHA1
			regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`),  // SHA256
			regexp.MustCompile(`\b[a-fA-F0-9]{128}\b`), // SHA512
		},
	}
}

// Extract returns the deduplicated candidates found in text. Output order is
// unspecified; callers must rely on set membership only. URL spans are
// masked out before domain matching so a URL's embedded hostname is not
// additionally reported as a bare domain.
func (e *Extractor) Extract(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []Candidate
	add := func(t Type, value string) {
		key := string(t) + "\x00" + value
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Candidate{Type: t, Value: value, Description: extractedDescription})
	}

	// URLs first; their spans are excluded from domain matching below.
	urlSpans := e.urlPattern.FindAllStringIndex(text, -1)
	for _, span := range urlSpans {
		value := strings.ToLower(text[span[0]:span[1]])
		if validURL(value) {
			add(TypeURL, value)
		}
	}

	for _, value := range e.ipv4Pattern.FindAllString(text, -1) {
		if validIP(value) {
			add(TypeIP, value)
		}
	}
	// IPv6 matches run through the same validation, which only admits
	// dotted-quad addresses today.
	for _, value := range e.ipv6Pattern.FindAllString(text, -1) {
		if validIP(value) {
			add(TypeIP, value)
		}
	}

	masked := maskSpans(text, urlSpans)
	for _, value := range e.domainPattern.FindAllString(masked, -1) {
		value = strings.ToLower(value)
		if validDomain(value) {
			add(TypeDomain, value)
		}
	}

	for _, pattern := range e.hashPatterns {
		for _, value := range pattern.FindAllString(text, -1) {
			if _, ok := validHashLengths[len(value)]; ok {
				add(TypeHash, value)
			}
		}
	}

	return out
}

// maskSpans blanks the byte ranges in spans so later matchers skip them.
func maskSpans(text string, spans [][]int) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, span := range spans {
		for i := span[0]; i < span[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

func validIP(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	if _, reserved := reservedIPs[ip]; reserved {
		return false
	}
	for _, prefix := range privateIPRanges {
		if strings.HasPrefix(ip, prefix) {
			return false
		}
	}
	return true
}

func validDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	domain = strings.TrimSuffix(domain, ".")
	if _, placeholder := placeholderDomains[domain]; placeholder {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if !validLabel(label) {
			return false
		}
	}
	return true
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(label)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func validURL(url string) bool {
	for _, placeholder := range placeholderURLs {
		if strings.Contains(url, placeholder) {
			return false
		}
	}
	return true
}

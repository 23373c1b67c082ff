package ioc

import (
	"strings"
	"time"
)

// Reputation markers attached to the enrichment payload.
const (
	ReputationMalicious = "malicious"
	ReputationUnknown   = "unknown"
)

// Enrichment is the score bundle produced for a freshly detected candidate.
type Enrichment struct {
	BaseScore        float64
	RiskScore        float64
	SourceConfidence float64
	Payload          Payload
	Tags             []string
	Sightings        int64
	FirstSeen        time.Time
	LastSeen         time.Time
}

// Enricher scores candidates against static threat tables. It performs no
// network calls; the tables are the seam for real threat-intel integration.
type Enricher struct {
	knownThreats map[string][]string
}

const maxScore = 100.0

var baseScores = map[Type]float64{
	TypeIP:     30.0,
	TypeDomain: 25.0,
	TypeURL:    40.0,
	TypeHash:   50.0,
}

// NewEnricher builds an enricher with the built-in threat tables.
func NewEnricher() *Enricher {
	return &Enricher{
		knownThreats: map[string][]string{
			"malware_domains": {"malware.com", "badsite.org"},
			"suspicious_ips":  {"192.0.2.1", "198.51.100.1"},
			"phishing_urls":   {"phishing-site.com"},
		},
	}
}

// Enrich computes the score bundle for one candidate. The result is
// deterministic for a given candidate, confidence and timestamp.
func (e *Enricher) Enrich(c Candidate, sourceConfidence float64, now time.Time) Enrichment {
	base := baseScores[c.Type]
	if base == 0 {
		base = 20.0
	}
	if e.isKnownThreat(c) {
		base += 30.0
	}
	if base > maxScore {
		base = maxScore
	}

	risk := base * sourceConfidence
	if risk > maxScore {
		risk = maxScore
	}

	payload := Payload{
		ThreatTypes: e.threatTypes(c),
		Reputation:  e.reputation(c),
	}
	if c.Type == TypeIP {
		payload.Geolocation = &Geolocation{Country: "Unknown", City: "Unknown", ASN: "Unknown"}
	}

	return Enrichment{
		BaseScore:        base,
		RiskScore:        risk,
		SourceConfidence: sourceConfidence,
		Payload:          payload,
		Tags:             buildTags(c, payload),
		Sightings:        1,
		FirstSeen:        now,
		LastSeen:         now,
	}
}

func (e *Enricher) isKnownThreat(c Candidate) bool {
	value := strings.ToLower(c.Value)
	for _, list := range e.knownThreats {
		for _, threat := range list {
			if value == threat {
				return true
			}
		}
	}
	return false
}

func (e *Enricher) threatTypes(c Candidate) []string {
	value := strings.ToLower(c.Value)
	var types []string
	if contains(e.knownThreats["malware_domains"], value) {
		types = append(types, "malware")
	}
	if contains(e.knownThreats["suspicious_ips"], value) {
		types = append(types, "suspicious")
	}
	if contains(e.knownThreats["phishing_urls"], value) {
		types = append(types, "phishing")
	}
	if len(types) == 0 {
		return []string{"unknown"}
	}
	return types
}

func (e *Enricher) reputation(c Candidate) string {
	if e.isKnownThreat(c) {
		return ReputationMalicious
	}
	return ReputationUnknown
}

func buildTags(c Candidate, payload Payload) []string {
	tags := []string{string(c.Type)}
	tags = append(tags, payload.ThreatTypes...)
	if payload.Reputation == ReputationMalicious {
		tags = append(tags, "high-confidence")
	}

	seen := make(map[string]struct{}, len(tags))
	unique := tags[:0]
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		unique = append(unique, tag)
	}
	return unique
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

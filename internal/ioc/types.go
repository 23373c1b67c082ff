// Package ioc extracts and scores security indicators (IOCs) found in
// free text. Both the extractor and the enricher are stateless; persistence
// is handled elsewhere.
package ioc

// Type classifies an indicator value.
type Type string

const (
	TypeIP     Type = "ip"
	TypeDomain Type = "domain"
	TypeURL    Type = "url"
	TypeHash   Type = "hash"
)

// Candidate is one extracted indicator before enrichment. Domain and URL
// values are lowercased; IP and hash values are preserved as matched.
type Candidate struct {
	Type        Type
	Value       string
	Description string
}

// Geolocation is a stub record attached to IP indicators. Real lookups are
// a future integration point.
type Geolocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
	ASN     string `json:"asn"`
}

// Payload is the structured enrichment data stored alongside an indicator.
type Payload struct {
	ThreatTypes []string     `json:"threat_types"`
	Reputation  string       `json:"reputation"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
}

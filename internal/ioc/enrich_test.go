package ioc

import (
	"testing"
	"time"
)

func TestEnrichBaseScores(t *testing.T) {
	t.Parallel()
	e := NewEnricher()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		typ  Type
		base float64
	}{
		{TypeIP, 30.0},
		{TypeDomain, 25.0},
		{TypeURL, 40.0},
		{TypeHash, 50.0},
		{Type("other"), 20.0},
	}
	for _, tt := range tests {
		got := e.Enrich(Candidate{Type: tt.typ, Value: "benign-value"}, 1.0, now)
		if got.BaseScore != tt.base {
			t.Errorf("type %s: base score %v, want %v", tt.typ, got.BaseScore, tt.base)
		}
		if got.RiskScore != tt.base {
			t.Errorf("type %s: risk at confidence 1.0 should equal base, got %v", tt.typ, got.RiskScore)
		}
	}
}

func TestEnrichKnownThreatBoost(t *testing.T) {
	t.Parallel()
	e := NewEnricher()
	now := time.Now()

	got := e.Enrich(Candidate{Type: TypeDomain, Value: "malware.com"}, 0.7, now)

	if got.BaseScore != 55.0 {
		t.Errorf("base score %v, want 55 (25 + 30 boost)", got.BaseScore)
	}
	if got.RiskScore != 55.0*0.7 {
		t.Errorf("risk score %v, want %v", got.RiskScore, 55.0*0.7)
	}
	if got.Payload.Reputation != ReputationMalicious {
		t.Errorf("reputation %q, want %q", got.Payload.Reputation, ReputationMalicious)
	}
	if len(got.Payload.ThreatTypes) != 1 || got.Payload.ThreatTypes[0] != "malware" {
		t.Errorf("threat types %v, want [malware]", got.Payload.ThreatTypes)
	}
}

func TestEnrichScoreClamp(t *testing.T) {
	t.Parallel()
	e := NewEnricher()

	// Hash base 50 plus boost stays at 80, below the cap, so exercise the
	// risk clamp through a confidence above 1.
	got := e.Enrich(Candidate{Type: TypeHash, Value: "deadbeef"}, 3.0, time.Now())
	if got.RiskScore != 100.0 {
		t.Errorf("risk score %v, want clamped 100", got.RiskScore)
	}
}

func TestEnrichUnknownValue(t *testing.T) {
	t.Parallel()
	e := NewEnricher()

	got := e.Enrich(Candidate{Type: TypeDomain, Value: "nobody-heard-of.net"}, 0.7, time.Now())

	if got.Payload.Reputation != ReputationUnknown {
		t.Errorf("reputation %q, want %q", got.Payload.Reputation, ReputationUnknown)
	}
	if len(got.Payload.ThreatTypes) != 1 || got.Payload.ThreatTypes[0] != "unknown" {
		t.Errorf("threat types %v, want [unknown]", got.Payload.ThreatTypes)
	}
	if got.Payload.Geolocation != nil {
		t.Errorf("geolocation should only be set for ip candidates")
	}
}

func TestEnrichGeolocationOnlyForIPs(t *testing.T) {
	t.Parallel()
	e := NewEnricher()
	now := time.Now()

	ip := e.Enrich(Candidate{Type: TypeIP, Value: "203.0.113.9"}, 0.7, now)
	if ip.Payload.Geolocation == nil {
		t.Fatal("ip candidate missing geolocation stub")
	}
	if ip.Payload.Geolocation.Country != "Unknown" {
		t.Errorf("geolocation country %q, want Unknown", ip.Payload.Geolocation.Country)
	}

	url := e.Enrich(Candidate{Type: TypeURL, Value: "https://x.y/z"}, 0.7, now)
	if url.Payload.Geolocation != nil {
		t.Errorf("url candidate should not carry geolocation")
	}
}

func TestEnrichTags(t *testing.T) {
	t.Parallel()
	e := NewEnricher()

	known := e.Enrich(Candidate{Type: TypeIP, Value: "192.0.2.1"}, 0.7, time.Now())
	wantKnown := []string{"ip", "suspicious", "high-confidence"}
	if len(known.Tags) != len(wantKnown) {
		t.Fatalf("tags %v, want %v", known.Tags, wantKnown)
	}
	for i, tag := range wantKnown {
		if known.Tags[i] != tag {
			t.Errorf("tag[%d] = %q, want %q", i, known.Tags[i], tag)
		}
	}

	plain := e.Enrich(Candidate{Type: TypeHash, Value: "cafebabe"}, 0.7, time.Now())
	wantPlain := []string{"hash", "unknown"}
	if len(plain.Tags) != len(wantPlain) {
		t.Fatalf("tags %v, want %v", plain.Tags, wantPlain)
	}
}

func TestEnrichInitialSightings(t *testing.T) {
	t.Parallel()
	e := NewEnricher()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got := e.Enrich(Candidate{Type: TypeDomain, Value: "fresh.net"}, 0.7, now)
	if got.Sightings != 1 {
		t.Errorf("sightings %d, want 1", got.Sightings)
	}
	if !got.FirstSeen.Equal(now) || !got.LastSeen.Equal(now) {
		t.Errorf("first/last seen %v/%v, want %v", got.FirstSeen, got.LastSeen, now)
	}
	if got.SourceConfidence != 0.7 {
		t.Errorf("source confidence %v, want 0.7", got.SourceConfidence)
	}
}

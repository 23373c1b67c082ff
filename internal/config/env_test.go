package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("TF_TEST_STRING", "from-env")

	if got := GetEnvString("TF_TEST_STRING", "fallback"); got != "from-env" {
		t.Errorf("got %q", got)
	}
	if got := GetEnvString("TF_TEST_STRING_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TF_TEST_INT", "42")
	t.Setenv("TF_TEST_INT_BAD", "not-a-number")

	if got := GetEnvInt("TF_TEST_INT", 7); got != 42 {
		t.Errorf("got %d", got)
	}
	if got := GetEnvInt("TF_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("invalid value should fall back, got %d", got)
	}
	if got := GetEnvInt("TF_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("unset should fall back, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TF_TEST_FLOAT", "0.85")
	t.Setenv("TF_TEST_FLOAT_BAD", "high")

	if got := GetEnvFloat("TF_TEST_FLOAT", 0.5); got != 0.85 {
		t.Errorf("got %v", got)
	}
	if got := GetEnvFloat("TF_TEST_FLOAT_BAD", 0.5); got != 0.5 {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TF_TEST_DUR_UNITS", "90s")
	t.Setenv("TF_TEST_DUR_BARE", "15")
	t.Setenv("TF_TEST_DUR_BAD", "soon")

	if got := GetEnvDuration("TF_TEST_DUR_UNITS", time.Minute); got != 90*time.Second {
		t.Errorf("got %v", got)
	}
	// A bare number is interpreted as minutes.
	if got := GetEnvDuration("TF_TEST_DUR_BARE", time.Minute); got != 15*time.Minute {
		t.Errorf("got %v", got)
	}
	if got := GetEnvDuration("TF_TEST_DUR_BAD", time.Minute); got != time.Minute {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("TF_TEST_LEVEL", "warn")
	t.Setenv("TF_TEST_LEVEL_BAD", "shouty")

	if got := GetEnvLogLevel("TF_TEST_LEVEL", zerolog.InfoLevel); got != zerolog.WarnLevel {
		t.Errorf("got %v", got)
	}
	if got := GetEnvLogLevel("TF_TEST_LEVEL_BAD", zerolog.InfoLevel); got != zerolog.InfoLevel {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	FeedsCSVPath string
	DBPath       string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Ingestion settings
	WorkerCount      int
	Interval         time.Duration
	SourceConfidence float64

	// Summary generation settings
	GenerationURL    string
	GenerationModel  string
	GenerationAPIKey string
	SummaryCacheTTL  time.Duration

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		FeedsCSVPath:     DefaultFeedsCSVPath,
		DBPath:           DefaultDBPath,
		ServerHost:       DefaultServerHost,
		ServerPort:       DefaultServerPort,
		APIKey:           GetEnvString("THREATFEED_API_KEY", ""),
		WorkerCount:      DefaultWorkerCount,
		Interval:         time.Duration(DefaultInterval) * time.Minute,
		SourceConfidence: GetEnvFloat("THREATFEED_SOURCE_CONFIDENCE", DefaultSourceConfidence),
		GenerationURL:    GetEnvString("THREATFEED_GENERATION_URL", DefaultGenerationURL),
		GenerationModel:  GetEnvString("THREATFEED_GENERATION_MODEL", DefaultGenerationModel),
		GenerationAPIKey: GetEnvString("OPENROUTER_API_KEY", ""),
		SummaryCacheTTL:  time.Duration(DefaultSummaryCacheTTLHours) * time.Hour,
		LogLevel:         logLevel,
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

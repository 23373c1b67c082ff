package config

// Constants defining default values for application configuration
const (
	DefaultFeedsCSVPath = "./feeds.csv"
	DefaultDBPath       = "./threatfeed.db"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultWorkerCount = 0  // 0 means use runtime.NumCPU()
	DefaultInterval    = 60 // Minutes between ingestion runs

	// Confidence attributed to indicators extracted from feed content.
	DefaultSourceConfidence = 0.7

	DefaultGenerationURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultGenerationModel = "openai/gpt-3.5-turbo"

	DefaultSummaryCacheTTLHours = 24

	DefaultLogLevel = "debug"
)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"threatwatch/threatfeed/internal/config"
	"threatwatch/threatfeed/internal/database"
	"threatwatch/threatfeed/internal/feeds"
	"threatwatch/threatfeed/internal/ingest"
	"threatwatch/threatfeed/internal/ioc"
	"threatwatch/threatfeed/internal/seed"
	"threatwatch/threatfeed/internal/server"
	"threatwatch/threatfeed/internal/server/api"
	"threatwatch/threatfeed/internal/store"
	"threatwatch/threatfeed/internal/summarize"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func main() {
	cfg := config.DefaultConfig()

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("THREATFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: THREATFEED_DB_PATH)")
	var seedCSVPath string
	seedCmd.StringVar(&seedCSVPath, "csv", config.GetEnvString("THREATFEED_CSV_PATH", ""),
		"Optional CSV file with name,url[,active] columns; omit to use the built-in feed list (env: THREATFEED_CSV_PATH)")
	var seedReset bool
	seedCmd.BoolVar(&seedReset, "reset", false,
		"Delete the existing database file before seeding")
	var seedLogLevelStr string
	seedCmd.StringVar(&seedLogLevelStr, "log-level", config.GetEnvString("THREATFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: THREATFEED_LOG_LEVEL)")

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("THREATFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: THREATFEED_DB_PATH)")
	var intervalMinutes int
	startCmd.IntVar(&intervalMinutes, "interval", config.GetEnvInt("THREATFEED_INTERVAL", config.DefaultInterval),
		"Interval in minutes between ingestion runs, 0 for one-shot mode (env: THREATFEED_INTERVAL)")
	startCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("THREATFEED_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of worker goroutines for feed fetching, 0 for CPU count (env: THREATFEED_WORKER_COUNT)")
	var startLogLevelStr string
	startCmd.StringVar(&startLogLevelStr, "log-level", config.GetEnvString("THREATFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: THREATFEED_LOG_LEVEL)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", config.GetEnvString("THREATFEED_DB_PATH", config.DefaultDBPath),
		"Path to the SQLite database file (env: THREATFEED_DB_PATH)")
	serverCmd.StringVar(&cfg.ServerHost, "host", config.GetEnvString("THREATFEED_HOST", config.DefaultServerHost),
		"Host to bind the server to (env: THREATFEED_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", config.GetEnvInt("THREATFEED_PORT", config.DefaultServerPort),
		"Port to listen on (env: THREATFEED_PORT)")
	serverCmd.IntVar(&cfg.WorkerCount, "workers", config.GetEnvInt("THREATFEED_WORKER_COUNT", config.DefaultWorkerCount),
		"Number of worker goroutines used by manual refreshes, 0 for CPU count (env: THREATFEED_WORKER_COUNT)")
	var serverLogLevelStr string
	serverCmd.StringVar(&serverLogLevelStr, "log-level", config.GetEnvString("THREATFEED_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: THREATFEED_LOG_LEVEL)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		seedCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, seedLogLevelStr)

		if err := runSeed(cfg, seedCSVPath, seedReset); err != nil {
			log.Error().Err(err).Msg("Seed failed")
			os.Exit(1)
		}

	case "start":
		startCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, startLogLevelStr)
		cfg.Interval = time.Duration(intervalMinutes) * time.Minute

		if err := runStart(cfg); err != nil {
			log.Error().Err(err).Msg("Ingestion failed")
			os.Exit(1)
		}

	case "server":
		serverCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, serverLogLevelStr)

		if err := runServer(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		printUsage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: threatfeed [command] [options]")
	fmt.Println("Commands: seed, start, server")
	fmt.Println("\nFor command-specific options, use: threatfeed [command] -h")
}

func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

// runSeed populates the feeds table from a CSV file or the built-in list.
func runSeed(cfg *config.Config, csvPath string, reset bool) error {
	if reset {
		if err := database.DeleteDB(cfg.DBPath); err != nil {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
		log.Info().Str("path", cfg.DBPath).Msg("Deleted existing database")
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, ioc.NewEnricher())
	seeder := seed.NewSeeder(st)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if csvPath != "" {
		_, err = seeder.ImportCSV(ctx, csvPath)
		return err
	}
	_, err = seeder.SeedDefaults(ctx)
	return err
}

// runStart executes ingestion either once or periodically.
func runStart(cfg *config.Config) error {
	if cfg.Interval <= 0 {
		log.Info().Msg("Running in one-shot mode")
	} else {
		log.Info().Int64("interval_minutes", int64(cfg.Interval.Minutes())).Msg("Running in periodic mode")
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, ioc.NewEnricher())
	orchestrator := ingest.NewOrchestrator(st, feeds.NewHTTPFetcher(), cfg.WorkerCount, cfg.SourceConfidence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	if err := runIngestionCycle(ctx, orchestrator); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Ingestion cycle canceled by shutdown signal")
			return nil
		}
		return err
	}

	if cfg.Interval == 0 {
		log.Info().Msg("One-shot ingestion completed, exiting")
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", cfg.Interval).
		Time("next_run", time.Now().Add(cfg.Interval)).
		Msg("Waiting for next ingestion cycle")

	for {
		select {
		case <-ticker.C:
			log.Info().Msg("Starting scheduled ingestion cycle")

			if err := runIngestionCycle(ctx, orchestrator); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info().Msg("Ingestion cycle canceled by shutdown signal")
					return nil
				}
				log.Error().Err(err).Msg("Ingestion cycle failed")
				// Keep going; a single bad cycle should not stop the scheduler
			}

			log.Info().
				Time("next_run", time.Now().Add(cfg.Interval)).
				Msg("Waiting for next ingestion cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic ingestion")
			return nil
		}
	}
}

func runIngestionCycle(ctx context.Context, orchestrator *ingest.Orchestrator) error {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	log.Info().Int("worker_count", orchestrator.WorkerCount).Msg("Starting ingestion cycle")

	result := orchestrator.Run(runCtx)
	if !result.Success {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ingestion error: %s", result.Error)
	}
	return nil
}

// runServer starts the HTTP API. The server opens the database read-write
// because manual refreshes and summarization write through it.
func runServer(cfg *config.Config) error {
	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, ioc.NewEnricher())
	orchestrator := ingest.NewOrchestrator(st, feeds.NewHTTPFetcher(), cfg.WorkerCount, cfg.SourceConfidence)
	summarizer := summarize.NewSummarizer(cfg.GenerationURL, cfg.GenerationModel, cfg.GenerationAPIKey, cfg.SummaryCacheTTL)
	service := summarize.NewService(st, summarizer)
	handler := api.NewHandler(st, orchestrator, service)

	return server.RunServer(handler, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}

func openDB(cfg *config.Config, readOnly bool) (*database.DB, error) {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = readOnly

	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

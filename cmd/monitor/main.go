package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scanwatch/scanwatch/internal/alerts"
	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/config"
	"github.com/scanwatch/scanwatch/internal/feed"
	"github.com/scanwatch/scanwatch/internal/pipeline"
	"github.com/scanwatch/scanwatch/internal/storage/sqlite"
	"github.com/scanwatch/scanwatch/internal/subscribers"
	"github.com/scanwatch/scanwatch/internal/transcribe"
	"github.com/scanwatch/scanwatch/internal/websocket"
	"github.com/scanwatch/scanwatch/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting scanner feed monitor",
		logger.String("version", Version),
		logger.String("environment", cfg.Alerts.Environment),
		logger.String("feed_id", cfg.Feed.FeedID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Generate today's database filename
	today := time.Now().UTC().Format("2006-01-02")
	dbFilename := fmt.Sprintf("scanwatch-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	log.Info("Using daily database", logger.String("path", dbPath))

	store, err := sqlite.NewStore(dbPath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// Create subscriber store
	subscriberStore, err := subscribers.NewStore(cfg.Subscribers.DataDir, cfg.Alerts.Environment, log)
	if err != nil {
		log.Error("Failed to create subscriber store", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Create alert senders and matcher
	emailSender := alerts.NewSMTPSender(cfg.Alerts, log)
	smsSender := alerts.NewTwilioSender(cfg.Alerts, log)
	matcher := alerts.NewMatcher(
		cfg.Alerts.Environment,
		time.Duration(cfg.Alerts.MaxEventAgeSecs)*time.Second,
		emailSender,
		smsSender,
		log,
	)

	// Create feed client and transcription gateway
	feedClient := feed.NewClient(cfg.Feed, cfg.Pipeline.AudioDir, log)
	gateway := transcribe.NewGateway(cfg.Transcription, cfg.Pipeline.TranscriptDir, log)

	// Create the backoff controller and sweep clock
	backoff := pipeline.NewController(
		time.Duration(cfg.Pipeline.MinBackoffSecs)*time.Second,
		time.Duration(cfg.Pipeline.MaxBackoffSecs)*time.Second,
		cfg.Pipeline.BackoffWindowSize,
		log,
	)

	clock, err := pipeline.NewClock(
		cfg.Pipeline.StartDay,
		time.Duration(cfg.Feed.SegmentDurationSecs)*time.Second,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("Failed to create sweep clock", logger.Error(err))
		os.Exit(1)
	}

	// Create the acquisition pipeline
	pipelineService := pipeline.NewService(
		feedClient,
		gateway,
		matcher,
		subscriberStore,
		backoff,
		clock,
		store,
		wsServer,
		cfg.Pipeline,
		cfg.Feed.SegmentDurationSecs,
		log,
	)
	if err := pipelineService.Start(ctx); err != nil {
		log.Error("Failed to start acquisition pipeline", logger.Error(err))
		os.Exit(1)
	}

	// Create the orphaned-audio reaper
	reaper := pipeline.NewReaper(
		cfg.Pipeline.AudioDir,
		cfg.Pipeline.TranscriptDir,
		time.Duration(cfg.Pipeline.ReaperIntervalSecs)*time.Second,
		log,
	)
	reaper.Start()

	// Create API router and HTTP server
	router := api.NewRouter(pipelineService, store, subscriberStore, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")

	// Cancel the main context first so an in-flight download's retry ladder
	// aborts instead of blocking Stop on the pipeline's WaitGroup.
	cancel()

	log.Info("Stopping acquisition pipeline...")
	pipelineService.Stop()
	log.Info("Acquisition pipeline stopped.")

	log.Info("Stopping reaper...")
	reaper.Stop()
	log.Info("Reaper stopped.")

	// Shutdown the HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	wsServer.Stop()

	log.Info("Monitor fully stopped")
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wangx-create/TRNNew/app/api"
	"github.com/Wangx-create/TRNNew/app/cfg"
	"github.com/Wangx-create/TRNNew/app/database"
	"github.com/Wangx-create/TRNNew/app/fetch"
	"github.com/Wangx-create/TRNNew/app/news"
	"github.com/Wangx-create/TRNNew/app/report"
	"github.com/Wangx-create/TRNNew/app/runner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration from environment variables and command-line flags
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	log.Printf("Starting TRNNew server (version %s)...", appCfg.Version)

	// Database connection
	log.Printf("Opening database at %s...", appCfg.DBPath)
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database ready (schema version %d, dirty: %v)", version, dirty)

	// Initialize repositories
	taskRepo := database.NewTaskRepository(db, appCfg.ExecutionRecords)
	historyRepo := database.NewHistoryRepository(db, appCfg.HistoryRuns)

	// Baseline snapshot store; bootstrap a default baseline on first start.
	// An unreadable existing file is left alone: it may be a stale override
	// from a crashed run, and repairing it is an operator decision.
	snapshotStore := news.NewSnapshotStore(appCfg.SnapshotPath)
	if !snapshotStore.Exists() {
		log.Printf("No baseline snapshot at %s, writing default", appCfg.SnapshotPath)
		if err := snapshotStore.Save(defaultBaseline()); err != nil {
			log.Fatal("Failed to write default baseline snapshot:", err)
		}
	} else if _, err := snapshotStore.Load(); err != nil {
		log.Printf("Warning: baseline snapshot at %s is unreadable: %v", appCfg.SnapshotPath, err)
		log.Printf("Warning: runs will fail until the snapshot is repaired or replaced via PUT /api/baseline")
	}

	// Initialize core components
	httpClient := &http.Client{Timeout: time.Duration(appCfg.FetchTimeout) * time.Second}
	fetcher := fetch.NewRegistry(httpClient, appCfg.HotlistAPIBase, appCfg.UserAgent,
		time.Duration(appCfg.FetchTimeout)*time.Second)

	taskRunner := runner.New(snapshotStore, fetcher, historyRepo, runner.Options{
		Rounds:        appCfg.FetchRounds,
		RoundInterval: time.Duration(appCfg.RoundInterval) * time.Second,
		Concurrency:   appCfg.FetchConcurrency,
	})

	renderer := report.NewRenderer(appCfg.OutputDir, appCfg.Version)

	// Initialize HTTP server
	log.Println("Initializing HTTP server...")
	apiHandler := api.NewHandler(taskRepo, historyRepo, taskRunner, renderer, appCfg.Version)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	// Create HTTP server with timeouts
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // run endpoints block for the full fetch window
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		log.Printf("API endpoints available:")
		log.Printf("  Health check:  http://localhost:%s/health", appCfg.Port)
		log.Printf("  Statistics:    http://localhost:%s/stats", appCfg.Port)

		if appCfg.APIAccessKey != "" {
			log.Printf("  Baseline:      http://localhost:%s/api/baseline (requires API key)", appCfg.Port)
			log.Printf("  Tasks:         http://localhost:%s/api/tasks (requires API key)", appCfg.Port)
			log.Printf("  Run task:      http://localhost:%s/api/tasks/<id>/run (POST, requires API key)", appCfg.Port)
			log.Printf("  Search:        http://localhost:%s/api/search (POST, requires API key)", appCfg.Port)
		} else {
			log.Printf("  API endpoints: DISABLED (API_ACCESS_KEY not set)")
		}

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("TRNNew server started successfully!")
	log.Println("Press Ctrl+C to shutdown gracefully...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	// Graceful shutdown
	log.Println("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	log.Println("TRNNew server shutdown complete")
}

// defaultBaseline is the snapshot written on first start so the service is
// usable before any baseline has been configured.
func defaultBaseline() news.Snapshot {
	return news.Snapshot{
		Groups: []news.KeywordGroup{
			{Label: "AI", Terms: []string{"AI", "人工智能"}, Expand: true},
		},
		Filters:   []string{},
		Platforms: []string{"weibo", "zhihu", "baidu"},
		Mode:      news.ModeCurrent,
	}
}

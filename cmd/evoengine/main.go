// evoengine runs the HTTP API, the task dispatcher, and the retention
// sweeper in a single process.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/evoengine/evoengine/pkg/api"
	"github.com/evoengine/evoengine/pkg/cache"
	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/database"
	"github.com/evoengine/evoengine/pkg/llmclient"
	"github.com/evoengine/evoengine/pkg/orchestrator"
	"github.com/evoengine/evoengine/pkg/retention"
	"github.com/evoengine/evoengine/pkg/store"
	"github.com/evoengine/evoengine/pkg/taskqueue"
	"github.com/evoengine/evoengine/pkg/workers"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	db := dbClient.DB()
	jobStore := store.New(db)
	queue := taskqueue.New(db)
	enricherCache := cache.New(db)
	llm := llmclient.New(cfg.LLM)

	variator := &workers.Variator{Store: jobStore, LLM: llm}
	enricher := &workers.Enricher{Store: jobStore, LLM: llm, Cache: enricherCache}
	ranker := &workers.Ranker{Store: jobStore}
	orch := &orchestrator.Orchestrator{Store: jobStore, Queue: queue, Cfg: cfg.Queue}

	server := api.NewServer(cfg, dbClient, jobStore, queue, orch, variator, enricher, ranker)

	dispatcher := taskqueue.NewDispatcher(queue, cfg.Queue)
	dispatcher.Start(ctx)

	sweeper := retention.New(cfg.Retention, cfg.Queue, jobStore, queue)
	sweeper.Start(ctx)

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.Server.Port)
		if err := server.Start(":" + cfg.Server.Port); err != nil {
			slog.Error("HTTP server exited", "error", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	dispatcher.Stop()
	sweeper.Stop()
}

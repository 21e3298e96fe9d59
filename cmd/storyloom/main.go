// Storyloom server — provides the HTTP API, manages queue workers, and
// orchestrates story generation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/storyloom/storyloom/pkg/api"
	"github.com/storyloom/storyloom/pkg/broker"
	"github.com/storyloom/storyloom/pkg/cleanup"
	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/database"
	"github.com/storyloom/storyloom/pkg/dispatch"
	"github.com/storyloom/storyloom/pkg/metrics"
	"github.com/storyloom/storyloom/pkg/providers"
	"github.com/storyloom/storyloom/pkg/queue"
	"github.com/storyloom/storyloom/pkg/storage"
	"github.com/storyloom/storyloom/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()

	slog.Info("Starting storyloom",
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs pending migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Connect the Redis job broker
	rdb := broker.NewRedis(cfg.Redis)
	jobs := broker.NewClient(rdb, cfg.Queue)
	if err := jobs.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis broker", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobs.Close(); err != nil {
			slog.Error("Error closing broker connection", "error", err)
		}
	}()
	slog.Info("Connected to Redis broker", "addr", cfg.Redis.Addr, "queue", cfg.Queue.Name)

	// 4. Build the provider set (mock trio when providers.mock.enabled)
	providerSet, err := providers.New(cfg.Providers)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	slog.Info("Providers initialized",
		"text", providerSet.Text.Name(),
		"image", providerSet.Image.Name(),
		"audio", providerSet.Audio.Name(),
		"mock", cfg.MockEnabled())

	// 5. Build the artifact uploader. Without a storage endpoint (mock-only
	// deployments) artifacts go to an in-process store instead of blobs.
	var uploader storage.Uploader
	if cfg.Storage.Endpoint == "" {
		uploader = storage.NewMemory()
		slog.Warn("No storage endpoint configured, using in-memory artifact store")
	} else {
		uploader, err = storage.NewClient(cfg.Storage)
		if err != nil {
			slog.Error("Failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
		slog.Info("Blob storage initialized", "endpoint", cfg.Storage.Endpoint)
	}

	// 6. Repository and metrics
	stories := store.NewStories(dbClient.Pool())
	recorder := metrics.NewPrometheusRecorder()

	// 7. Start worker pool (before HTTP server)
	executor := queue.NewExecutor(stories, uploader, providerSet,
		providers.DefaultRetryPolicy(), cfg.Queue.SceneParallelism).
		WithMetrics(recorder)

	workerPool := queue.NewWorkerPool(podID, stories, jobs, cfg.Queue, executor).
		WithMetrics(recorder)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7a. Start retention cleanup (terminal stories, dead letters)
	cleanupService := cleanup.NewService(cfg.Retention, stories, jobs)
	cleanupService.Start(ctx)

	// 8. Create HTTP server
	dispatcher := dispatch.New(stories, jobs, cfg.Defaults)
	httpServer := api.NewServer(dispatcher, stories, workerPool, dbClient.Pool()).
		WithMetrics(recorder, recorder.Handler())

	// 9. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Storyloom started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.JobParallelism)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	// Stop the cleanup loop first; its work is cheap and restartable.
	cleanupService.Stop()

	// Stop worker pool so in-flight stories settle before the process goes
	// away; unfinished leases are reaped by another replica.
	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, in-flight stories will be redelivered")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// Command server runs the orchestration core: the Job API, the Job
// Scheduler's worker pools, the WebSocket Fanout, and the background
// retention loop, all sharing one Postgres-backed Job Store and one
// Redis-backed Status Channel.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deckpipe/deckpipe/internal/api"
	"github.com/deckpipe/deckpipe/internal/artifact"
	"github.com/deckpipe/deckpipe/internal/cleanup"
	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/database"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/modelpool"
	"github.com/deckpipe/deckpipe/internal/mutate"
	"github.com/deckpipe/deckpipe/internal/queue"
	"github.com/deckpipe/deckpipe/internal/redisx"
	"github.com/deckpipe/deckpipe/internal/stage"
	"github.com/deckpipe/deckpipe/internal/statuschan"
	"github.com/deckpipe/deckpipe/internal/store"
	"github.com/deckpipe/deckpipe/internal/version"
	"github.com/deckpipe/deckpipe/internal/wsfanout"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "./config/config.yaml"), "path to the YAML config file")
	envPath := flag.String("env-file", getEnv("ENV_FILE", "./config/.env"), "path to a .env file loaded before config")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("no .env file loaded", "path", *envPath, "error", err)
	}

	slog.Info("starting", "app", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("closing database client", "error", err)
		}
	}()
	slog.Info("connected to database")

	rdb, err := redisx.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("closing redis client", "error", err)
		}
	}()
	slog.Info("connected to redis")

	jobStore := store.New(dbClient.DB())
	status := statuschan.New(rdb)

	cache, err := artifact.New(cfg.Storage.ArtifactCacheRoot)
	if err != nil {
		slog.Error("opening artifact cache", "error", err)
		os.Exit(1)
	}

	activeConfigRegistry := config.NewActiveConfigRegistry(jobStore)
	modelKindPool := make(map[config.ModelKind]config.ModelKindConfig, len(cfg.ModelPool))
	for kind, kindCfg := range cfg.ModelPool {
		modelKindPool[config.ModelKind(kind)] = kindCfg
	}
	pool := modelpool.NewPool(activeConfigRegistry, modelKindPool)
	activeConfigRegistry.RegisterInvalidator(pool)

	workRoot := getEnv("WORK_ROOT", "./data/work")
	newClient := func() mutate.Client { return mutate.Unconfigured{} }
	engine := stage.New(cache, status, jobStore, pool, newClient, cfg.Validation, cfg.Storage.OutputRoot, workRoot)
	executor := stage.NewExecutor(engine, cfg.Storage.OutputRoot)

	onJobDone := func(ctx context.Context, job *models.Job, result *queue.ExecutionResult) {
		slog.Info("job finished", "job_id", job.ID, "kind", job.Kind, "output_ref", result.OutputRef)
	}
	scheduler := queue.NewScheduler(jobStore, jobStore, status, onJobDone)
	for name, queueCfg := range cfg.Queues {
		scheduler.AddQueue(models.JobKind(name), queueCfg, executor)
	}

	cleanupSvc := cleanup.NewService(cfg.Retention, jobStore, cache)
	wsManager := wsfanout.New(status, 10*time.Second, 30*time.Second)
	apiServer := api.NewServer(cfg.Server, jobStore, scheduler, dbClient, status, wsManager)

	scheduler.Start(ctx)
	cleanupSvc.Start(ctx)

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Addr)
		if err := apiServer.Start(cfg.Server.Addr); err != nil {
			slog.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}

	cleanupSvc.Stop()
	scheduler.Stop()
	slog.Info("shutdown complete")
}

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/db"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/temporalx/temporalworker"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Worker   *temporalworker.Runner

	metrics      *observability.Metrics
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "clinvault-api",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "1.0.0", log),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(theDB, log, cfg, reposet, clientset)

	var workerRunner *temporalworker.Runner
	if clientset.Temporal != nil && utils.GetEnvAsBool("RUN_WORKER", true, log) {
		workerRunner, err = temporalworker.NewRunner(log, clientset.Temporal, serviceset.IngestDirect, clientset.Blobs)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init temporal worker: %w", err)
		}
	}

	handlerset := wireHandlers(log, serviceset, clientset, metrics)
	router := wireRouter(log, metrics, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Worker:       workerRunner,
		metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background pieces: the metrics endpoint, the Redis
// counter collector, and the Temporal ingest worker when configured. The
// HTTP listener itself starts in Run.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.metrics != nil {
		a.metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.metrics.StartRedisCollector(ctx, a.Log, os.Getenv("REDIS_ADDR"))
	}

	if a.Worker != nil {
		go func() {
			if err := a.Worker.Start(ctx); err != nil {
				a.Log.Error("Temporal worker failed to start", "error", err)
			}
		}()
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
		a.otelShutdown = nil
	}
	if a.Clients.Temporal != nil {
		a.Clients.Temporal.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

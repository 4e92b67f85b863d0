// Command coordinator runs the LRA coordinator's HTTP API, end-phase
// driver pool, and recovery scanner in a single process.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/infrastructure/metrics"
	"github.com/sagaflow/lra-coordinator/infrastructure/middleware"
	"github.com/sagaflow/lra-coordinator/infrastructure/resilience"
	"github.com/sagaflow/lra-coordinator/internal/api"
	"github.com/sagaflow/lra-coordinator/internal/lra"
	"github.com/sagaflow/lra-coordinator/internal/lra/audit"
	"github.com/sagaflow/lra-coordinator/internal/lra/store"
)

// settings is bound from the environment via envdecode, with .env loaded
// first in development for convenience.
type settings struct {
	Port            int    `env:"PORT,default=8080"`
	CoordinatorBase string `env:"COORDINATOR_BASE_URL,default=http://localhost:8080/lra-coordinator"`
	APIVersion      string `env:"LRA_API_VERSION,default=1.0"`
	StoreKind       string `env:"LRA_STORE,default=memory"` // memory | file | postgres
	StoreDir        string `env:"LRA_STORE_DIR,default=./data/lra"`
	DatabaseURL     string `env:"DATABASE_URL"`
	RecoveryCron    string `env:"LRA_RECOVERY_CRON,default=@every 30s"`
	RateLimit       int    `env:"LRA_RATE_LIMIT,default=100"`
	RateBurst       int    `env:"LRA_RATE_BURST,default=20"`
	BodyLimitBytes  int64  `env:"LRA_BODY_LIMIT_BYTES,default=1048576"`
}

func main() {
	_ = godotenv.Load()

	var cfg settings
	if err := envdecode.Decode(&cfg); err != nil {
		logging.NewFromEnv("coordinator").WithError(err).Fatal("decode configuration")
	}

	logger := logging.NewFromEnv("coordinator")
	auditLogger := audit.New(os.Stdout)
	m := metrics.Init("lra-coordinator")

	st, err := buildStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("initialize object store")
	}

	engineCfg := lra.DefaultConfig(cfg.CoordinatorBase)
	engineCfg.APIVersion = cfg.APIVersion
	engineCfg.DriverRetry = resilience.DefaultRetryConfig()

	engine := lra.NewEngine(engineCfg, st, logger, auditLogger)
	if err := engine.LoadFromStore(context.Background()); err != nil {
		logger.WithError(err).Error("load active LRAs from store")
	}

	recovery, err := lra.NewRecovery(engine, cfg.RecoveryCron, logger)
	if err != nil {
		logger.WithError(err).Fatal("initialize recovery scanner")
	}
	recovery.Start()
	defer recovery.Stop()

	router := api.NewRouter(engine, recovery, logger, m, api.Options{
		CoordinatorBase: cfg.CoordinatorBase,
		APIVersion:      cfg.APIVersion,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		BodyLimitBytes:  cfg.BodyLimitBytes,
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.HandleFunc("/health", middleware.NewHealthChecker("1.0.0").Handler())
	mux.HandleFunc("/live", middleware.LivenessHandler())

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 15*time.Second)
	shutdown.OnShutdown(func() {
		logger.Info(context.Background(), "shutting down recovery scanner", nil)
		recovery.Stop()
	})
	shutdown.ListenForSignals()

	logger.WithFields(map[string]interface{}{"port": cfg.Port, "store": cfg.StoreKind}).Info("coordinator listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("server failed")
	}
	shutdown.Wait()
}

func buildStore(cfg settings) (store.Store, error) {
	switch cfg.StoreKind {
	case "file":
		return store.NewFile(cfg.StoreDir)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.MigratePostgres(db); err != nil {
			return nil, err
		}
		return store.NewPostgres(db), nil
	default:
		return store.NewMemory(), nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/offsetx/carbon-tracker/internal/auth"
	"github.com/offsetx/carbon-tracker/internal/config"
	"github.com/offsetx/carbon-tracker/internal/logging"
	"github.com/offsetx/carbon-tracker/internal/metrics"
	"github.com/offsetx/carbon-tracker/internal/server"
	"github.com/offsetx/carbon-tracker/internal/store"
	"github.com/offsetx/carbon-tracker/internal/tracker"
)

// sessionSweepInterval is how often the memory session store evicts expired
// sessions.
const sessionSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).WithError(err).Error("load config")
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "server"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// run wires the stores and serves until ctx is cancelled. Connections opened
// here are closed on every return path.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// ── Credential store ─────────────────────────────────────
	var users server.Store
	switch cfg.StoreDriver {
	case config.DriverMongo:
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		users = mongoStore

	case config.DriverPostgres:
		pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pgPool.Close()
		pgStore := store.NewPostgresStore(pgPool)
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
		users = pgStore

	default:
		log.Warn("using in-memory store; data is lost on restart")
		users = store.NewMemoryStore()
	}
	log.Info("credential store ready", "driver", cfg.StoreDriver)

	// ── Sessions ─────────────────────────────────────────────
	var sessions auth.Sessions
	if cfg.SessionDriver == config.DriverRedis {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer rdb.Close()
		sessions = auth.NewSessionStore(rdb, cfg.SessionTTL)
	} else {
		mem := auth.NewMemorySessionStore(cfg.SessionTTL)
		go mem.Run(ctx, sessionSweepInterval)
		sessions = mem
	}
	log.Info("session store ready", "driver", cfg.SessionDriver, "ttl", cfg.SessionTTL)

	// ── Share reports (MinIO) ────────────────────────────────
	var reports tracker.ReportStore
	if cfg.SharingEnabled() {
		minioStore, err := store.NewMinioStore(ctx, store.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio connect: %w", err)
		}
		reports = minioStore
	} else {
		log.Info("MINIO_ENDPOINT not set; share reports disabled")
	}

	// ── Router ───────────────────────────────────────────────
	handler := server.NewRouter(server.Deps{
		Store:    users,
		Sessions: sessions,
		Reports:  reports,
		Cookie: auth.CookieConfig{
			Name:   cfg.SessionCookie,
			TTL:    cfg.SessionTTL,
			Secure: cfg.CookieSecure,
		},
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
		Metrics:     metrics.New(cfg.MetricsNamespace),
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dniswara/wanotify/internal/api"
	"github.com/dniswara/wanotify/internal/cache"
	"github.com/dniswara/wanotify/internal/config"
	"github.com/dniswara/wanotify/internal/engine"
	"github.com/dniswara/wanotify/internal/gateway"
	"github.com/dniswara/wanotify/internal/queue"
	"github.com/dniswara/wanotify/internal/store"
	"github.com/dniswara/wanotify/internal/template"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("wanotify starting",
		"addr", cfg.Server.Address,
		"drainInterval", cfg.Queue.DrainInterval,
		"promoteInterval", cfg.Queue.PromoteInterval,
		"batch", cfg.Queue.BatchSize,
		"redis", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatalf("opening postgres: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("postgres unreachable: %v", err)
	}

	messageStore := store.NewPostgresMessageStore(db)
	if err := messageStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensuring schema: %v", err)
	}

	var msgCache cache.MessageCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, sent-record caching disabled", "error", err)
		} else {
			msgCache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
		}
	}

	settings := config.NewSettings(nil)
	session := gateway.NewSessionClient(settings.Current().Interactive.SessionURL)

	router := gateway.NewRouter(
		settings,
		gateway.NewInteractive(settings, session),
		gateway.NewCloudAPI(settings),
		gateway.NewRelay(settings),
		cfg.Queue.BulkDelay,
	)

	templates := template.NewStore()
	buckets := queue.New()

	eng, err := engine.New(cfg.Queue, buckets, router, messageStore, templates, msgCache)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	eng.Start()
	defer eng.Stop()

	handler := api.NewHandler(eng, messageStore, templates)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	slog.Info("wanotify stopped")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

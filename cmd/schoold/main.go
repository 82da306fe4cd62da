package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/audit"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/schoolapi"
	"rollcall/internal/schoolstore"
	"rollcall/internal/store"
)

// schoold is the reference school backend: teachers, class rosters and the
// attendance collection on Postgres.
func main() {
	logger := slog.Make(sloghuman.Sink(os.Stderr)).Named("schoold")
	cfg := config.Load()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(ctx, "school backend failed", slog.Error(err))
	}
}

func run(ctx context.Context, cfg config.App, logger slog.Logger) error {
	db, err := store.OpenDB(ctx, cfg.DatabaseURL, store.DefaultPool)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := schoolstore.NewRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	if cfg.SeedDemo {
		if err := repo.SeedDemo(ctx); err != nil {
			return err
		}
		logger.Info(ctx, "demo data seeded")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	// With the memory backend nobody else can read the queue, so the audit
	// consumer runs in this process.
	var (
		events   queue.Queue
		auditLog *audit.Consumer
	)
	switch cfg.QueueBackend {
	case "memory":
		mem := queue.NewInMemory(64)
		events = mem
		auditLog = audit.New(mem, logger)
	case "redis":
		if redisClient == nil {
			return errors.New("QUEUE_BACKEND=redis needs REDIS_ADDR")
		}
		events = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	default:
		logger.Warn(ctx, "batch events disabled", slog.F("queue_backend", cfg.QueueBackend))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy})
	})

	api := r.Group("/", schoolapi.RequireToken(cfg.SchoolAPIToken))
	schoolapi.New(repo, events, logger).Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.SchoolHTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if auditLog == nil {
		return serve(ctx, srv, logger)
	}
	return serveWith(ctx, srv, auditLog, logger)
}

type runner interface {
	Run(ctx context.Context) error
}

// serveWith runs the server next to bg and returns once both have stopped.
func serveWith(ctx context.Context, srv *http.Server, bg runner, logger slog.Logger) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := bg.Run(egCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		return serve(egCtx, srv, logger)
	})
	return eg.Wait()
}

func serve(ctx context.Context, srv *http.Server, logger slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", slog.F("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

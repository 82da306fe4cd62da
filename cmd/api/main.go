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

	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/console"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/roster"
	"rollcall/internal/school"
	"rollcall/internal/store"
)

func main() {
	logger := slog.Make(sloghuman.Sink(os.Stderr)).Named("api")
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runHTTP(ctx, cfg, logger); err != nil {
		logger.Fatal(ctx, "http server failed", slog.Error(err))
	}
}

func runHTTP(ctx context.Context, cfg config.App, logger slog.Logger) error {
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if redisClient != nil && !redisClient.Healthy(ctx) {
		logger.Warn(ctx, "redis not reachable; rosters are read from the school backend", slog.F("addr", cfg.RedisAddr))
	}

	schoolClient := school.New(cfg.SchoolAPIURL, cfg.SchoolAPIToken, cfg.SchoolAPITimeout)
	rosters := roster.New(schoolClient, redisClient.Raw(), cfg.RosterCacheTTL, logger)
	sessions := console.NewRegistry(auth.ContextIdentity{}, console.Backend{
		Teachers: schoolClient,
		Rosters:  rosters,
		Records:  schoolClient,
	}, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(console.RequestID())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		schoolErr := schoolClient.Health(reqCtx)
		redisHealthy := redisClient.Healthy(reqCtx)
		status := http.StatusOK
		if schoolErr != nil {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":   "ok",
			"school":   schoolErr == nil,
			"redis":    redisHealthy,
			"sessions": sessions.Len(),
		})
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.SubjectOrIP(auth.ClaimsKey))
	v1 := r.Group("/v1",
		auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer),
		auth.RequireRole(cfg.TeacherRole),
		limiter.GinMiddleware(),
	)
	console.NewAPI(sessions, logger).Register(v1)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SchoolAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server", slog.F("addr", srv.Addr), slog.F("school_api", cfg.SchoolAPIURL))
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
	logger.Info(context.Background(), "shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info(context.Background(), "server exited")
	return nil
}

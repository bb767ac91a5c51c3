package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-alert-automation/internal/api"
	"github.com/mr1hm/go-alert-automation/internal/app"
	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/logging"
	"github.com/mr1hm/go-alert-automation/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Auth.JWTSecret == "" {
		logging.Fatalf("JWT_SECRET must be set")
	}

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	a, err := app.New(cfg, metrics.NewMetrics())
	if err != nil {
		logging.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Service.Start(ctx)

	var wg sync.WaitGroup
	if cfg.Monitor.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler.Run(ctx)
		}()
	} else {
		slog.Warn("monitoring scheduler disabled")
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.MetricsMiddleware(a.Metrics))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimit))

	handler := api.NewHandler(a.DB, a.Service, a.Scheduler, a.Stream, []byte(cfg.Auth.JWTSecret))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// End open SSE streams before the server waits on them.
	a.Stream.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Queued fanouts finish before the workers lose their context.
	a.Service.Stop()
	cancel()
	wg.Wait()

	slog.Info("shutdown complete")
}

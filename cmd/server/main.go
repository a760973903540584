package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trialqc/internal/api"
	"trialqc/internal/bus"
	"trialqc/internal/cache"
	"trialqc/internal/config"
	"trialqc/internal/dupes"
	"trialqc/internal/query"
	"trialqc/internal/reconcile"
	"trialqc/internal/tool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	port := getenv("PORT", "8080")
	configPath := getenv("CONFIG_PATH", "")
	redisAddr := getenv("REDIS_ADDR", "")
	redisPassword := getenv("REDIS_PASSWORD", "")
	redisDB := getenvInt("REDIS_DB", 0)
	natsURL := getenv("NATS_URL", "")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}

	var cacheManager *cache.Manager
	if redisAddr != "" {
		manager, err := cache.New(redisAddr, redisPassword, redisDB, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer manager.Close()
		cacheManager = manager
	}

	var publisher *bus.Publisher
	if natsURL != "" {
		p, err := bus.NewPublisher(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	}

	registry := tool.NewRegistry()
	registry.Register("query_generator", query.Tool(cfg.SeverityLevels, cfg.AutoCloseRules))
	registry.Register("duplicate_subject_detector", dupes.Tool())
	registry.Register("drug_accountability_reconciler", reconcile.Tool())

	handler := &api.Handler{
		Registry: registry,
		Cache:    cacheManager,
		Bus:      publisher,
		Log:      logger,
		CacheTTL: time.Duration(cfg.CacheTTL) * time.Second,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("trialqc listening", slog.String("port", port), slog.Any("tools", registry.Names()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return fallback
}

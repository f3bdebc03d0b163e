package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/amazon-offer-scraper/internal/api"
	"github.com/maltedev/amazon-offer-scraper/internal/cache"
	"github.com/maltedev/amazon-offer-scraper/internal/config"
	"github.com/maltedev/amazon-offer-scraper/internal/database"
	"github.com/maltedev/amazon-offer-scraper/internal/fetcher"
	"github.com/maltedev/amazon-offer-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
	"github.com/maltedev/amazon-offer-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	limiter := ratelimit.New(cfg.Scraper.MaxConcurrency, cfg.Scraper.Cooldown)
	f := fetcher.New(limiter, fetcher.Options{
		Timeout:   cfg.Scraper.RequestTimeout,
		UserAgent: cfg.Scraper.UserAgent,
	}, log)
	amazon := scraper.NewAmazonAPI(f, cfg.Scraper.BaseURL, log)

	productCache := cache.New(redisClient, cfg.Redis.CacheTTL, log)
	handlers := api.NewHandlers(amazon, db, productCache, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"max_concurrency", cfg.Scraper.MaxConcurrency,
		"cooldown", cfg.Scraper.Cooldown)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

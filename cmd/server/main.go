package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jw6ventures/openday/internal/auth"
	"github.com/jw6ventures/openday/internal/config"
	"github.com/jw6ventures/openday/internal/holiday"
	httpserver "github.com/jw6ventures/openday/internal/http"
	"github.com/jw6ventures/openday/internal/store"
	"github.com/jw6ventures/openday/internal/store/postgres"
	"github.com/jw6ventures/openday/internal/store/sqlite"
)

func main() {
	log.Println("Starting OpenDay server...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		stor, pool, err := postgres.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("failed to open postgres store: %v", err)
		}
		defer pool.Close()
		st = stor
	case config.DriverSQLite:
		stor, db, err := sqlite.Open(ctx, cfg.DB.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		defer db.Close()
		st = stor
	default:
		log.Fatalf("unsupported db driver %q", cfg.DB.Driver)
	}

	sessions := auth.NewSessionManager(cfg)
	resolver := auth.NewResolver(cfg, st)

	var holidays holiday.Provider
	if cfg.Holiday.BaseURL != "" {
		cache := holiday.NewCache(holiday.NewHTTPProvider(cfg.Holiday.BaseURL, cfg.Holiday.Country), 24*time.Hour)
		holidays = cache

		// Fill the cache in the background; a failed warmup is not fatal,
		// the first request fills it instead.
		go func() {
			if err := cache.Warm(ctx, cfg.Window.Year); err != nil {
				log.Printf("[WARN] holiday warmup failed: %v", err)
			}
		}()

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Holiday.RefreshSpec, func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := cache.Warm(refreshCtx, cfg.Window.Year); err != nil {
				log.Printf("[WARN] scheduled holiday refresh failed: %v", err)
			}
		}); err != nil {
			log.Fatalf("invalid APP_HOLIDAY_REFRESH spec %q: %v", cfg.Holiday.RefreshSpec, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	r := httpserver.NewRouter(cfg, st, resolver, sessions, holidays)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

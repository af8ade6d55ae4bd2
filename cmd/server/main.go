package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/business-ratings/internal/avgcache"
	"github.com/Clark-Hu/business-ratings/internal/config"
	httpserver "github.com/Clark-Hu/business-ratings/internal/http"
	"github.com/Clark-Hu/business-ratings/internal/repository"
	"github.com/Clark-Hu/business-ratings/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[ratings-api] ", log.LstdFlags|log.Lshortfile)

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	if cfg.DBAutoMigrate {
		if err := st.Migrate(dbCtx); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
	}

	averages := avgcache.New(time.Duration(cfg.AvgCacheTTLSecs)*time.Second, uint64(cfg.AvgCacheCapacity))
	repo := repository.New(st)
	server := httpserver.New(cfg, st, repo, averages, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		averages.Run(gctx)
		return nil
	})
	g.Go(func() error {
		err := server.Start(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if err == nil {
			// Listener closed without a cancellation; stop the rest of the group.
			return http.ErrServerClosed
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("graceful shutdown error: %v", err)
	}
}

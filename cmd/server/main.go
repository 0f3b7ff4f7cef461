package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/card-duel-backend/internal/auth"
	"github.com/DoyleJ11/card-duel-backend/internal/config"
	"github.com/DoyleJ11/card-duel-backend/internal/httpapi"
	"github.com/DoyleJ11/card-duel-backend/internal/hub"
	"github.com/DoyleJ11/card-duel-backend/internal/logging"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/internal/store/memory"
	"github.com/DoyleJ11/card-duel-backend/internal/store/postgres"
	"github.com/DoyleJ11/card-duel-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, closeStore, err := openStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	h := hub.NewHub(ctx, hub.Config{
		Rules:          cfg.Rules,
		Accounts:       accounts,
		Verifier:       tokens,
		StartingTokens: cfg.StartingTokens,
		Log:            log.Named("hub"),
	})

	var opts ws.Options
	if cfg.LogDev {
		opts.OriginPatterns = []string{"localhost:*", "127.0.0.1:*"}
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, log, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("postgres", cfg.DatabaseURL != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Post(hub.ShutdownHub{})
		<-h.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, dsn string, log *zap.Logger) (store.Accounts, func() error, error) {
	if strings.TrimSpace(dsn) == "" {
		log.Warn("DATABASE_URL not set, using in-memory accounts")
		return memory.New(), func() error { return nil }, nil
	}
	pg, err := postgres.Open(ctx, dsn, log.Named("postgres"))
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, pg.Close, nil
}

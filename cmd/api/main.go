package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/config"
	"github.com/atharvakonge/finance/internal/db"
	"github.com/atharvakonge/finance/internal/handlers"
	"github.com/atharvakonge/finance/internal/logger"
	"github.com/atharvakonge/finance/internal/quote"
	"github.com/atharvakonge/finance/internal/repository"
	"github.com/atharvakonge/finance/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err = run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	logr.Info("config loaded",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.Addr()),
		zap.String("api_key", config.Mask(cfg.APIKey)),
		zap.String("quote_api_url", cfg.QuoteAPIURL),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Int("workers", cfg.NumWorkers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, logr)
	if err != nil {
		return err
	}
	defer db.Close(conn, logr)

	if err = db.Migrate(conn, logr); err != nil {
		return err
	}
	repo := repository.New(conn)

	cache, closeCache, err := newQuoteCache(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeCache()
	quotes := quote.NewService(
		quote.NewClient(cfg.QuoteAPIURL, cfg.APIKey, cfg.QuoteTimeout),
		cache, cfg.QuoteCacheTTL, logr.Named("quote"))

	sessions, err := session.NewManager(session.Options{
		Dir:    cfg.SessionDir,
		Key:    []byte(cfg.SessionKey),
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.IsProduction(),
	})
	if err != nil {
		return err
	}

	processor := handlers.NewTradeProcessor(repo, cfg.NumWorkers, logr.Named("trades"))
	processor.Start()
	defer processor.Stop()

	h := handlers.New(handlers.Options{
		Users:          repo,
		Trades:         repo,
		Quotes:         quotes,
		Trader:         processor,
		Sessions:       sessions,
		Log:            logr,
		StartingCash:   cfg.StartingCash,
		StreamInterval: cfg.QuoteStreamInterval,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(h.Close)

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newQuoteCache picks Redis when REDIS_URL is set, memory otherwise.
func newQuoteCache(ctx context.Context, cfg *config.Config, logr *zap.Logger) (quote.Cache, func(), error) {
	if cfg.RedisURL == "" {
		mem := quote.NewMemoryCache(time.Minute)
		return mem, func() { _ = mem.Close() }, nil
	}

	rc, err := quote.NewRedisCache(cfg.RedisURL, "finance:quote:")
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = rc.Ping(pingCtx); err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	logr.Info("using redis quote cache")
	return rc, func() { _ = rc.Close() }, nil
}

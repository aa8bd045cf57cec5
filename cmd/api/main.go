package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"outcomes/auth"
	"outcomes/config"
	"outcomes/db"
	"outcomes/logger"
	"outcomes/outbox"
	"outcomes/outcome"
)

func main() {
	os.Exit(start())
}

// start returns the process exit code. Deferred cleanup, including the
// logger flush, runs before main exits.
func start() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("outcomes api stopped", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	outcomeService := outcome.NewService(pool, outcome.NewRepository(pool), outbox.NewWriter(), log)

	var tokens *auth.Service
	if cfg.AuthEnabled() {
		tokens = auth.NewService(cfg.TokenSecret)
	}

	var fwd *outbox.Forwarder
	if cfg.ForwarderEnabled() {
		pub, err := outbox.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisStream)
		if err != nil {
			return err
		}
		defer pub.Close()

		fwd = outbox.NewForwarder(outbox.NewStore(pool), pub, log, outbox.ForwarderOptions{
			Interval:    cfg.ForwarderInterval,
			Batch:       cfg.ForwarderBatch,
			MaxAttempts: cfg.ForwarderMaxAttempts,
		})
	} else {
		log.Warn("change forwarder disabled", "reason", "OUTCOMES_REDIS_ADDR not set")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewServer(outcomeService, tokens, pool, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if fwd != nil {
		g.Go(func() error {
			return fwd.Run(gctx)
		})
	}

	return g.Wait()
}

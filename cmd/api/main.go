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

	"stockledger/internal/config"
	"stockledger/internal/database"
	"stockledger/internal/logger"
	"stockledger/internal/server"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Stock ledger API stopped", zap.Error(err))
	}
	log.Info("Graceful shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.JWT.Secret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	log.Info("Starting stock ledger API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if err := database.RunMigrations(ctx, dbService.DB(), cfg.Server.MigrationsDir, log); err != nil {
		dbService.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	srv := server.NewServer(cfg, log, dbService)

	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := srv.EnsureSeedUser(seedCtx); err != nil {
		log.Error("Seeding failed", zap.Error(err))
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// Shutdown ends event streams and closes connections left at the deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		return srv.Close()
	})

	return g.Wait()
}

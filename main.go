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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/simple-resource-server/config"
	"github.com/stevemurr/simple-resource-server/handler"
	"github.com/stevemurr/simple-resource-server/logging"
	"github.com/stevemurr/simple-resource-server/metrics"
	"github.com/stevemurr/simple-resource-server/schema"
	"github.com/stevemurr/simple-resource-server/seed"
	"github.com/stevemurr/simple-resource-server/store"
)

func newRootCmd() *cobra.Command {
	var (
		host, port, seedFile, logLevel string
	)

	cmd := &cobra.Command{
		Use:           "simple-resource-server",
		Short:         "In-memory resource store with optimistic versioning over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Flags win over the environment.
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("seed-file") {
				cfg.SeedFile = seedFile
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (env HOST)")
	cmd.Flags().StringVar(&port, "port", "", "listen port (env PORT)")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "YAML file of records to create at startup (env SEED_FILE)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var (
		s         *store.MemoryStore
		collector *metrics.Collector
	)
	opts := []store.Option{store.WithPolicy(schema.Required(cfg.RequiredFields...))}
	if cfg.EnableMetrics {
		collector = metrics.NewCollector("resource_server", func() int { return s.Len() })
		opts = append(opts, store.WithObserver(collector))
	}
	s = store.NewMemoryStore(opts...)

	if cfg.SeedFile != "" {
		records, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		n, err := seed.Apply(s, records)
		if err != nil {
			return err
		}
		logger.Info("Seeded store", zap.String("file", cfg.SeedFile), zap.Int("records", n))
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: handler.New(s, handler.Options{
			Logger:         logger,
			Metrics:        collector,
			AllowedOrigins: cfg.AllowedOrigins,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Simple Resource Server starting",
			zap.String("address", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Strings("requiredFields", cfg.RequiredFields),
			zap.Bool("metrics", cfg.EnableMetrics),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

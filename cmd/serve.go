package cmd

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
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/api"
	"github.com/khanhnv2901/secora/internal/engine"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run secora as a REST API service with an in-memory scan queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		logger := appCtx.Logger
		cfg := appCtx.Config

		shutdownTracing, err := telemetry.SetupTracing(cmd.Context(), cfg.tracingOptions())
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}

		handler, queue, err := buildAPI(cfg, logger)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:         cfg.Serve.Addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.Scan.Timeout + 30*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s API server listening on %s\n", colorInfo("→"), cfg.Serve.Addr)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Serve.ShutdownTimeout)
		defer cancel()

		var errs error
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("http shutdown: %w", err))
			errs = multierr.Append(errs, httpServer.Close())
		}
		if err := queue.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scan queue shutdown: %w", err))
		}
		if err := shutdownTracing(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		if errs != nil {
			logger.Error("shutdown incomplete", zap.Error(errs))
			return errs
		}

		fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		return nil
	},
}

// buildAPI wires the scanner, job queue, metrics and HTTP handler.
func buildAPI(cfg *CLIConfig, logger *zap.Logger) (http.Handler, *api.ScanQueue, error) {
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, nil, err
	}
	ecfg, err := cfg.engineConfig(logger, metrics)
	if err != nil {
		return nil, nil, err
	}
	scanner, err := engine.Build(ecfg)
	if err != nil {
		return nil, nil, err
	}

	queue := api.NewScanQueue(api.NewJobManager(), scanner, api.QueueConfig{
		Workers:  cfg.Serve.Workers,
		Capacity: cfg.Serve.QueueSize,
		Timeout:  cfg.Scan.Timeout,
		Metrics:  metrics,
		Logger:   logger.Named("jobs"),
	})

	server := api.NewServer(api.Config{
		Jobs:        queue,
		Scanner:     scanner,
		Health:      queue,
		Metrics:     metrics.Handler(),
		AuthToken:   cfg.Serve.AuthToken,
		Logger:      logger.Named("api"),
		CORSOrigins: cfg.Serve.CORSOrigins,
		RateLimit:   cfg.Serve.RateLimit,
		RateBurst:   cfg.Serve.RateBurst,
		SyncTimeout: cfg.Scan.Timeout,
	})
	return server, queue, nil
}

func init() {
	fs := serveCmd.Flags()
	s := &cliConfig.Serve
	fs.StringVar(&s.Addr, "addr", s.Addr, "Address for the API server")
	fs.StringVar(&s.AuthToken, "auth-token", s.AuthToken, "Optional shared secret for API requests (X-Auth-Token)")
	fs.IntVar(&s.Workers, "workers", s.Workers, "Scans running at once")
	fs.IntVar(&s.QueueSize, "queue-size", s.QueueSize, "Scans waiting for a worker before submissions are rejected")
	fs.DurationVar(&s.ShutdownTimeout, "shutdown-timeout", s.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringSliceVar(&s.CORSOrigins, "cors-origins", s.CORSOrigins, "Allowed CORS origins (empty = allow all)")
	fs.IntVar(&s.RateLimit, "api-rate-limit", s.RateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	fs.IntVar(&s.RateBurst, "api-rate-burst", s.RateBurst, "Rate limit burst size")
	addScanFlags(fs)
}

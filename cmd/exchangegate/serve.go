package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360/exchangegate/config"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/service"
)

type serveOptions struct {
	shutdownTimeout time.Duration
	listen          string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway and serve configured routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 0,
		"graceful shutdown timeout; overrides http.shutdown_timeout")
	cmd.Flags().StringVar(&opts.listen, "listen", "",
		"HTTP listen address; overrides http.listen")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts serveOptions) error {
	logger := setupLogger(root.logLevel, root.logFormat, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := loadConfig(root.configPaths)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.listen != "" {
		cfg.HTTP.Listen = opts.listen
	}
	shutdownTimeout := cfg.HTTP.ShutdownTimeout.Std()
	if opts.shutdownTimeout > 0 {
		shutdownTimeout = opts.shutdownTimeout
	}

	registry := metric.NewMetricsRegistry()
	gw, err := service.New(cfg,
		service.WithLogger(logger),
		service.WithMetricsRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	ctx := cmd.Context()
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	srv := newHTTPServer(ctx, cfg, gw.Handler())

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP gateway listening", "addr", cfg.HTTP.Listen, "prefix", cfg.HTTP.Prefix,
			"routes", len(cfg.Routes), "workflows", len(cfg.Workflows))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Metrics server listening", "address", metricsServer.Address())
			return metricsServer.Start()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", shutdownTimeout)
		return shutdown(srv, metricsServer, gw, shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Std(),
		ReadTimeout:       cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout:      cfg.HTTP.WriteTimeout.Std(),
		IdleTimeout:       cfg.HTTP.IdleTimeout.Std(),
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
}

// shutdown drains in-flight exchanges before the gateway stops, so parked
// requests can still receive their responses. Exchanges still waiting when
// the timeout expires are cut off by closing their connections.
func shutdown(srv *http.Server, metricsServer *metric.Server, gw *service.Gateway, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		_ = srv.Close()
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	remaining := time.Until(deadlineOf(ctx))
	if remaining < time.Second {
		remaining = time.Second
	}
	if err := gw.Stop(remaining); err != nil {
		errs = append(errs, fmt.Errorf("gateway stop: %w", err))
	}
	return stderrors.Join(errs...)
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now()
}

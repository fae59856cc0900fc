package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/andresmedinaorbidi/clarity/internal/http"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clarity HTTP server",
	Long: `Start the clarity HTTP server.

Examples:
  # Start with the default config file
  clarity serve

  # Use a different config file
  clarity serve --config /etc/clarity/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn(closeCtx, "shutdown incomplete", zap.Error(err))
		}
	}()

	reqMetrics, err := httpserver.NewRequestMetrics(a.telemetry.Meter("github.com/andresmedinaorbidi/clarity/internal/http"))
	if err != nil {
		return fmt.Errorf("creating request metrics: %w", err)
	}

	srv, err := httpserver.NewServer(a.engine, a.store, a.logger, &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
		RequiredFields: cfg.Session.RequiredKeys(),
		Version:        version,
	},
		httpserver.WithGatherer(a.registry),
		httpserver.WithRequestMetrics(reqMetrics),
	)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	return serve(ctx, srv, cfg.Server.ShutdownTimeout.Duration())
}

// server is the part of httpserver.Server that serve drives.
type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until ctx is cancelled or the listener fails, then shuts it
// down within timeout.
func serve(ctx context.Context, srv server, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

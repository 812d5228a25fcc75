package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/codequest/internal/adapters/http/api"
	"github.com/okian/codequest/internal/adapters/http/swagger"
	"github.com/okian/codequest/internal/adapters/identity"
	app "github.com/okian/codequest/internal/app"
	"github.com/okian/codequest/pkg/logger"
)

// HTTP server timeout constants. Writes allow for a full sandbox round trip.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error(context.Background(), "closing service", logger.Error(err))
		}
	}()

	go startServiceMetricsUpdater(ctx, svc)

	auth := identity.NewAuthenticator(cfg.JWTSecret, identity.WithIssuer(cfg.JWTIssuer))
	apiServer := api.NewServer(svc, auth,
		api.WithLogger(log),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithStats(svc),
	)
	swagger.Register(ctx, apiServer.Router())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
			logger.String("sandbox", cfg.SandboxProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

// startServiceMetricsUpdater refreshes ledger gauges in the background.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats(ctx)
		}
	}
}

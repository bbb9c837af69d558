// Command server exposes the run status API, Prometheus metrics, and the
// health check over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "github.com/openrmt/openrmt/internal/api/http"
	"github.com/openrmt/openrmt/internal/app/bootstrap"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		return err
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := bootstrap.NewCollector(cfg)

	infra, err := bootstrap.NewInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.NewRunService(logger, collector)
	if err != nil {
		return err
	}
	if svc == nil {
		logger.Warn("database disabled; runs API not mounted")
	}

	mode := "release"
	if cfg.Server.Environment == "development" {
		mode = "debug"
	}
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Mode:        mode,
		EnablePprof: cfg.Server.EnablePprof,
		MetricsPath: cfg.Observability.Metrics.Path,
	}, svc, collector, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

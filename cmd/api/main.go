package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keepitcut/reschedule-service/internal/api/router"
	appconfig "github.com/keepitcut/reschedule-service/internal/config"
	"github.com/keepitcut/reschedule-service/internal/meevo"
	"github.com/keepitcut/reschedule-service/internal/observability/metrics"
	"github.com/keepitcut/reschedule-service/internal/reschedule"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reschedule-service API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"location", cfg.LocationName,
	)

	registry := prometheus.NewRegistry()
	rescheduleMetrics := metrics.NewRescheduleMetrics(registry)

	api, err := meevo.New(meevo.Config{
		AuthURL:      cfg.MeevoAuthURL,
		BaseURL:      cfg.MeevoAPIURL,
		ClientID:     cfg.MeevoClientID,
		ClientSecret: cfg.MeevoClientSecret,
		TenantID:     cfg.MeevoTenantID,
		LocationID:   cfg.MeevoLocationID,
	}, logger, meevo.WithObserver(rescheduleMetrics))
	if err != nil {
		logger.Error("failed to initialize Meevo client", "error", err)
		os.Exit(1)
	}

	directory := reschedule.NewDirectory(api, logger)
	locator := reschedule.NewLocator(api, directory, logger)
	stylists := reschedule.NewStylistFinder(api, logger)
	executor := reschedule.NewExecutor(api, stylists, logger, rescheduleMetrics)
	handler := reschedule.NewHandler(api, locator, executor, logger, rescheduleMetrics, cfg.Env, cfg.LocationName)

	r := router.New(&router.Config{
		Logger:            logger,
		RescheduleHandler: handler,
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// Phone searches can scan hundreds of client pages, so the write timeout
	// is far longer than a typical API server's.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

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

	"github.com/AnthonyPark465/flight-analysis-refined/internal/app"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/metrics"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/tracing"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/web/api"
	"github.com/AnthonyPark465/flight-analysis-refined/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting flightdata api", zap.String("backend", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "api")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	a, err := app.Build(ctx, cfg, log, false)
	fatalOnErr(err, "build app")
	defer a.Close()

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, a.Ready, log)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(&api.Usecase{
		Runs:      a.AnalyzeRun,
		Catalog:   a.GetRun,
		Backend:   a.Gateway.Name(),
		MaxUpload: cfg.HTTPMaxUpload,
		Logger:    log,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server starting", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}

	// background runs are detached from request contexts; let them finish
	log.Info("waiting for in-flight runs")
	a.AnalyzeRun.Wait()

	metricsSrv.Shutdown(shutdownCtx)
	log.Info("flightdata api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

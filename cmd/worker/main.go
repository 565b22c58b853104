package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/app"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/metrics"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/rabbitmq"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/tracing"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/usecase"
	"github.com/AnthonyPark465/flight-analysis-refined/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting flightdata worker", zap.String("backend", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	a, err := app.Build(ctx, cfg, log, true)
	fatalOnErr(err, "build app")
	defer a.Close()

	dlqPub := rabbitmq.NewDLQPublisher(a.Publisher, cfg.RabbitMQDLQ)
	handler := usecase.NewHandleRequestUseCase(a.AnalyzeRun, dlqPub, log)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, a.Ready, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		MaxAttempts: cfg.WorkerMaxAttempts,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, handler.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("flightdata worker started, consuming analysis requests")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("flightdata worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}

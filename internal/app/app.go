package app

import (
	"context"
	"fmt"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/detector"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/email"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/plot"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/rabbitmq"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/storage"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// App holds the components shared by the api and worker processes.
type App struct {
	Gateway    *storage.Gateway
	Catalog    *usecase.HistoryCatalog
	AnalyzeRun *usecase.AnalyzeRunUseCase
	GetRun     *usecase.GetRunUseCase
	Publisher  *rabbitmq.Publisher

	closers []func()
}

// Build opens the storage backend and wires the run pipeline. RabbitMQ is only
// dialed when enabled or when requireQueue is set.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, requireQueue bool) (*App, error) {
	gw, closeStore, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open storage backend: %w", err)
	}
	a := &App{Gateway: gw, closers: []func(){closeStore}}
	log.Info("storage backend ready", zap.String("backend", gw.Name()))

	var statusPub port.StatusPublisher
	if cfg.RabbitMQEnabled || requireQueue {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to rabbitmq for publisher: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })

		pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create rabbitmq publisher: %w", err)
		}
		a.Publisher = pub
		statusPub = rabbitmq.NewStatusPublisher(pub)
	}

	var notifier port.FailureNotifier
	if cfg.SMTPHost != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)
	}

	detCfg := detector.Config{
		Command:   cfg.DetectorCommand,
		ModelPath: cfg.ModelPath,
		Annotate:  cfg.DetectorAnnotate,
	}
	if cfg.ProbeEnabled {
		detCfg.Prober = detector.NewProber("ffprobe")
	}

	a.Catalog = usecase.NewHistoryCatalog(gw, cfg.HistoryLimit, log)
	a.AnalyzeRun = usecase.NewAnalyzeRunUseCase(
		detector.NewDetector(detCfg, log),
		plot.NewRenderer(plot.Options{
			Interactive: cfg.PlotInteractive,
			WidthPx:     cfg.PlotWidthPx,
			HeightPx:    cfg.PlotHeightPx,
		}),
		gw,
		a.Catalog,
		usecase.NewRunTracker(cfg.TrackerRetention),
		statusPub,
		notifier,
		log,
		usecase.AnalyzeRunConfig{TempDir: cfg.TempDir},
	)
	a.GetRun = usecase.NewGetRunUseCase(a.Catalog, gw, log)
	return a, nil
}

// Ready probes the record half of the backend.
func (a *App) Ready(ctx context.Context) error {
	_, err := a.Gateway.ListRecords(ctx, 1)
	return err
}

func (a *App) Close() {
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

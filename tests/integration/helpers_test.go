package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/detector"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/plot"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/storage"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/usecase"
	"github.com/AnthonyPark465/flight-analysis-refined/pkg/logger"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

// threeFrameDetector prints one box in the first frame, nothing in the second
// and two boxes in the third: centroids (5,5), (5,5), (15,15).
const threeFrameDetector = `#!/bin/sh
echo '{"frame":0,"boxes":[[0,0,10,10,0.91]]}'
echo '{"frame":1,"boxes":[]}'
echo '{"frame":2,"boxes":[[0,0,10,10,0.88],[10,10,20,20,0.95]]}'
`

type backend struct {
	name string
	gw   *storage.Gateway
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StorageTimeout: 30 * time.Second,
		HistoryLimit:   500,
		MigrationsDir:  "../../migrations",
		TempDir:        t.TempDir(),
	}
}

func openBackend(t *testing.T, ctx context.Context, cfg *config.Config) backend {
	t.Helper()
	log, _ := logger.New("debug")
	gw, closeFn, err := storage.Open(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return backend{name: cfg.StorageBackend, gw: gw}
}

func startLocal(t *testing.T, ctx context.Context) backend {
	t.Helper()
	cfg := baseConfig(t)
	cfg.StorageBackend = config.BackendLocal
	cfg.PersistDir = t.TempDir()
	return openBackend(t, ctx, cfg)
}

func startRelational(t *testing.T, ctx context.Context) backend {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("flightdata"),
		tcpostgres.WithUsername("flight_user"),
		tcpostgres.WithPassword("flight_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := baseConfig(t)
	cfg.StorageBackend = config.BackendRelational
	cfg.DatabaseURL = pgConnStr
	cfg.MinIOEndpoint = minioEndpoint
	cfg.MinIOAccessKey = "minioadmin"
	cfg.MinIOSecretKey = "minioadmin"
	cfg.MinIOBucket = "runs"
	cfg.MinIOPresignTTL = time.Hour
	return openBackend(t, ctx, cfg)
}

func startDocument(t *testing.T, ctx context.Context) backend {
	t.Helper()

	mongoContainer, err := tcmongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { mongoContainer.Terminate(context.Background()) })

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := baseConfig(t)
	cfg.StorageBackend = config.BackendDocument
	cfg.MongoURI = uri
	cfg.MongoDatabase = "flightdata"
	cfg.MongoCollection = "history"
	cfg.MongoBucket = "artifacts"
	return openBackend(t, ctx, cfg)
}

func startAll(t *testing.T, ctx context.Context) []backend {
	t.Helper()
	return []backend{startLocal(t, ctx), startRelational(t, ctx), startDocument(t, ctx)}
}

func newDetector(t *testing.T, script string) *detector.Detector {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	cmd := filepath.Join(dir, "detect.sh")
	require.NoError(t, os.WriteFile(cmd, []byte(script), 0755))
	weights := filepath.Join(dir, "best.pt")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0644))

	return detector.NewDetector(detector.Config{Command: cmd, ModelPath: weights}, zap.NewNop())
}

type pipeline struct {
	analyze *usecase.AnalyzeRunUseCase
	get     *usecase.GetRunUseCase
}

func newPipeline(t *testing.T, b backend, script string, now time.Time) pipeline {
	t.Helper()
	log := zap.NewNop()
	catalog := usecase.NewHistoryCatalog(b.gw, 0, log)
	analyze := usecase.NewAnalyzeRunUseCase(
		newDetector(t, script),
		plot.NewRenderer(plot.Options{}),
		b.gw,
		catalog,
		usecase.NewRunTracker(0),
		nil, nil, log,
		usecase.AnalyzeRunConfig{TempDir: t.TempDir(), Now: func() time.Time { return now }},
	)
	return pipeline{analyze: analyze, get: usecase.NewGetRunUseCase(catalog, b.gw, log)}
}

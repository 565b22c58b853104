package storage

import (
	"context"
	"fmt"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	miniostorage "github.com/AnthonyPark465/flight-analysis-refined/internal/infra/minio"
	mongostore "github.com/AnthonyPark465/flight-analysis-refined/internal/infra/mongo"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/postgres"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/storage/local"
	"github.com/jackc/pgx/v5/pgxpool"
	mongogo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Open builds the backend selected by cfg.StorageBackend. It is called once per
// process. Either half of a cloud backend may be unreachable at startup; that is
// logged and surfaced later per call rather than failing here.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendLocal:
		return openLocal(cfg, logger)
	case config.BackendRelational:
		return openRelational(ctx, cfg, logger)
	case config.BackendDocument:
		return openDocument(ctx, cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func openLocal(cfg *config.Config, logger *zap.Logger) (*Gateway, func(), error) {
	root, err := local.ResolveRoot(cfg.PersistCandidates())
	if err != nil {
		return nil, nil, err
	}
	logger.Info("local persistence root resolved", zap.String("root", root))

	store := local.NewStore(root, logger)
	return NewGateway(config.BackendLocal, store, store, cfg.StorageTimeout, logger), func() {}, nil
}

func openRelational(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Warn("migration warning", zap.Error(err))
	}

	blobs, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:   cfg.MinIOEndpoint,
		AccessKey:  cfg.MinIOAccessKey,
		SecretKey:  cfg.MinIOSecretKey,
		UseSSL:     cfg.MinIOUseSSL,
		Bucket:     cfg.MinIOBucket,
		PresignTTL: cfg.MinIOPresignTTL,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := blobs.EnsureBucket(readyCtx); err != nil {
		logger.Warn("minio bucket not ready", zap.Error(err))
	}

	gw := NewGateway(config.BackendRelational, postgres.NewHistoryRepository(pool), blobs, cfg.StorageTimeout, logger)
	return gw, pool.Close, nil
}

func openDocument(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, func(), error) {
	client, err := mongogo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("create mongo client: %w", err)
	}

	store := mongostore.NewStore(client, cfg.MongoDatabase, cfg.MongoCollection, cfg.MongoBucket)
	readyCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()
	if err := store.EnsureIndexes(readyCtx); err != nil {
		logger.Warn("mongo indexes not ready", zap.Error(err))
	}

	closeFn := func() {
		_ = client.Disconnect(context.Background())
	}
	return NewGateway(config.BackendDocument, store, store, cfg.StorageTimeout, logger), closeFn, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/metrics"
	"go.uber.org/zap"
)

// Gateway joins a record store and an artifact store into one backend. Each
// call gets its own timeout and is retried at most once, immediately. Failures
// come back as *entity.StorageError naming the half that failed.
type Gateway struct {
	name      string
	records   port.RecordStore
	artifacts port.ArtifactStore
	timeout   time.Duration
	logger    *zap.Logger
}

func NewGateway(name string, records port.RecordStore, artifacts port.ArtifactStore, timeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		name:      name,
		records:   records,
		artifacts: artifacts,
		timeout:   timeout,
		logger:    logger.With(zap.String("backend", name)),
	}
}

var _ port.StorageBackend = (*Gateway)(nil)

func (g *Gateway) Name() string { return g.name }

func (g *Gateway) PutArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, size int64, contentType string) error {
	if !slot.Valid() {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "put", RunID: runID, Slot: slot, Err: fmt.Errorf("unknown artifact slot")}
	}
	_, err := withRetry(ctx, g, entity.HalfBlob, func(ctx context.Context) (struct{}, error) {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return struct{}{}, fmt.Errorf("rewind body: %w", err)
		}
		return struct{}{}, g.artifacts.PutArtifact(ctx, runID, slot, body, size, contentType)
	})
	if err != nil {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "put", RunID: runID, Slot: slot, Err: err}
	}
	g.logger.Debug("artifact stored", zap.String("run_id", runID), zap.String("slot", string(slot)), zap.Int64("size", size))
	return nil
}

func (g *Gateway) GetArtifactRef(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	ref, err := withRetry(ctx, g, entity.HalfBlob, func(ctx context.Context) (*entity.ArtifactRef, error) {
		return g.artifacts.GetArtifactRef(ctx, runID, slot)
	})
	if err != nil {
		return nil, &entity.StorageError{Half: entity.HalfBlob, Op: "get", RunID: runID, Slot: slot, Err: err}
	}
	return ref, nil
}

func (g *Gateway) StatArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	_, err := withRetry(ctx, g, entity.HalfBlob, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.artifacts.StatArtifact(ctx, runID, slot)
	})
	if err != nil {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "stat", RunID: runID, Slot: slot, Err: err}
	}
	return nil
}

func (g *Gateway) DeleteArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error {
	_, err := withRetry(ctx, g, entity.HalfBlob, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.artifacts.DeleteArtifact(ctx, runID, slot)
	})
	if err != nil {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "delete", RunID: runID, Slot: slot, Err: err}
	}
	g.logger.Debug("artifact deleted", zap.String("run_id", runID), zap.String("slot", string(slot)))
	return nil
}

func (g *Gateway) PutRecord(ctx context.Context, rec entity.HistoryRecord) error {
	_, err := withRetry(ctx, g, entity.HalfRecord, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.records.PutRecord(ctx, rec)
	})
	if err != nil {
		return &entity.StorageError{Half: entity.HalfRecord, Op: "put", RunID: rec.FolderName, Err: err}
	}
	return nil
}

func (g *Gateway) GetRecord(ctx context.Context, runID string) (*entity.HistoryRecord, error) {
	rec, err := withRetry(ctx, g, entity.HalfRecord, func(ctx context.Context) (*entity.HistoryRecord, error) {
		return g.records.GetRecord(ctx, runID)
	})
	if err != nil {
		return nil, &entity.StorageError{Half: entity.HalfRecord, Op: "get", RunID: runID, Err: err}
	}
	return rec, nil
}

func (g *Gateway) ListRecords(ctx context.Context, limit int) ([]entity.HistoryRecord, error) {
	recs, err := withRetry(ctx, g, entity.HalfRecord, func(ctx context.Context) ([]entity.HistoryRecord, error) {
		return g.records.ListRecords(ctx, limit)
	})
	if err != nil {
		return nil, &entity.StorageError{Half: entity.HalfRecord, Op: "list", Err: err}
	}
	return recs, nil
}

// withRetry runs fn with a per-attempt timeout and retries it once, without
// delay, unless the failure is a not-found or the caller's ctx is done.
func withRetry[T any](ctx context.Context, g *Gateway, half entity.StoreHalf, fn func(context.Context) (T, error)) (T, error) {
	v, err := attempt(ctx, g.timeout, fn)
	if err == nil || errors.Is(err, entity.ErrNotFound) || ctx.Err() != nil {
		return v, err
	}

	g.logger.Warn("storage call failed, retrying once", zap.String("half", string(half)), zap.Error(err))
	metrics.StorageRetryTotal.WithLabelValues(string(half)).Inc()
	return attempt(ctx, g.timeout, fn)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

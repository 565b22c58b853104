package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"go.uber.org/zap"
)

// RunView is everything needed to display a recorded run. Plot is nil when the
// run has fewer than two points or its plot upload failed.
type RunView struct {
	Record entity.HistoryRecord
	Video  *entity.ArtifactRef
	Plot   *entity.ArtifactRef
}

// RunSummary describes a recorded run without resolving its artifacts.
type RunSummary struct {
	Record     entity.HistoryRecord
	PlotStored bool
}

type GetRunUseCase struct {
	catalog   *HistoryCatalog
	artifacts port.ArtifactStore
	logger    *zap.Logger
}

func NewGetRunUseCase(catalog *HistoryCatalog, artifacts port.ArtifactStore, logger *zap.Logger) *GetRunUseCase {
	return &GetRunUseCase{catalog: catalog, artifacts: artifacts, logger: logger}
}

// Execute resolves runID through the history catalog first: artifacts without a
// record are unreachable here.
func (uc *GetRunUseCase) Execute(ctx context.Context, runID string) (*RunView, error) {
	rec, err := uc.catalog.Lookup(ctx, runID)
	if err != nil {
		return nil, err
	}

	video, err := uc.artifacts.GetArtifactRef(ctx, runID, entity.SlotVideo)
	if err != nil {
		return nil, fmt.Errorf("resolve video for %s: %w", runID, err)
	}

	view := &RunView{Record: *rec, Video: video}
	if !plotExpected(rec) {
		return view, nil
	}

	plot, err := uc.artifacts.GetArtifactRef(ctx, runID, entity.SlotPlot)
	switch {
	case err == nil:
		view.Plot = plot
	case errors.Is(err, entity.ErrNotFound):
	default:
		uc.logger.Warn("plot unavailable", zap.String("run_id", runID), zap.Error(err))
	}
	return view, nil
}

// Summary returns the record and whether a plot is stored. Artifact content is
// never read.
func (uc *GetRunUseCase) Summary(ctx context.Context, runID string) (*RunSummary, error) {
	rec, err := uc.catalog.Lookup(ctx, runID)
	if err != nil {
		return nil, err
	}

	sum := &RunSummary{Record: *rec}
	if !plotExpected(rec) {
		return sum, nil
	}

	err = uc.artifacts.StatArtifact(ctx, runID, entity.SlotPlot)
	switch {
	case err == nil:
		sum.PlotStored = true
	case errors.Is(err, entity.ErrNotFound):
	default:
		uc.logger.Warn("plot unavailable", zap.String("run_id", runID), zap.Error(err))
	}
	return sum, nil
}

// Artifact resolves a single slot of a recorded run.
func (uc *GetRunUseCase) Artifact(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	rec, err := uc.catalog.Lookup(ctx, runID)
	if err != nil {
		return nil, err
	}
	if slot == entity.SlotPlot && !plotExpected(rec) {
		return nil, fmt.Errorf("plot for %s: %w", runID, entity.ErrNotFound)
	}

	ref, err := uc.artifacts.GetArtifactRef(ctx, runID, slot)
	if err != nil {
		return nil, fmt.Errorf("resolve %s for %s: %w", slot, runID, err)
	}
	return ref, nil
}

// plotExpected guards against a plot left in the slot by an earlier run that
// shared the run ID.
func plotExpected(rec *entity.HistoryRecord) bool {
	return rec.Points >= 2
}

// List is the listHistory operation.
func (uc *GetRunUseCase) List(ctx context.Context, query string) ([]entity.HistoryRecord, error) {
	return uc.catalog.List(ctx, query)
}

package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"go.uber.org/zap"
)

const DefaultHistoryLimit = 500

// HistoryCatalog is the append-only index of analysis runs.
type HistoryCatalog struct {
	records port.RecordStore
	limit   int
	logger  *zap.Logger
}

func NewHistoryCatalog(records port.RecordStore, limit int, logger *zap.Logger) *HistoryCatalog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryCatalog{records: records, limit: limit, logger: logger}
}

// Record writes the run's HistoryRecord exactly once. Existing records are never
// read first; a colliding run ID is overwritten by the backend.
func (c *HistoryCatalog) Record(ctx context.Context, run *entity.AnalysisRun) error {
	rec := run.Record()
	if err := c.records.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	c.logger.Info("history record written",
		zap.String("run_id", rec.FolderName),
		zap.Int("points", rec.Points),
	)
	return nil
}

// List returns the newest records whose display name matches query.
func (c *HistoryCatalog) List(ctx context.Context, query string) ([]entity.HistoryRecord, error) {
	records, err := c.records.ListRecords(ctx, c.limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return Search(query, records), nil
}

// Lookup returns the record for runID or entity.ErrNotFound.
func (c *HistoryCatalog) Lookup(ctx context.Context, runID string) (*entity.HistoryRecord, error) {
	rec, err := c.records.GetRecord(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("lookup run %s: %w", runID, err)
	}
	return rec, nil
}

// Search keeps records whose display name contains query, ignoring case.
// A blank query returns records unchanged.
func Search(query string, records []entity.HistoryRecord) []entity.HistoryRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}
	out := make([]entity.HistoryRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.AnalysisName), q) {
			out = append(out, rec)
		}
	}
	return out
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository is the record half of the relational backend.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// PutRecord upserts on folder_name: a colliding run ID is overwritten.
func (r *HistoryRepository) PutRecord(ctx context.Context, rec entity.HistoryRecord) error {
	query := `
		INSERT INTO history (folder_name, analysis_name, created_at, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (folder_name) DO UPDATE SET
			analysis_name = EXCLUDED.analysis_name,
			created_at = EXCLUDED.created_at,
			points = EXCLUDED.points`

	_, err := r.pool.Exec(ctx, query,
		rec.FolderName, rec.AnalysisName, rec.CreatedAt.UTC(), rec.Points,
	)
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) GetRecord(ctx context.Context, runID string) (*entity.HistoryRecord, error) {
	query := `
		SELECT folder_name, coalesce(analysis_name, ''), created_at, points
		FROM history WHERE folder_name=$1`

	rec := &entity.HistoryRecord{}
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&rec.FolderName, &rec.AnalysisName, &rec.CreatedAt, &rec.Points,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find history by folder: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (r *HistoryRepository) ListRecords(ctx context.Context, limit int) ([]entity.HistoryRecord, error) {
	query := `
		SELECT folder_name, analysis_name, created_at, points
		FROM history
		WHERE coalesce(analysis_name, '') ~ '\S'
		ORDER BY created_at DESC, folder_name DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := []entity.HistoryRecord{}
	for rows.Next() {
		var rec entity.HistoryRecord
		if err := rows.Scan(&rec.FolderName, &rec.AnalysisName, &rec.CreatedAt, &rec.Points); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

package port

import (
	"context"
	"io"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

type ArtifactStore interface {
	PutArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, size int64, contentType string) error
	GetArtifactRef(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error)
	// StatArtifact returns nil when the slot holds an artifact and
	// entity.ErrNotFound when it does not. It never reads the content.
	StatArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error
	// DeleteArtifact removes the slot. A missing artifact is not an error.
	DeleteArtifact(ctx context.Context, runID string, slot entity.ArtifactSlot) error
}

// RecordStore persists HistoryRecords. PutRecord is last-write-wins on FolderName
// and ListRecords returns newest first, skipping records without a display name.
type RecordStore interface {
	PutRecord(ctx context.Context, rec entity.HistoryRecord) error
	GetRecord(ctx context.Context, runID string) (*entity.HistoryRecord, error)
	ListRecords(ctx context.Context, limit int) ([]entity.HistoryRecord, error)
}

type StorageBackend interface {
	ArtifactStore
	RecordStore
	Name() string
}

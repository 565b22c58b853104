package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
)

type fakeDetector struct {
	frames    []entity.FrameDetections
	err       error
	streamErr error
	annotated []byte
	// block, when set, is waited on before the first frame is yielded
	block chan struct{}
}

func (d *fakeDetector) Detect(_ context.Context, _ string, workDir string) (port.DetectionStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{d: d}
	if d.annotated != nil {
		s.annotatedPath = filepath.Join(workDir, "annotated.mp4")
		if err := os.WriteFile(s.annotatedPath, d.annotated, 0644); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type fakeStream struct {
	d             *fakeDetector
	annotatedPath string
}

func (s *fakeStream) Frames() iter.Seq2[entity.FrameDetections, error] {
	return func(yield func(entity.FrameDetections, error) bool) {
		if s.d.block != nil {
			<-s.d.block
		}
		for _, f := range s.d.frames {
			if !yield(f, nil) {
				return
			}
		}
		if s.d.streamErr != nil {
			yield(nil, s.d.streamErr)
		}
	}
}

func (s *fakeStream) AnnotatedVideo() (string, bool) {
	return s.annotatedPath, s.annotatedPath != ""
}

func (s *fakeStream) Close() error { return nil }

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(points []entity.TrajectoryPoint) (*entity.PlotDocument, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &entity.PlotDocument{ContentType: entity.PlotContentType, Body: []byte("<html>plot</html>")}, nil
}

// memStore keeps artifacts and records in memory. failSlots makes PutArtifact
// fail for the given slots; failRecords makes PutRecord fail. refCalls counts
// GetArtifactRef calls, the only operation that reads artifact content.
type memStore struct {
	mu          sync.Mutex
	artifacts   map[string][]byte
	records     map[string]entity.HistoryRecord
	failSlots   map[entity.ArtifactSlot]bool
	failRecords bool
	order       []string
	deleted     []entity.ArtifactSlot
	refCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		artifacts: map[string][]byte{},
		records:   map[string]entity.HistoryRecord{},
		failSlots: map[entity.ArtifactSlot]bool{},
	}
}

func artifactKey(runID string, slot entity.ArtifactSlot) string {
	return runID + "/" + slot.FileName()
}

func (m *memStore) PutArtifact(_ context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSlots[slot] {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "put", RunID: runID, Slot: slot, Err: errors.New("bucket unavailable")}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.artifacts[artifactKey(runID, slot)] = data
	m.order = append(m.order, "artifact:"+string(slot))
	return nil
}

func (m *memStore) GetArtifactRef(_ context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCalls++
	data, ok := m.artifacts[artifactKey(runID, slot)]
	if !ok {
		return nil, &entity.StorageError{Half: entity.HalfBlob, Op: "get", RunID: runID, Slot: slot, Err: entity.ErrNotFound}
	}
	return entity.BytesRef(slot, "", data), nil
}

func (m *memStore) StatArtifact(_ context.Context, runID string, slot entity.ArtifactSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[artifactKey(runID, slot)]; !ok {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "stat", RunID: runID, Slot: slot, Err: entity.ErrNotFound}
	}
	return nil
}

func (m *memStore) DeleteArtifact(_ context.Context, runID string, slot entity.ArtifactSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, artifactKey(runID, slot))
	m.deleted = append(m.deleted, slot)
	return nil
}

func (m *memStore) PutRecord(_ context.Context, rec entity.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecords {
		return &entity.StorageError{Half: entity.HalfRecord, Op: "put", RunID: rec.FolderName, Err: errors.New("database unavailable")}
	}
	m.records[rec.FolderName] = rec
	m.order = append(m.order, "record")
	return nil
}

func (m *memStore) GetRecord(_ context.Context, runID string) (*entity.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[runID]
	if !ok {
		return nil, &entity.StorageError{Half: entity.HalfRecord, Op: "get", RunID: runID, Err: entity.ErrNotFound}
	}
	return &rec, nil
}

func (m *memStore) ListRecords(_ context.Context, limit int) ([]entity.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.HistoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) hasArtifact(runID string, slot entity.ArtifactSlot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.artifacts[artifactKey(runID, slot)]
	return ok
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	stages []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, _, _, stage, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stages = append(n.stages, stage)
	return nil
}

type recordingDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

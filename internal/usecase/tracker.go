package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

const defaultTrackerRetention = time.Hour

// RunTracker keeps the latest status of recent runs so callers can poll or await
// a terminal state instead of holding a request open for the whole analysis.
type RunTracker struct {
	mu        sync.RWMutex
	runs      map[string]*RunHandle
	retention time.Duration
	now       func() time.Time
}

func NewRunTracker(retention time.Duration) *RunTracker {
	if retention <= 0 {
		retention = defaultTrackerRetention
	}
	return &RunTracker{
		runs:      make(map[string]*RunHandle),
		retention: retention,
		now:       time.Now,
	}
}

// RunHandle is owned by exactly one orchestration. A colliding run ID replaces
// the tracker entry but never the handle held by the earlier run.
type RunHandle struct {
	mu     sync.RWMutex
	status entity.RunStatus
	done   chan struct{}
	now    func() time.Time
}

func (t *RunTracker) Begin(run *entity.AnalysisRun) *RunHandle {
	h := &RunHandle{
		status: entity.RunStatus{
			RunID:       run.RunID,
			DisplayName: run.DisplayName,
			State:       entity.RunStateUploaded,
			UpdatedAt:   t.now().UTC(),
		},
		done: make(chan struct{}),
		now:  t.now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	t.runs[run.RunID] = h
	return h
}

func (t *RunTracker) Status(runID string) (entity.RunStatus, bool) {
	t.mu.RLock()
	h, ok := t.runs[runID]
	t.mu.RUnlock()
	if !ok {
		return entity.RunStatus{}, false
	}
	return h.Snapshot(), true
}

// Await blocks until the run reaches Recorded or Aborted, or ctx is done.
func (t *RunTracker) Await(ctx context.Context, runID string) (entity.RunStatus, error) {
	t.mu.RLock()
	h, ok := t.runs[runID]
	t.mu.RUnlock()
	if !ok {
		return entity.RunStatus{}, entity.ErrNotFound
	}
	select {
	case <-h.done:
		return h.Snapshot(), nil
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

func (t *RunTracker) pruneLocked() {
	cutoff := t.now().Add(-t.retention)
	for id, h := range t.runs {
		st := h.Snapshot()
		if st.State.Terminal() && st.UpdatedAt.Before(cutoff) {
			delete(t.runs, id)
		}
	}
}

// Update applies fn to the status and stamps it. Entering a terminal state
// releases every Await; later updates are ignored.
func (h *RunHandle) Update(fn func(st *entity.RunStatus)) entity.RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.State.Terminal() {
		return h.status
	}
	fn(&h.status)
	h.status.UpdatedAt = h.now().UTC()
	if h.status.State.Terminal() {
		close(h.done)
	}
	return h.copyLocked()
}

func (h *RunHandle) Snapshot() entity.RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.copyLocked()
}

func (h *RunHandle) copyLocked() entity.RunStatus {
	st := h.status
	st.Warnings = append([]string(nil), h.status.Warnings...)
	return st
}

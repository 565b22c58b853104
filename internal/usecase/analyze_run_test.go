package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

const fixedRunID = "20250101_120000_Test"

type harness struct {
	uc        *AnalyzeRunUseCase
	detector  *fakeDetector
	renderer  *fakeRenderer
	store     *memStore
	publisher *recordingPublisher
	notifier  *recordingNotifier
	tempDir   string
}

func newHarness(t *testing.T, det *fakeDetector) *harness {
	t.Helper()
	h := &harness{
		detector:  det,
		renderer:  &fakeRenderer{},
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		tempDir:   t.TempDir(),
	}
	log := zap.NewNop()
	h.uc = NewAnalyzeRunUseCase(
		h.detector, h.renderer, h.store,
		NewHistoryCatalog(h.store, 0, log),
		NewRunTracker(0),
		h.publisher, h.notifier, log,
		AnalyzeRunConfig{TempDir: h.tempDir, Now: func() time.Time { return fixedNow }},
	)
	return h
}

func box(x1, y1, x2, y2 float64) entity.DetectionBox {
	return entity.DetectionBox{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: 0.9}
}

func videoRequest(name string) RunRequest {
	return RunRequest{DisplayName: name, Video: strings.NewReader("raw-video")}
}

func TestExecute_ThreeFrameScenario(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{
		{box(0, 0, 10, 10)},
		{},
		{box(0, 0, 10, 10), box(10, 10, 20, 20)},
	}})

	res, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)

	assert.Equal(t, []entity.TrajectoryPoint{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 15, Y: 15}}, res.Points)
	assert.Equal(t, fixedRunID, res.Run.RunID)
	assert.Equal(t, 3, res.Run.PointCount)
	assert.True(t, res.PlotStored)
	assert.Empty(t, res.Warnings)

	rec, err := h.store.GetRecord(context.Background(), fixedRunID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Points)
	assert.Equal(t, "Test", rec.AnalysisName)
	assert.Equal(t, fixedNow, rec.CreatedAt)

	assert.True(t, h.store.hasArtifact(fixedRunID, entity.SlotPlot))
	assert.Equal(t, []string{"artifact:video", "artifact:plot", "record"}, h.store.order)

	st, ok := h.uc.Status(fixedRunID)
	require.True(t, ok)
	assert.Equal(t, entity.RunStateRecorded, st.State)
	assert.Equal(t, 3, st.Points)
}

func TestExecute_FewerThanTwoPointsSkipsPlot(t *testing.T) {
	cases := []struct {
		name   string
		frames []entity.FrameDetections
		points int
	}{
		{"no detections", []entity.FrameDetections{{}, {}}, 0},
		{"no frames", nil, 0},
		{"single box", []entity.FrameDetections{{}, {box(0, 0, 2, 2)}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeDetector{frames: tc.frames})

			res, err := h.uc.Execute(context.Background(), videoRequest("Test"))
			require.NoError(t, err)
			assert.False(t, res.PlotStored)
			assert.Zero(t, h.renderer.calls)
			assert.False(t, h.store.hasArtifact(fixedRunID, entity.SlotPlot))

			rec, err := h.store.GetRecord(context.Background(), fixedRunID)
			require.NoError(t, err)
			assert.Equal(t, tc.points, rec.Points)
		})
	}
}

func TestExecute_RunIDCollisionClearsStalePlot(t *testing.T) {
	cases := []struct {
		name   string
		frames []entity.FrameDetections
		failUp bool
		points int
	}{
		{"second run without detections", []entity.FrameDetections{{}}, false, 0},
		{"second run with one point", []entity.FrameDetections{{box(0, 0, 2, 2)}}, false, 1},
		{"second run plot upload fails", []entity.FrameDetections{{box(0, 0, 2, 2), box(2, 2, 4, 4)}}, true, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			det := &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 10, 10), box(10, 10, 20, 20)}}}
			h := newHarness(t, det)

			first, err := h.uc.Execute(context.Background(), videoRequest("Test"))
			require.NoError(t, err)
			require.True(t, first.PlotStored)

			det.frames = tc.frames
			h.store.failSlots[entity.SlotPlot] = tc.failUp
			second, err := h.uc.Execute(context.Background(), videoRequest("Test"))
			require.NoError(t, err)
			assert.Equal(t, first.Run.RunID, second.Run.RunID)
			assert.False(t, second.PlotStored)

			assert.False(t, h.store.hasArtifact(fixedRunID, entity.SlotPlot))
			assert.Equal(t, []entity.ArtifactSlot{entity.SlotPlot}, h.store.deleted)

			log := zap.NewNop()
			get := NewGetRunUseCase(NewHistoryCatalog(h.store, 0, log), h.store, log)
			view, err := get.Execute(context.Background(), fixedRunID)
			require.NoError(t, err)
			assert.Equal(t, tc.points, view.Record.Points)
			assert.Nil(t, view.Plot)
		})
	}
}

func TestExecute_VideoWriteFailureWritesNoRecord(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1), box(1, 1, 2, 2)}}})
	h.store.failSlots[entity.SlotVideo] = true

	_, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.Error(t, err)

	var runErr *entity.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, entity.RunStatePersisting, runErr.Stage)
	var storeErr *entity.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, entity.HalfBlob, storeErr.Half)

	_, err = h.store.GetRecord(context.Background(), fixedRunID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.False(t, h.store.hasArtifact(fixedRunID, entity.SlotPlot))
	assert.Equal(t, []string{"PERSISTING"}, h.notifier.stages)

	st, _ := h.uc.Status(fixedRunID)
	assert.Equal(t, entity.RunStateAborted, st.State)
}

func TestExecute_PlotWriteFailureIsWarning(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1), box(1, 1, 2, 2)}}})
	h.store.failSlots[entity.SlotPlot] = true

	res, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)
	assert.False(t, res.PlotStored)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "video saved, trajectory plot upload failed")

	rec, err := h.store.GetRecord(context.Background(), fixedRunID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Points)
	assert.Empty(t, h.notifier.stages)
}

func TestExecute_RenderFailureDegrades(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1), box(1, 1, 2, 2)}}})
	h.renderer.err = errors.New("font cache missing")

	res, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)
	assert.False(t, res.PlotStored)
	require.Len(t, res.Warnings, 1)
	assert.False(t, h.store.hasArtifact(fixedRunID, entity.SlotPlot))
}

func TestExecute_RecordFailureAborts(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1)}}})
	h.store.failRecords = true

	_, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	var runErr *entity.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, entity.RunStatePersisting, runErr.Stage)

	var storeErr *entity.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, entity.HalfRecord, storeErr.Half)
}

func TestExecute_DetectionFailureWritesNothing(t *testing.T) {
	cases := []struct {
		name string
		det  *fakeDetector
	}{
		{"detector unavailable", &fakeDetector{err: &entity.DetectionError{Err: errors.New("model weights unavailable")}}},
		{"stream error", &fakeDetector{
			frames:    []entity.FrameDetections{{box(0, 0, 1, 1)}},
			streamErr: errors.New("unsupported codec"),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.det)

			_, err := h.uc.Execute(context.Background(), videoRequest("Test"))
			var runErr *entity.RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, entity.RunStateDetecting, runErr.Stage)
			var detErr *entity.DetectionError
			assert.ErrorAs(t, err, &detErr)

			assert.Empty(t, h.store.order)
			assert.Equal(t, []string{"DETECTING"}, h.notifier.stages)
		})
	}
}

func TestExecute_CancelledDuringDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, &fakeDetector{streamErr: errors.New("signal: killed")})

	_, err := h.uc.Execute(ctx, videoRequest("Test"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var detErr *entity.DetectionError
	assert.False(t, errors.As(err, &detErr))
}

func TestExecute_Validation(t *testing.T) {
	h := newHarness(t, &fakeDetector{})

	cases := []struct {
		name string
		req  RunRequest
	}{
		{"blank name", RunRequest{DisplayName: "   ", Video: strings.NewReader("v")}},
		{"missing video", RunRequest{DisplayName: "Test"}},
		{"empty video", RunRequest{DisplayName: "Test", Video: strings.NewReader("")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.uc.Execute(context.Background(), tc.req)
			var valErr *entity.ValidationError
			require.ErrorAs(t, err, &valErr)
		})
	}
	assert.Empty(t, h.store.order)
}

func TestExecute_PrefersAnnotatedVideo(t *testing.T) {
	h := newHarness(t, &fakeDetector{
		frames:    []entity.FrameDetections{{box(0, 0, 1, 1)}},
		annotated: []byte("annotated-video"),
	})

	res, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)
	assert.True(t, res.AnnotatedVideo)

	ref, err := h.store.GetArtifactRef(context.Background(), fixedRunID, entity.SlotVideo)
	require.NoError(t, err)
	assert.Equal(t, []byte("annotated-video"), ref.Data)
}

func TestExecute_CleansUpWorkDir(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1)}}})

	_, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)

	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecute_PublishesStateTransitions(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1), box(1, 1, 2, 2)}}})

	_, err := h.uc.Execute(context.Background(), videoRequest("Test"))
	require.NoError(t, err)

	var states []entity.RunState
	for _, raw := range h.publisher.msgs {
		var msg entity.RunStatusMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, fixedRunID, msg.RunID)
		states = append(states, msg.State)
	}
	assert.Equal(t, []entity.RunState{
		entity.RunStateDetecting,
		entity.RunStateReducing,
		entity.RunStateRendering,
		entity.RunStatePersisting,
		entity.RunStateRecorded,
	}, states)
}

func TestSubmit_AwaitReachesTerminalState(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &fakeDetector{
		frames: []entity.FrameDetections{{box(0, 0, 10, 10)}, {box(10, 10, 20, 20)}},
		block:  block,
	})

	runID, err := h.uc.Submit(context.Background(), videoRequest("Test"))
	require.NoError(t, err)
	assert.Equal(t, fixedRunID, runID)

	st, ok := h.uc.Status(runID)
	require.True(t, ok)
	assert.False(t, st.State.Terminal())

	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err = h.uc.Await(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStateRecorded, st.State)
	assert.Equal(t, 2, st.Points)
	assert.True(t, st.PlotStored)

	h.uc.Wait()
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmit_ValidationIsSynchronous(t *testing.T) {
	h := newHarness(t, &fakeDetector{})

	_, err := h.uc.Submit(context.Background(), RunRequest{DisplayName: "", Video: strings.NewReader("v")})
	var valErr *entity.ValidationError
	require.ErrorAs(t, err, &valErr)
}

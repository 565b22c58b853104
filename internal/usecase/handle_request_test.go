package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spoolVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.mp4")
	require.NoError(t, os.WriteFile(path, []byte("raw-video"), 0644))
	return path
}

func requestBody(t *testing.T, name, path string) []byte {
	t.Helper()
	data, err := json.Marshal(entity.RunRequestMessage{RequestID: uuid.New(), DisplayName: name, VideoPath: path})
	require.NoError(t, err)
	return data
}

func TestHandleRequest_Success(t *testing.T) {
	h := newHarness(t, &fakeDetector{frames: []entity.FrameDetections{{box(0, 0, 1, 1)}}})
	dlq := &recordingDLQ{}
	uc := NewHandleRequestUseCase(h.uc, dlq, zap.NewNop())

	path := spoolVideo(t)
	require.NoError(t, uc.Execute(context.Background(), requestBody(t, "Test", path)))

	_, err := h.store.GetRecord(context.Background(), fixedRunID)
	require.NoError(t, err)
	assert.Empty(t, dlq.reasons)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "spooled video should be removed")
}

func TestHandleRequest_MalformedGoesToDLQ(t *testing.T) {
	h := newHarness(t, &fakeDetector{})
	dlq := &recordingDLQ{}
	uc := NewHandleRequestUseCase(h.uc, dlq, zap.NewNop())

	require.NoError(t, uc.Execute(context.Background(), []byte(`{invalid json`)))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "malformed")
}

func TestHandleRequest_MissingVideoGoesToDLQ(t *testing.T) {
	h := newHarness(t, &fakeDetector{})
	dlq := &recordingDLQ{}
	uc := NewHandleRequestUseCase(h.uc, dlq, zap.NewNop())

	require.NoError(t, uc.Execute(context.Background(), requestBody(t, "Test", "/nonexistent/upload.mp4")))
	require.NoError(t, uc.Execute(context.Background(), requestBody(t, "Test", "")))
	assert.Len(t, dlq.reasons, 2)
}

func TestHandleRequest_PermanentFailureKeepsSpool(t *testing.T) {
	h := newHarness(t, &fakeDetector{err: &entity.DetectionError{Err: errors.New("unsupported codec")}})
	dlq := &recordingDLQ{}
	uc := NewHandleRequestUseCase(h.uc, dlq, zap.NewNop())

	path := spoolVideo(t)
	require.NoError(t, uc.Execute(context.Background(), requestBody(t, "Test", path)))
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "unsupported codec")

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestHandleRequest_CancellationIsRedelivered(t *testing.T) {
	h := newHarness(t, &fakeDetector{streamErr: errors.New("signal: killed")})
	dlq := &recordingDLQ{}
	uc := NewHandleRequestUseCase(h.uc, dlq, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := uc.Execute(ctx, requestBody(t, "Test", spoolVideo(t)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dlq.reasons)
}

func TestPermanent(t *testing.T) {
	assert.True(t, Permanent(&entity.ValidationError{Field: "video", Reason: "is empty"}))
	assert.True(t, Permanent(&entity.RunError{Err: &entity.DetectionError{Err: errors.New("x")}}))
	assert.True(t, Permanent(&entity.RunError{Err: &entity.StorageError{Half: entity.HalfBlob, Err: errors.New("x")}}))
	assert.False(t, Permanent(errors.New("spool upload: disk full")))
	assert.False(t, Permanent(context.Canceled))
}

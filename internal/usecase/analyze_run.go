package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RunRequest struct {
	DisplayName string
	Video       io.Reader
}

type RunResult struct {
	Run            *entity.AnalysisRun
	Points         []entity.TrajectoryPoint
	PlotStored     bool
	AnnotatedVideo bool
	Warnings       []string
}

type AnalyzeRunUseCase struct {
	detector  port.FrameDetector
	renderer  port.PlotRenderer
	artifacts port.ArtifactStore
	catalog   *HistoryCatalog
	publisher port.StatusPublisher
	notifier  port.FailureNotifier
	tracker   *RunTracker
	logger    *zap.Logger
	tempDir   string
	now       func() time.Time
	wg        sync.WaitGroup
}

type AnalyzeRunConfig struct {
	TempDir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewAnalyzeRunUseCase wires the run pipeline. publisher and notifier may be nil
// when status events or failure mail are not configured.
func NewAnalyzeRunUseCase(
	detector port.FrameDetector,
	renderer port.PlotRenderer,
	artifacts port.ArtifactStore,
	catalog *HistoryCatalog,
	tracker *RunTracker,
	publisher port.StatusPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeRunConfig,
) *AnalyzeRunUseCase {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AnalyzeRunUseCase{
		detector:  detector,
		renderer:  renderer,
		artifacts: artifacts,
		catalog:   catalog,
		publisher: publisher,
		notifier:  notifier,
		tracker:   tracker,
		logger:    logger,
		tempDir:   cfg.TempDir,
		now:       now,
	}
}

// Execute runs the whole pipeline for req and returns once the run is Recorded
// or Aborted.
func (uc *AnalyzeRunUseCase) Execute(ctx context.Context, req RunRequest) (*RunResult, error) {
	run, workDir, videoPath, err := uc.accept(req)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	return uc.execute(ctx, run, uc.tracker.Begin(run), videoPath, workDir)
}

// Submit validates and spools req, then continues the run in the background.
// The returned run ID can be polled through Status or Await. The background run
// is detached from ctx cancellation so a disconnecting caller does not abort it.
func (uc *AnalyzeRunUseCase) Submit(ctx context.Context, req RunRequest) (string, error) {
	run, workDir, videoPath, err := uc.accept(req)
	if err != nil {
		return "", err
	}
	handle := uc.tracker.Begin(run)

	bg := context.WithoutCancel(ctx)
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		defer os.RemoveAll(workDir)
		_, _ = uc.execute(bg, run, handle, videoPath, workDir)
	}()

	return run.RunID, nil
}

func (uc *AnalyzeRunUseCase) Status(runID string) (entity.RunStatus, bool) {
	return uc.tracker.Status(runID)
}

func (uc *AnalyzeRunUseCase) Await(ctx context.Context, runID string) (entity.RunStatus, error) {
	return uc.tracker.Await(ctx, runID)
}

// Wait blocks until every submitted run has finished.
func (uc *AnalyzeRunUseCase) Wait() {
	uc.wg.Wait()
}

func (uc *AnalyzeRunUseCase) accept(req RunRequest) (*entity.AnalysisRun, string, string, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, "", "", &entity.ValidationError{Field: "display_name", Reason: "must not be empty"}
	}
	if req.Video == nil {
		return nil, "", "", &entity.ValidationError{Field: "video", Reason: "is required"}
	}

	run := entity.NewAnalysisRun(name, uc.now())

	if err := os.MkdirAll(uc.tempDir, 0755); err != nil {
		return nil, "", "", fmt.Errorf("create temp dir: %w", err)
	}
	workDir, err := os.MkdirTemp(uc.tempDir, run.RunID+"-")
	if err != nil {
		return nil, "", "", fmt.Errorf("create workdir: %w", err)
	}

	videoPath := filepath.Join(workDir, entity.VideoFileName)
	n, err := spool(req.Video, videoPath)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, "", "", fmt.Errorf("spool upload: %w", err)
	}
	if n == 0 {
		os.RemoveAll(workDir)
		return nil, "", "", &entity.ValidationError{Field: "video", Reason: "is empty"}
	}

	return run, workDir, videoPath, nil
}

func (uc *AnalyzeRunUseCase) execute(
	ctx context.Context,
	run *entity.AnalysisRun,
	handle *RunHandle,
	videoPath string,
	workDir string,
) (*RunResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeRunUseCase.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", run.RunID),
		attribute.String("run.name", run.DisplayName),
	)

	log := uc.logger.With(zap.String("run_id", run.RunID))
	totalTimer := time.Now()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	res := &RunResult{Run: run}

	// Detecting
	uc.transition(ctx, handle, entity.RunStateDetecting, nil, log)
	stageStart := time.Now()
	ctxDet, spanDet := tracer.Start(ctx, "detect")
	points, frames, annotated, err := uc.detect(ctxDet, videoPath, workDir)
	spanDet.End()
	if err != nil {
		return nil, uc.abort(ctx, run, handle, entity.RunStateDetecting, err, log)
	}
	metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(stageStart).Seconds())
	metrics.FramesDetectedTotal.Add(float64(frames))

	// Reducing happened frame by frame while the detector streamed
	uc.transition(ctx, handle, entity.RunStateReducing, nil, log)
	res.Points = points
	run.PointCount = len(res.Points)
	metrics.TrajectoryPoints.Observe(float64(run.PointCount))
	handle.Update(func(st *entity.RunStatus) { st.Points = run.PointCount })
	log.Info("trajectory reduced",
		zap.Int("frames", frames),
		zap.Int("points", run.PointCount),
	)

	// Rendering, only when the trajectory is drawable
	var plot *entity.PlotDocument
	if Drawable(res.Points) {
		uc.transition(ctx, handle, entity.RunStateRendering, nil, log)
		stageStart = time.Now()
		_, spanRender := tracer.Start(ctx, "render_plot")
		plot, err = uc.renderer.Render(res.Points)
		spanRender.End()
		if err != nil {
			log.Warn("plot rendering failed, continuing without plot", zap.Error(err))
			res.Warnings = append(res.Warnings, "trajectory plot rendering failed: "+err.Error())
			plot = nil
		}
		metrics.StageDuration.WithLabelValues("render").Observe(time.Since(stageStart).Seconds())
	} else {
		log.Info("not enough detections to draw a trajectory", zap.Int("points", run.PointCount))
	}

	// Persisting: video, then plot, then the history record last
	uc.transition(ctx, handle, entity.RunStatePersisting, nil, log)
	stageStart = time.Now()
	ctxPersist, spanPersist := tracer.Start(ctx, "persist")
	defer spanPersist.End()

	canonical := videoPath
	if annotated != "" {
		canonical = annotated
		res.AnnotatedVideo = true
	}
	if err := uc.putFile(ctxPersist, run.RunID, entity.SlotVideo, canonical, entity.VideoContentType); err != nil {
		return nil, uc.abort(ctx, run, handle, entity.RunStatePersisting, err, log)
	}

	if plot != nil {
		err := uc.artifacts.PutArtifact(ctxPersist, run.RunID, entity.SlotPlot,
			bytes.NewReader(plot.Body), int64(len(plot.Body)), plot.ContentType)
		if err != nil {
			log.Warn("plot upload failed, recording run without plot", zap.Error(err))
			res.Warnings = append(res.Warnings, "video saved, trajectory plot upload failed: "+err.Error())
		} else {
			res.PlotStored = true
		}
	}
	if !res.PlotStored {
		// a run recorded earlier under the same run ID may have left a plot behind
		if err := uc.artifacts.DeleteArtifact(ctxPersist, run.RunID, entity.SlotPlot); err != nil {
			log.Warn("failed to clear previous plot", zap.Error(err))
		}
	}

	if err := uc.catalog.Record(ctxPersist, run); err != nil {
		return nil, uc.abort(ctx, run, handle, entity.RunStatePersisting, err, log)
	}
	metrics.StageDuration.WithLabelValues("persist").Observe(time.Since(stageStart).Seconds())

	handle.Update(func(st *entity.RunStatus) {
		st.PlotStored = res.PlotStored
		st.Warnings = append(st.Warnings, res.Warnings...)
	})
	uc.transition(ctx, handle, entity.RunStateRecorded, nil, log)

	outcome := "recorded"
	if len(res.Warnings) > 0 {
		outcome = "recorded_with_warnings"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("run recorded",
		zap.Int("points", run.PointCount),
		zap.Bool("plot_stored", res.PlotStored),
		zap.Bool("annotated_video", res.AnnotatedVideo),
		zap.Strings("warnings", res.Warnings),
	)
	return res, nil
}

// detect feeds the detector stream straight into Reduce. Any failure other than
// cancellation of ctx is reported as a DetectionError.
func (uc *AnalyzeRunUseCase) detect(ctx context.Context, videoPath, workDir string) ([]entity.TrajectoryPoint, int, string, error) {
	stream, err := uc.detector.Detect(ctx, videoPath, workDir)
	if err != nil {
		return nil, 0, "", detectionFailure(ctx, err)
	}
	defer stream.Close()

	var (
		frames    int
		streamErr error
	)
	points := Reduce(func(yield func(entity.FrameDetections) bool) {
		for frame, err := range stream.Frames() {
			if err != nil {
				streamErr = err
				return
			}
			frames++
			if !yield(frame) {
				return
			}
		}
	})
	if streamErr != nil {
		return nil, 0, "", detectionFailure(ctx, streamErr)
	}

	annotated, ok := stream.AnnotatedVideo()
	if !ok {
		annotated = ""
	}
	return points, frames, annotated, nil
}

func detectionFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var detErr *entity.DetectionError
	if errors.As(err, &detErr) {
		return err
	}
	return &entity.DetectionError{Err: err}
}

func (uc *AnalyzeRunUseCase) putFile(ctx context.Context, runID string, slot entity.ArtifactSlot, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "open", RunID: runID, Slot: slot, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &entity.StorageError{Half: entity.HalfBlob, Op: "stat", RunID: runID, Slot: slot, Err: err}
	}
	return uc.artifacts.PutArtifact(ctx, runID, slot, f, info.Size(), contentType)
}

func (uc *AnalyzeRunUseCase) abort(
	ctx context.Context,
	run *entity.AnalysisRun,
	handle *RunHandle,
	stage entity.RunState,
	cause error,
	log *zap.Logger,
) error {
	runErr := &entity.RunError{RunID: run.RunID, Stage: stage, Err: cause}
	log.Error("run aborted", zap.String("stage", string(stage)), zap.Error(cause))
	metrics.RunsTotal.WithLabelValues("aborted").Inc()

	detached := context.WithoutCancel(ctx)
	uc.transition(detached, handle, entity.RunStateAborted, runErr, log)

	if uc.notifier != nil {
		if err := uc.notifier.NotifyFailure(detached, run.RunID, run.DisplayName, string(stage), cause.Error()); err != nil {
			log.Warn("failed to notify run failure", zap.Error(err))
		}
	}
	return runErr
}

func (uc *AnalyzeRunUseCase) transition(ctx context.Context, handle *RunHandle, state entity.RunState, cause error, log *zap.Logger) {
	st := handle.Update(func(st *entity.RunStatus) {
		st.State = state
		st.Err = cause
	})
	log.Debug("run state changed", zap.String("state", string(state)))

	if uc.publisher == nil {
		return
	}
	data, err := json.Marshal(entity.NewRunStatusMessage(st))
	if err != nil {
		log.Error("failed to encode status", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func spool(r io.Reader, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

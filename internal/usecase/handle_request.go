package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"go.uber.org/zap"
)

// HandleRequestUseCase adapts queued analysis requests to AnalyzeRunUseCase.
// Requests that can never succeed go to the DLQ and are acked; cancellation and
// unexpected failures are returned so the consumer redelivers the message.
type HandleRequestUseCase struct {
	analyze *AnalyzeRunUseCase
	dlq     port.DLQPublisher
	logger  *zap.Logger
}

func NewHandleRequestUseCase(analyze *AnalyzeRunUseCase, dlq port.DLQPublisher, logger *zap.Logger) *HandleRequestUseCase {
	return &HandleRequestUseCase{analyze: analyze, dlq: dlq, logger: logger}
}

func (uc *HandleRequestUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	var msg entity.RunRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("malformed analysis request", zap.Error(err))
		uc.deadLetter(ctx, rawMsg, "malformed message: "+err.Error())
		return nil
	}

	log := uc.logger.With(
		zap.String("request_id", msg.RequestID.String()),
		zap.String("display_name", msg.DisplayName),
	)

	if strings.TrimSpace(msg.VideoPath) == "" {
		uc.deadLetter(ctx, rawMsg, "video_path is required")
		return nil
	}
	f, err := os.Open(msg.VideoPath)
	if err != nil {
		log.Error("spooled video unreadable", zap.String("video_path", msg.VideoPath), zap.Error(err))
		uc.deadLetter(ctx, rawMsg, "video unreadable: "+err.Error())
		return nil
	}
	defer f.Close()

	res, err := uc.analyze.Execute(ctx, RunRequest{DisplayName: msg.DisplayName, Video: f})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("analysis interrupted: %w", err)
		}
		if Permanent(err) {
			uc.deadLetter(ctx, rawMsg, err.Error())
			return nil
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	f.Close()
	if err := os.Remove(msg.VideoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove spooled video", zap.Error(err))
	}
	log.Info("analysis request completed",
		zap.String("run_id", res.Run.RunID),
		zap.Int("points", res.Run.PointCount),
	)
	return nil
}

// Permanent reports whether retrying err with the same input cannot help.
func Permanent(err error) bool {
	var valErr *entity.ValidationError
	var detErr *entity.DetectionError
	var storeErr *entity.StorageError
	return errors.As(err, &valErr) || errors.As(err, &detErr) || errors.As(err, &storeErr)
}

func (uc *HandleRequestUseCase) deadLetter(ctx context.Context, rawMsg []byte, reason string) {
	if uc.dlq == nil {
		return
	}
	if err := uc.dlq.PublishToDLQ(context.WithoutCancel(ctx), rawMsg, reason); err != nil {
		uc.logger.Error("failed to publish to DLQ", zap.Error(err))
	}
}

package port

import (
	"context"
	"iter"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

// DetectionStream is the lazy output of one detector invocation. Frames may be
// ranged over once; AnnotatedVideo is only meaningful after Frames is drained.
type DetectionStream interface {
	Frames() iter.Seq2[entity.FrameDetections, error]
	AnnotatedVideo() (path string, ok bool)
	Close() error
}

type FrameDetector interface {
	Detect(ctx context.Context, videoPath string, workDir string) (DetectionStream, error)
}

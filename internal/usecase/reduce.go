package usecase

import (
	"iter"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

// Reduce folds per-frame detections into trajectory points: one centroid per box,
// in frame order and then in the order the detector reported the boxes. It never
// filters, deduplicates or fails.
func Reduce(frames iter.Seq[entity.FrameDetections]) []entity.TrajectoryPoint {
	points := []entity.TrajectoryPoint{}
	for frame := range frames {
		for _, box := range frame {
			points = append(points, box.Centroid())
		}
	}
	return points
}

// Drawable reports whether points are enough to plot a trajectory.
func Drawable(points []entity.TrajectoryPoint) bool {
	return len(points) >= 2
}

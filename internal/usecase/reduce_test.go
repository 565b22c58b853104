package usecase

import (
	"slices"
	"testing"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestReduce_OnePointPerBoxInOrder(t *testing.T) {
	frames := []entity.FrameDetections{
		{box(0, 0, 10, 20), box(10, 10, 30, 30)},
		{},
		{box(2, 4, 6, 8)},
	}

	points := Reduce(slices.Values(frames))

	assert.Equal(t, []entity.TrajectoryPoint{{X: 5, Y: 10}, {X: 20, Y: 20}, {X: 4, Y: 6}}, points)
}

func TestReduce_CountEqualsTotalBoxes(t *testing.T) {
	frames := []entity.FrameDetections{
		{box(0, 0, 1, 1)},
		{box(0, 0, 1, 1), box(0, 0, 1, 1), box(0, 0, 1, 1)},
		nil,
		{box(5, 5, 5, 5), box(0, 0, 0, 0)},
	}
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	assert.Len(t, Reduce(slices.Values(frames)), total)
}

func TestReduce_Empty(t *testing.T) {
	points := Reduce(slices.Values([]entity.FrameDetections(nil)))
	assert.NotNil(t, points)
	assert.Empty(t, points)

	points = Reduce(slices.Values([]entity.FrameDetections{{}, {}, {}}))
	assert.Empty(t, points)
}

func TestReduce_KeepsDuplicatesAndLowConfidence(t *testing.T) {
	low := entity.DetectionBox{X1: 0, Y1: 0, X2: 2, Y2: 2, Confidence: 0.01}
	points := Reduce(slices.Values([]entity.FrameDetections{{low, low}}))
	assert.Equal(t, []entity.TrajectoryPoint{{X: 1, Y: 1}, {X: 1, Y: 1}}, points)
}

func TestDrawable(t *testing.T) {
	assert.False(t, Drawable(nil))
	assert.False(t, Drawable([]entity.TrajectoryPoint{{X: 1, Y: 1}}))
	assert.True(t, Drawable([]entity.TrajectoryPoint{{X: 1, Y: 1}, {X: 1, Y: 1}}))
}

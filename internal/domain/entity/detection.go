package entity

// DetectionBox is one detector output for one frame, in image-pixel coordinates.
// The detector does not guarantee X1 < X2 or Y1 < Y2.
type DetectionBox struct {
	X1         float64
	Y1         float64
	X2         float64
	Y2         float64
	Confidence float64
}

// Centroid returns the geometric center of the box.
func (b DetectionBox) Centroid() TrajectoryPoint {
	return TrajectoryPoint{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// FrameDetections holds every box reported for a single decoded frame.
type FrameDetections []DetectionBox

type TrajectoryPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

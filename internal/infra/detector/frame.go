package detector

import (
	"encoding/json"
	"fmt"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

// frameLine is one line of detector output:
//
//	{"frame": 12, "boxes": [[x1, y1, x2, y2, conf], ...]}
type frameLine struct {
	Frame int         `json:"frame"`
	Boxes [][]float64 `json:"boxes"`
}

func ParseFrameLine(line []byte) (entity.FrameDetections, error) {
	var fl frameLine
	if err := json.Unmarshal(line, &fl); err != nil {
		return nil, fmt.Errorf("decode detector line: %w", err)
	}

	frame := make(entity.FrameDetections, 0, len(fl.Boxes))
	for i, b := range fl.Boxes {
		if len(b) < 4 {
			return nil, fmt.Errorf("frame %d box %d: want at least 4 coordinates, got %d", fl.Frame, i, len(b))
		}
		box := entity.DetectionBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]}
		if len(b) > 4 {
			box.Confidence = b[4]
		}
		frame = append(frame, box)
	}
	return frame, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

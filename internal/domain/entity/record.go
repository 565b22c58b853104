package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordTimeLayout is the created_at wire format shared by every backend.
const RecordTimeLayout = "2006-01-02T15:04:05Z"

// HistoryRecord is the queryable projection of an AnalysisRun.
type HistoryRecord struct {
	FolderName   string
	AnalysisName string
	CreatedAt    time.Time
	Points       int
}

type historyRecordJSON struct {
	FolderName   string `json:"folder_name"`
	AnalysisName string `json:"analysis_name"`
	CreatedAt    string `json:"created_at"`
	Points       int    `json:"points"`
}

func (r HistoryRecord) CreatedAtString() string {
	return FormatRecordTime(r.CreatedAt)
}

func (r HistoryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyRecordJSON{
		FolderName:   r.FolderName,
		AnalysisName: r.AnalysisName,
		CreatedAt:    r.CreatedAtString(),
		Points:       r.Points,
	})
}

func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	var raw historyRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	createdAt, err := ParseRecordTime(raw.CreatedAt)
	if err != nil {
		return err
	}
	if raw.Points < 0 {
		return fmt.Errorf("negative points %d", raw.Points)
	}
	*r = HistoryRecord{
		FolderName:   raw.FolderName,
		AnalysisName: raw.AnalysisName,
		CreatedAt:    createdAt,
		Points:       raw.Points,
	}
	return nil
}

func FormatRecordTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(RecordTimeLayout)
}

// ParseRecordTime accepts the canonical layout and, for records written by older
// clients, RFC 3339 with an offset or the bare "2006-01-02 15:04:05" form.
func ParseRecordTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{RecordTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}

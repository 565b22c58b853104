package entity

import (
	"strings"
	"time"
)

const runIDTimeLayout = "20060102_150405"

type AnalysisRun struct {
	RunID       string
	DisplayName string
	CreatedAt   time.Time
	PointCount  int
}

// NewAnalysisRun starts a run for displayName at now. The run ID is derived from
// the timestamp and the sanitized name, so it is never supplied by the caller.
func NewAnalysisRun(displayName string, now time.Time) *AnalysisRun {
	createdAt := now.UTC().Truncate(time.Second)
	return &AnalysisRun{
		RunID:       NewRunID(displayName, createdAt),
		DisplayName: displayName,
		CreatedAt:   createdAt,
	}
}

func (r *AnalysisRun) Record() HistoryRecord {
	return HistoryRecord{
		FolderName:   r.RunID,
		AnalysisName: r.DisplayName,
		CreatedAt:    r.CreatedAt,
		Points:       r.PointCount,
	}
}

// HasPlot reports whether the run's trajectory can be drawn.
func (r *AnalysisRun) HasPlot() bool {
	return r.PointCount >= 2
}

// NewRunID builds "<YYYYMMDD_HHMMSS>_<sanitized name>" in UTC.
func NewRunID(displayName string, at time.Time) string {
	safe := SanitizeName(displayName)
	if safe == "" {
		safe = "analysis"
	}
	return at.UTC().Format(runIDTimeLayout) + "_" + safe
}

// SanitizeName keeps only [A-Za-z0-9 _-], trims surrounding spaces and turns the
// remaining spaces into underscores. It is idempotent.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '-' || c == '_' || c == ' ':
			b.WriteRune(c)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}

// ValidRunID reports whether id is safe to use as a directory or object prefix.
func ValidRunID(id string) bool {
	return id != "" && !strings.ContainsRune(id, ' ') && SanitizeName(id) == id
}

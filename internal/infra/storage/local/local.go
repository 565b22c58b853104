package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	recordFileName = "record.json"
	writeTestFile  = ".write_test"
)

// ResolveRoot returns the first candidate directory that can be created and
// written to. It is meant to be called once at process start.
func ResolveRoot(candidates []string) (string, error) {
	var errs []error
	for _, dir := range candidates {
		abs, err := filepath.Abs(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
			continue
		}
		if err := probe(abs); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", abs, err))
			continue
		}
		return abs, nil
	}
	return "", fmt.Errorf("no writable persistence directory: %w", errors.Join(errs...))
}

func probe(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	test := filepath.Join(dir, writeTestFile)
	if err := os.WriteFile(test, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(test)
}

// Store keeps every run in its own directory under root:
//
//	<root>/<runId>/input.mp4
//	<root>/<runId>/trajectory_plot.html
//	<root>/<runId>/record.json
type Store struct {
	root   string
	logger *zap.Logger
}

func NewStore(root string, logger *zap.Logger) *Store {
	return &Store{root: root, logger: logger}
}

func (s *Store) Name() string { return "local" }

func (s *Store) Root() string { return s.root }

func (s *Store) runDir(runID string) (string, error) {
	if !entity.ValidRunID(runID) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.root, runID), nil
}

func (s *Store) PutArtifact(_ context.Context, runID string, slot entity.ArtifactSlot, body io.ReadSeeker, _ int64, _ string) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	return writeAtomic(filepath.Join(dir, slot.FileName()), body)
}

func (s *Store) GetArtifactRef(_ context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, slot.FileName())
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	contentType := entity.VideoContentType
	if slot == entity.SlotPlot {
		contentType = entity.PlotContentType
	}
	return entity.PathRef(slot, contentType, path), nil
}

func (s *Store) StatArtifact(_ context.Context, runID string, slot entity.ArtifactSlot) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return entity.ErrNotFound
	}
	if _, err := os.Stat(filepath.Join(dir, slot.FileName())); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entity.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) DeleteArtifact(_ context.Context, runID string, slot entity.ArtifactSlot) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, slot.FileName())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", slot, err)
	}
	return nil
}

func (s *Store) PutRecord(_ context.Context, rec entity.HistoryRecord) error {
	dir, err := s.runDir(rec.FolderName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return writeAtomic(filepath.Join(dir, recordFileName), strings.NewReader(string(data)))
}

func (s *Store) GetRecord(_ context.Context, runID string) (*entity.HistoryRecord, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, entity.ErrNotFound
	}
	rec, err := readRecord(filepath.Join(dir, recordFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListRecords(_ context.Context, limit int) ([]entity.HistoryRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read persistence root: %w", err)
	}

	records := make([]entity.HistoryRecord, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := readRecord(filepath.Join(s.root, e.Name(), recordFileName))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("skipping unreadable record", zap.String("run_id", e.Name()), zap.Error(err))
			}
			continue
		}
		if strings.TrimSpace(rec.AnalysisName) == "" {
			continue
		}
		records = append(records, *rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].FolderName > records[j].FolderName
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func readRecord(path string) (*entity.HistoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec entity.HistoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &rec, nil
}

// writeAtomic replaces path with the content of r so readers never observe a
// partially written file.
func writeAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	_ = tmp.Chmod(0644)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

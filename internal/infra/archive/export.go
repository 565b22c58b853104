package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
)

const RecordFileName = "record.json"

// Bundle is the content of one run export.
type Bundle struct {
	Record entity.HistoryRecord
	Video  *entity.ArtifactRef
	Plot   *entity.ArtifactRef
}

// WriteRunZip streams a zip holding the history record and every present
// artifact under their per-run file names.
func WriteRunZip(ctx context.Context, w io.Writer, b Bundle) error {
	zw := zip.NewWriter(w)

	if err := addRecord(zw, b.Record); err != nil {
		zw.Close()
		return err
	}

	for _, ref := range []*entity.ArtifactRef{b.Video, b.Plot} {
		if ref == nil {
			continue
		}
		select {
		case <-ctx.Done():
			zw.Close()
			return ctx.Err()
		default:
		}
		if err := addArtifact(ctx, zw, ref, b.Record.CreatedAt); err != nil {
			zw.Close()
			return fmt.Errorf("add %s to zip: %w", ref.Slot.FileName(), err)
		}
	}

	return zw.Close()
}

func addRecord(zw *zip.Writer, rec entity.HistoryRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	writer, err := zw.CreateHeader(&zip.FileHeader{
		Name:     RecordFileName,
		Method:   zip.Deflate,
		Modified: rec.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}

func addArtifact(ctx context.Context, zw *zip.Writer, ref *entity.ArtifactRef, modified time.Time) error {
	src, err := ref.Open(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	// mp4 is already compressed
	method := zip.Deflate
	if ref.Slot == entity.SlotVideo {
		method = zip.Store
	}
	writer, err := zw.CreateHeader(&zip.FileHeader{
		Name:     ref.Slot.FileName(),
		Method:   method,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, src)
	return err
}

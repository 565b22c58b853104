package entity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

type ArtifactSlot string

const (
	SlotVideo ArtifactSlot = "video"
	SlotPlot  ArtifactSlot = "plot"
)

const (
	VideoFileName = "input.mp4"
	PlotFileName  = "trajectory_plot.html"

	VideoContentType = "video/mp4"
	PlotContentType  = "text/html; charset=utf-8"
)

// FileName is the per-run file or object name used for the slot by every backend.
func (s ArtifactSlot) FileName() string {
	switch s {
	case SlotVideo:
		return VideoFileName
	case SlotPlot:
		return PlotFileName
	default:
		return string(s)
	}
}

func (s ArtifactSlot) Valid() bool {
	return s == SlotVideo || s == SlotPlot
}

type RefKind string

const (
	RefPath  RefKind = "path"
	RefURL   RefKind = "url"
	RefBytes RefKind = "bytes"
)

// ArtifactRef is a handle a video or HTML player can consume. The backend decides
// whether it is a local path, a URL or materialized bytes; callers go through Open.
type ArtifactRef struct {
	Slot        ArtifactSlot
	ContentType string
	Kind        RefKind
	Location    string
	Data        []byte
}

func PathRef(slot ArtifactSlot, contentType, path string) *ArtifactRef {
	return &ArtifactRef{Slot: slot, ContentType: contentType, Kind: RefPath, Location: path}
}

func URLRef(slot ArtifactSlot, contentType, url string) *ArtifactRef {
	return &ArtifactRef{Slot: slot, ContentType: contentType, Kind: RefURL, Location: url}
}

func BytesRef(slot ArtifactSlot, contentType string, data []byte) *ArtifactRef {
	return &ArtifactRef{Slot: slot, ContentType: contentType, Kind: RefBytes, Data: data}
}

// Open returns the artifact content regardless of the ref kind.
func (r *ArtifactRef) Open(ctx context.Context) (io.ReadCloser, error) {
	switch r.Kind {
	case RefPath:
		return os.Open(r.Location)
	case RefBytes:
		return io.NopCloser(bytes.NewReader(r.Data)), nil
	case RefURL:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Location, nil)
		if err != nil {
			return nil, fmt.Errorf("build artifact request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch artifact: unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unknown artifact ref kind %q", r.Kind)
	}
}

// PlotDocument is a rendered, self-contained trajectory chart.
type PlotDocument struct {
	ContentType string
	Body        []byte
}

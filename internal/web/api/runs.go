package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/archive"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func registerRuns(jsonAPI gin.IRouter, raw gin.IRouter, uc *Usecase) {
	jsonAPI.POST("/runs", uc.submitRun)
	jsonAPI.GET("/runs/:id", uc.getRun)
	jsonAPI.GET("/runs/:id/status", uc.getRunStatus)

	raw.GET("/runs/:id/video", uc.serveArtifact(entity.SlotVideo))
	raw.GET("/runs/:id/plot", uc.serveArtifact(entity.SlotPlot))
	raw.GET("/runs/:id/export", uc.exportRun)
}

type runStatusOutput struct {
	RunID       string          `json:"run_id"`
	DisplayName string          `json:"display_name,omitempty"`
	State       entity.RunState `json:"state"`
	Points      int             `json:"points"`
	PlotStored  bool            `json:"plot_stored"`
	Warnings    []string        `json:"warnings,omitempty"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
}

func newRunStatusOutput(st entity.RunStatus) runStatusOutput {
	out := runStatusOutput{
		RunID:       st.RunID,
		DisplayName: st.DisplayName,
		State:       st.State,
		Points:      st.Points,
		PlotStored:  st.PlotStored,
		Warnings:    st.Warnings,
		UpdatedAt:   st.UpdatedAt,
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	return out
}

type runOutput struct {
	Record   entity.HistoryRecord `json:"record"`
	VideoURL string               `json:"video_url"`
	PlotURL  string               `json:"plot_url,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

func runLinks(runID string) (video, plot string) {
	return fmt.Sprintf("/api/runs/%s/video", runID), fmt.Sprintf("/api/runs/%s/plot", runID)
}

func (uc *Usecase) submitRun(c *gin.Context) {
	if uc.MaxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uc.MaxUpload)
	}

	fh, err := c.FormFile("video")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		abortWithError(c, &entity.ValidationError{Field: "video", Reason: "multipart file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		abortWithError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	req := usecase.RunRequest{DisplayName: c.PostForm("name"), Video: f}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		runID, err := uc.Runs.Submit(c.Request.Context(), req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "state": entity.RunStateUploaded})
		return
	}

	res, err := uc.Runs.Execute(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := runOutput{Record: res.Run.Record(), Warnings: res.Warnings}
	out.VideoURL, out.PlotURL = runLinks(res.Run.RunID)
	if !res.PlotStored {
		out.PlotURL = ""
	}
	c.JSON(http.StatusCreated, out)
}

// getRunStatus answers from the in-memory tracker and falls back to the
// history catalog for runs the tracker no longer knows about.
func (uc *Usecase) getRunStatus(c *gin.Context) {
	runID := c.Param("id")
	if st, ok := uc.Runs.Status(runID); ok {
		c.JSON(http.StatusOK, newRunStatusOutput(st))
		return
	}

	sum, err := uc.Catalog.Summary(c.Request.Context(), runID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, runStatusOutput{
		RunID:       sum.Record.FolderName,
		DisplayName: sum.Record.AnalysisName,
		State:       entity.RunStateRecorded,
		Points:      sum.Record.Points,
		PlotStored:  sum.PlotStored,
	})
}

func (uc *Usecase) getRun(c *gin.Context) {
	sum, err := uc.Catalog.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := runOutput{Record: sum.Record}
	out.VideoURL, out.PlotURL = runLinks(sum.Record.FolderName)
	if !sum.PlotStored {
		out.PlotURL = ""
	}
	c.JSON(http.StatusOK, out)
}

func (uc *Usecase) serveArtifact(slot entity.ArtifactSlot) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := uc.Catalog.Artifact(c.Request.Context(), c.Param("id"), slot)
		if err != nil {
			abortWithError(c, err)
			return
		}
		writeRef(c, ref)
	}
}

func writeRef(c *gin.Context, ref *entity.ArtifactRef) {
	switch ref.Kind {
	case entity.RefPath:
		c.Header("Content-Type", ref.ContentType)
		c.File(ref.Location)
	case entity.RefURL:
		c.Redirect(http.StatusFound, ref.Location)
	case entity.RefBytes:
		c.Data(http.StatusOK, ref.ContentType, ref.Data)
	default:
		abortWithError(c, fmt.Errorf("unsupported artifact ref kind %q", ref.Kind))
	}
}

func (uc *Usecase) exportRun(c *gin.Context) {
	view, err := uc.Catalog.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, view.Record.FolderName))
	c.Status(http.StatusOK)

	err = archive.WriteRunZip(c.Request.Context(), c.Writer, archive.Bundle{
		Record: view.Record,
		Video:  view.Video,
		Plot:   view.Plot,
	})
	if err != nil {
		// headers are already sent; the client sees a truncated archive
		uc.Logger.Error("run export failed", zap.String("run_id", view.Record.FolderName), zap.Error(err))
	}
}

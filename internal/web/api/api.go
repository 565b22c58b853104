package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/usecase"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunService starts runs and reports their progress.
type RunService interface {
	Execute(ctx context.Context, req usecase.RunRequest) (*usecase.RunResult, error)
	Submit(ctx context.Context, req usecase.RunRequest) (string, error)
	Status(runID string) (entity.RunStatus, bool)
}

// RunCatalog resolves recorded runs and the history list. Summary must not read
// artifact content; Artifact resolves one slot only.
type RunCatalog interface {
	Execute(ctx context.Context, runID string) (*usecase.RunView, error)
	Summary(ctx context.Context, runID string) (*usecase.RunSummary, error)
	Artifact(ctx context.Context, runID string, slot entity.ArtifactSlot) (*entity.ArtifactRef, error)
	List(ctx context.Context, query string) ([]entity.HistoryRecord, error)
}

type Usecase struct {
	Runs      RunService
	Catalog   RunCatalog
	Backend   string
	MaxUpload int64
	Logger    *zap.Logger
}

func NewRouter(uc *Usecase) *gin.Engine {
	r := gin.New()
	setupRouter(r, uc)
	return r
}

func setupRouter(r *gin.Engine, uc *Usecase) {
	r.Use(
		gin.CustomRecovery(func(c *gin.Context, err any) {
			uc.Logger.Error("panic", zap.Any("err", err), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		requestLogger(uc.Logger),
	)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Origin",
			"Cache-Control", "X-Requested-With",
		},
		MaxAge: 12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	r.GET("/health", uc.getHealth)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	// artifacts are served uncompressed; mp4 and zip gain nothing from gzip
	api := r.Group("/api")
	jsonAPI := api.Group("", gzip.Gzip(gzip.DefaultCompression))

	registerRuns(jsonAPI, api, uc)
	registerHistory(jsonAPI, uc)
}

func (uc *Usecase) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": uc.Backend})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.Method == http.MethodOptions {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var valErr *entity.ValidationError
	var detErr *entity.DetectionError
	var storeErr *entity.StorageError
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &detErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storeErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var runErr *entity.RunError
	if errors.As(err, &runErr) {
		body["run_id"] = runErr.RunID
		body["stage"] = runErr.Stage
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}

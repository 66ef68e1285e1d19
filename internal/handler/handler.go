package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/domain"
	"github.com/qaisarrafique/image-vectorizer/internal/repository"
	"github.com/qaisarrafique/image-vectorizer/internal/service"
	"github.com/qaisarrafique/image-vectorizer/internal/tools"
)

const downloadName = "vectorized_outputs.zip"

type Handler struct {
	pipeline service.Pipeline
	prober   tools.Prober
	store    repository.ArchiveStore // nil unless S3 archiving is enabled
	cfg      *config.Config
	log      *zap.Logger
}

func NewHandler(pipeline service.Pipeline, prober tools.Prober, store repository.ArchiveStore, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		prober:   prober,
		store:    store,
		cfg:      cfg,
		log:      log,
	}
}

// HealthCheck reports external tool availability.
func (h *Handler) HealthCheck(c *gin.Context) {
	deps := h.prober.Dependencies(c.Request.Context())
	ready, _ := tools.Ready(deps)

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"dependencies": deps,
		"ready":        ready,
	})
}

// ProcessImages accepts multipart uploads and streams back the result ZIP.
func (h *Handler) ProcessImages(c *gin.Context) {
	deps := h.prober.Dependencies(c.Request.Context())
	if ready, missing := tools.Ready(deps); !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":        "missing external dependency: " + missing,
			"dependencies": deps,
		})
		return
	}

	settings, err := h.parseSettings(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uploads, err := h.readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.cfg.Server.RequestTimeout)*time.Second)
		defer cancel()
	}

	batch, archive, err := h.pipeline.Process(ctx, uploads, settings)
	if err != nil {
		h.respondError(c, batch, err)
		return
	}

	if h.store != nil {
		archiveID := uuid.New().String()
		if err := h.store.Save(ctx, archiveID, archive); err != nil {
			// Archiving is best effort; the response still carries the ZIP.
			h.log.Warn("failed to store archive", zap.String("id", archiveID), zap.Error(err))
		} else {
			c.Header("X-Archive-Id", archiveID)
		}
	}

	c.Header("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	c.Data(http.StatusOK, "application/zip", archive)
}

// ListArchives returns the IDs of stored archives. Only routed when the
// archive store is enabled.
func (h *Handler) ListArchives(c *gin.Context) {
	ids, err := h.store.List(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list archives", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list archives"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": ids})
}

// DownloadArchive re-downloads a stored archive by ID.
func (h *Handler) DownloadArchive(c *gin.Context) {
	id := c.Param("id")
	rc, err := h.store.Open(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive not found"})
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+id+`.zip"`)
	c.Header("Content-Type", "application/zip")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Error("failed to stream archive", zap.String("id", id), zap.Error(err))
	}
}

func (h *Handler) parseSettings(c *gin.Context) (domain.Settings, error) {
	settings := domain.Settings{
		Threshold:     h.cfg.Pipeline.DefaultThreshold,
		IncludeEPS:    true,
		GroupByPrefix: true,
	}

	if v := c.PostForm("threshold"); v != "" {
		t, err := strconv.Atoi(v)
		if err != nil {
			return settings, domain.InvalidInput("threshold must be an integer", err)
		}
		settings.Threshold = t
	}
	if v := c.PostForm("include_eps"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return settings, domain.InvalidInput("include_eps must be a boolean", err)
		}
		settings.IncludeEPS = b
	}
	if v := c.PostForm("group_by_prefix"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return settings, domain.InvalidInput("group_by_prefix must be a boolean", err)
		}
		settings.GroupByPrefix = b
	}

	return settings, nil
}

func (h *Handler) readUploads(c *gin.Context) ([]domain.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.InvalidInput("invalid multipart form", err)
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, domain.InvalidInput("no files uploaded", nil)
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, domain.InvalidInput("failed to open uploaded file "+fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, domain.InvalidInput("failed to read uploaded file "+fh.Filename, err)
		}

		uploads = append(uploads, domain.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return uploads, nil
}

func (h *Handler) respondError(c *gin.Context, batch *domain.BatchResult, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput, domain.KindInvalidThreshold, domain.KindUnsupportedFormat:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.KindAggregateFailure:
		body := gin.H{"error": err.Error()}
		if batch != nil {
			body["files"] = batch.Files
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case domain.KindToolUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			h.log.Warn("request canceled", zap.Error(err))
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request canceled or timed out"})
			return
		}
		h.log.Error("processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process images"})
	}
}

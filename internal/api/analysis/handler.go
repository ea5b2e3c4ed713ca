package analysis

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/domain"
	"github.com/csvpilot/csvpilot/internal/service"
	"github.com/csvpilot/csvpilot/internal/store"
)

// Handler handles analysis API requests
type Handler struct {
	analysisService *service.AnalysisService
	files           *store.FileStore
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(analysisService *service.AnalysisService, files *store.FileStore, maxUploadBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		analysisService: analysisService,
		files:           files,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// RegisterRoutes registers analysis routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/upload", h.Upload)
	r.POST("/analyze", h.Analyze)
	r.GET("/files/:id", h.DownloadFile)

	sessions := r.Group("/sessions")
	{
		sessions.GET("/:id/export", h.Export)
		sessions.GET("/:id/history", h.History)
		sessions.POST("/delete", h.DeleteSession)
	}
}

// Upload accepts a multipart CSV upload, profiles it and opens a session.
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.writeError(c, &domain.ValidationError{
			Code:    domain.ValidationMissingField,
			Message: "multipart field 'file' is required",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.writeError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer src.Close()

	// Read one byte past the limit so oversized uploads are rejected by
	// the sniffer's size check instead of being silently truncated.
	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	resp, err := h.analysisService.Upload(c.Request.Context(), file.Filename, data, file.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Analyze drives one analysis run and returns the extracted manifest.
func (h *Handler) Analyze(c *gin.Context) {
	var req domain.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, &domain.ValidationError{
			Code:    domain.ValidationMissingField,
			Message: err.Error(),
		})
		return
	}

	resp, err := h.analysisService.Analyze(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DownloadFile serves a stored artifact as an attachment with caching
// headers; the artifact's checksum doubles as a strong ETag.
func (h *Handler) DownloadFile(c *gin.Context) {
	id := c.Param("id")

	meta, ok := h.files.GetFileMetadata(id)
	if !ok {
		h.writeError(c, &domain.NotFoundError{Resource: "file", ID: id})
		return
	}

	etag := `"` + meta.Checksum + `"`
	c.Header("Cache-Control", "private, max-age=3600")
	c.Header("ETag", etag)

	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	if !h.files.VerifyFileIntegrity(id) {
		h.writeError(c, &domain.IntegrityError{FileID: id})
		return
	}

	data, ok := h.files.GetFile(id)
	if !ok {
		h.writeError(c, &domain.NotFoundError{Resource: "file content", ID: id})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.OriginalName))
	c.Header("Content-Length", fmt.Sprintf("%d", meta.Size))
	c.Data(http.StatusOK, meta.MimeType, data)
}

// Export bundles the session's artifacts into a zip download.
func (h *Handler) Export(c *gin.Context) {
	archive, filename, err := h.analysisService.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", archive)
}

// History lists the session's recorded runs.
func (h *Handler) History(c *gin.Context) {
	records, err := h.analysisService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

// DeleteSession removes a session and all of its artifacts after an exact
// confirmation phrase match.
func (h *Handler) DeleteSession(c *gin.Context) {
	var req domain.DeleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, &domain.ValidationError{
			Code:    domain.ValidationMissingField,
			Message: err.Error(),
		})
		return
	}

	resp, err := h.analysisService.DeleteSession(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// writeError maps the error taxonomy onto HTTP statuses. Validation and
// not-found errors carry their message to the client; everything else is
// logged with context and surfaced as a non-leaking 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		body := gin.H{"type": "validation_error", "message": validationErr.Message}
		if validationErr.Details != nil {
			body["details"] = validationErr.Details
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	var notFoundErr *domain.NotFoundError
	if errors.As(err, &notFoundErr) {
		c.JSON(http.StatusNotFound, gin.H{"type": "not_found", "message": notFoundErr.Error()})
		return
	}

	if h.logger != nil {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"type":    "internal_error",
		"message": "internal server error",
	})
}

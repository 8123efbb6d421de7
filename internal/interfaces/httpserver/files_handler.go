package httpserver

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/file"
)

// maxUploadBytes caps multipart uploads at 512 MiB.
const maxUploadBytes = 512 << 20

// FilesHandler serves the /v1/files surface.
type FilesHandler struct {
	storage file.Storage
	logger  zerolog.Logger
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(storage file.Storage, logger zerolog.Logger) *FilesHandler {
	return &FilesHandler{
		storage: storage,
		logger:  logger.With().Str("component", "files-handler").Logger(),
	}
}

// Upload handles POST /v1/files with multipart form fields file and purpose.
func (h *FilesHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		writeError(c, apierror.Validation("file field is required"))
		return
	}
	purpose := c.PostForm("purpose")
	if purpose == "" {
		writeError(c, apierror.Validation("purpose field is required"))
		return
	}

	src, err := header.Open()
	if err != nil {
		writeError(c, apierror.Internal("open upload: %v", err))
		return
	}
	defer src.Close()

	record, err := h.storage.Save(c.Request.Context(), header.Filename, purpose, src)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info().Str("file_id", record.ID).Int64("bytes", record.Bytes).Msg("file uploaded")
	c.JSON(http.StatusOK, record)
}

// Get handles GET /v1/files/:id.
func (h *FilesHandler) Get(c *gin.Context) {
	record, err := h.storage.Stat(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// List handles GET /v1/files, newest first.
func (h *FilesHandler) List(c *gin.Context) {
	records, err := h.storage.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt > records[j].CreatedAt })
	if records == nil {
		records = []*file.File{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": records})
}

// Delete handles DELETE /v1/files/:id.
func (h *FilesHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.storage.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"object":  "file",
		"deleted": true,
	})
}

// Content handles GET /v1/files/:id/content, streaming the raw bytes.
func (h *FilesHandler) Content(c *gin.Context) {
	id := c.Param("id")
	record, err := h.storage.Stat(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	reader, err := h.storage.Content(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	defer reader.Close()

	contentType := record.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+record.Filename+`"`)
	c.DataFromReader(http.StatusOK, record.Bytes, contentType, reader, nil)
}

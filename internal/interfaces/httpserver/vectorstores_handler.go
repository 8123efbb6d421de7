package httpserver

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/vectorstore"
)

// VectorStoresHandler serves the /v1/vector_stores surface.
type VectorStoresHandler struct {
	service *vectorstore.Service
	logger  zerolog.Logger
}

// NewVectorStoresHandler creates a VectorStoresHandler.
func NewVectorStoresHandler(service *vectorstore.Service, logger zerolog.Logger) *VectorStoresHandler {
	return &VectorStoresHandler{
		service: service,
		logger:  logger.With().Str("component", "vectorstores-handler").Logger(),
	}
}

type createStoreRequest struct {
	Name             string                        `json:"name"`
	Metadata         map[string]string             `json:"metadata"`
	FileIDs          []string                      `json:"file_ids"`
	ChunkingStrategy *vectorstore.ChunkingStrategy `json:"chunking_strategy"`
	ExpiresAfter     *vectorstore.ExpiresAfter     `json:"expires_after"`
}

// Create handles POST /v1/vector_stores.
func (h *VectorStoresHandler) Create(c *gin.Context) {
	var req createStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	store, err := h.service.CreateStore(c.Request.Context(), vectorstore.CreateStoreParams{
		Name:             req.Name,
		Metadata:         req.Metadata,
		FileIDs:          req.FileIDs,
		ChunkingStrategy: req.ChunkingStrategy,
		ExpiresAfter:     req.ExpiresAfter,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, store)
}

// Get handles GET /v1/vector_stores/:id.
func (h *VectorStoresHandler) Get(c *gin.Context) {
	store, err := h.service.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, store)
}

type updateStoreRequest struct {
	Name         *string                   `json:"name"`
	Metadata     map[string]string         `json:"metadata"`
	ExpiresAfter *vectorstore.ExpiresAfter `json:"expires_after"`
}

// Update handles POST /v1/vector_stores/:id.
func (h *VectorStoresHandler) Update(c *gin.Context) {
	var req updateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	store, err := h.service.UpdateStore(c.Request.Context(), c.Param("id"), vectorstore.UpdateStoreParams{
		Name:         req.Name,
		Metadata:     req.Metadata,
		ExpiresAfter: req.ExpiresAfter,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, store)
}

// Delete handles DELETE /v1/vector_stores/:id.
func (h *VectorStoresHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteStore(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"object":  "vector_store.deleted",
		"deleted": true,
	})
}

// List handles GET /v1/vector_stores, newest first.
func (h *VectorStoresHandler) List(c *gin.Context) {
	stores, err := h.service.ListStores(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].CreatedAt > stores[j].CreatedAt })
	if stores == nil {
		stores = []*vectorstore.VectorStore{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": stores})
}

type searchStoreRequest struct {
	Query          string                      `json:"query"`
	MaxNumResults  int                         `json:"max_num_results"`
	Filters        *vectorstore.Filter         `json:"filters"`
	RankingOptions *vectorstore.RankingOptions `json:"ranking_options"`
	RewriteQuery   bool                        `json:"rewrite_query"`
}

// Search handles POST /v1/vector_stores/:id/search.
func (h *VectorStoresHandler) Search(c *gin.Context) {
	var req searchStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	resp, err := h.service.Search(c.Request.Context(), vectorstore.SearchQuery{
		Query:          req.Query,
		VectorStoreIDs: []string{c.Param("id")},
		MaxNumResults:  req.MaxNumResults,
		Filters:        req.Filters,
		RankingOptions: req.RankingOptions,
		RewriteQuery:   req.RewriteQuery,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type attachFileRequest struct {
	FileID           string                        `json:"file_id"`
	ChunkingStrategy *vectorstore.ChunkingStrategy `json:"chunking_strategy"`
	Attributes       map[string]any                `json:"attributes"`
}

// AttachFile handles POST /v1/vector_stores/:id/files.
func (h *VectorStoresHandler) AttachFile(c *gin.Context) {
	var req attachFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	if req.FileID == "" {
		writeError(c, apierror.Validation("file_id is required"))
		return
	}
	storeFile, err := h.service.AttachFile(c.Request.Context(), c.Param("id"), vectorstore.AttachFileParams{
		FileID:           req.FileID,
		ChunkingStrategy: req.ChunkingStrategy,
		Attributes:       req.Attributes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, storeFile)
}

// ListFiles handles GET /v1/vector_stores/:id/files.
func (h *VectorStoresHandler) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if files == nil {
		files = []*vectorstore.StoreFile{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": files})
}

// GetFile handles GET /v1/vector_stores/:id/files/:file_id.
func (h *VectorStoresHandler) GetFile(c *gin.Context) {
	storeFile, err := h.service.GetFile(c.Request.Context(), c.Param("id"), c.Param("file_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, storeFile)
}

type updateFileRequest struct {
	Attributes map[string]any `json:"attributes"`
}

// UpdateFile handles POST /v1/vector_stores/:id/files/:file_id, replacing
// file attributes.
func (h *VectorStoresHandler) UpdateFile(c *gin.Context) {
	var req updateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	storeFile, err := h.service.UpdateFileAttributes(c.Request.Context(), c.Param("id"), c.Param("file_id"), req.Attributes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, storeFile)
}

// DetachFile handles DELETE /v1/vector_stores/:id/files/:file_id.
func (h *VectorStoresHandler) DetachFile(c *gin.Context) {
	fileID := c.Param("file_id")
	if err := h.service.DetachFile(c.Request.Context(), c.Param("id"), fileID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      fileID,
		"object":  "vector_store.file.deleted",
		"deleted": true,
	})
}

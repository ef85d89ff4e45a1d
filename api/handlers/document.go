package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/pkg/logger"
)

type DocumentHandler struct {
	service document.Service
	logger  logger.Logger
}

func NewDocumentHandler(service document.Service, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: log.Named("http")}
}

// Upload accepts a multipart file and queues it for ingestion.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, "Invalid file upload", models.ErrInvalidInput)
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(c.Request.Context(), document.UploadRequest{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		h.logger.Error("Upload failed", logger.String("filename", header.Filename), logger.Error(err))
		writeError(c, "Failed to upload document", err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Status returns just the lifecycle fields, for cheap polling.
func (h *DocumentHandler) Status(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "Failed to get document status", err)
		return
	}
	resp := gin.H{
		"id":     doc.ID,
		"status": doc.Status,
	}
	if doc.Status == models.StatusFailed {
		resp["failureStage"] = doc.FailureStage
		resp["failureReason"] = doc.FailureReason
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) List(c *gin.Context) {
	filter := store.ListFilter{
		Skip:         intQuery(c, "skip", 0),
		Limit:        intQuery(c, "limit", 10),
		DocumentType: c.Query("documentType"),
		Status:       models.DocumentStatus(c.Query("status")),
	}
	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, "Failed to list documents", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, "Failed to delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	doc, err := h.service.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "Failed to reprocess document", err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

type searchRequest struct {
	Query        string  `json:"query"`
	TopK         int     `json:"topK"`
	MinScore     float64 `json:"minScore"`
	DocumentType string  `json:"documentType"`
}

func (h *DocumentHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "Invalid search request", models.ErrInvalidInput)
		return
	}
	results, err := h.service.Search(c.Request.Context(), retrieval.Query{
		Text:         req.Query,
		TopK:         req.TopK,
		MinScore:     req.MinScore,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		writeError(c, "Search failed", err)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   req.Query,
		"results": results,
		"total":   len(results),
	})
}

// SupportedTypes lists the classification labels and accepted upload
// extensions.
func (h *DocumentHandler) SupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"documentTypes":  models.DocumentTypes,
		"fileExtensions": h.service.SupportedExtensions(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// Package handlers exposes the HTTP surface over gin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/pkg/logger"
)

// Handlers bundles every HTTP handler group.
type Handlers struct {
	Document *DocumentHandler
	Chat     *ChatHandler
}

func New(docService document.Service, chatService chat.Service, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(docService, log),
		Chat:     NewChatHandler(chatService, log),
	}
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyProcessing):
		status = http.StatusConflict
	case errors.Is(err, models.ErrRetrievalUnavailable):
		status = http.StatusServiceUnavailable
	}

	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(status, resp)
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

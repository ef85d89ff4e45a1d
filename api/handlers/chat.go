package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/pkg/logger"
)

type ChatHandler struct {
	service chat.Service
	logger  logger.Logger
}

func NewChatHandler(service chat.Service, log logger.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: log.Named("http")}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	// Body is optional; an empty one means default title.
	_ = c.ShouldBindJSON(&req)

	session, err := h.service.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, "Failed to create session", err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "Failed to get session", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.service.ListSessions(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, "Failed to delete session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

type sendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "Invalid message", models.ErrInvalidInput)
		return
	}
	msg, err := h.service.SendMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		h.logger.Error("Send message failed", logger.String("sessionId", c.Param("id")), logger.Error(err))
		writeError(c, "Failed to send message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) Suggestions(c *gin.Context) {
	suggestions, err := h.service.Suggestions(c.Request.Context(), c.Param("id"), c.Query("lastText"))
	if err != nil {
		writeError(c, "Failed to get suggestions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *ChatHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, "Failed to summarize session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

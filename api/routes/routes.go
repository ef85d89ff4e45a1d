package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/api/handlers"
	"github.com/docuchat/docuchat/api/middleware"
)

// SetupRoutes wires every endpoint onto the engine.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handlers.HealthCheck)

	docs := v1.Group("/documents")
	{
		docs.POST("/upload", h.Document.Upload)
		docs.GET("", h.Document.List)
		docs.GET("/supported-types", h.Document.SupportedTypes)
		docs.POST("/search", h.Document.Search)
		docs.GET("/:id", h.Document.Get)
		docs.GET("/:id/status", h.Document.Status)
		docs.POST("/:id/reprocess", h.Document.Reprocess)
		docs.DELETE("/:id", h.Document.Delete)
	}

	sessions := v1.Group("/chat/sessions")
	{
		sessions.POST("", h.Chat.CreateSession)
		sessions.GET("", h.Chat.ListSessions)
		sessions.GET("/:id", h.Chat.GetSession)
		sessions.DELETE("/:id", h.Chat.DeleteSession)
		sessions.POST("/:id/messages", h.Chat.SendMessage)
		sessions.GET("/:id/suggestions", h.Chat.Suggestions)
		sessions.GET("/:id/summary", h.Chat.Summary)
	}
}

package chat

import (
	"context"

	"github.com/docuchat/docuchat/internal/models"
)

// Service manages chat sessions and grounded question answering.
type Service interface {
	// CreateSession starts a new conversation. An empty title gets a default.
	CreateSession(ctx context.Context, title string) (*models.ChatSession, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	// SendMessage appends the user's message, retrieves supporting chunks,
	// and returns the generated assistant message. Generation failures are
	// absorbed into a fallback assistant message rather than returned as
	// errors; message order within a session is always user then assistant.
	SendMessage(ctx context.Context, sessionID, content string) (*models.Message, error)
	// Suggestions proposes follow-up questions for the session. lastText,
	// when non-empty, is the caller's most recent answer text to pivot from.
	Suggestions(ctx context.Context, sessionID, lastText string) ([]string, error)
	// Summary produces a short summary of the conversation so far.
	Summary(ctx context.Context, sessionID string) (string, error)
}

package models

import (
	"time"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Source attributes part of an answer to a retrieved chunk.
type Source struct {
	Filename     string  `json:"filename"`
	DocumentType string  `json:"documentType"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
}

// Message is one turn in a chat session. Messages are immutable once appended;
// Sources and Confidence are set only for assistant messages.
type Message struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionId"`
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Sources    []Source    `json:"sources,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// ChatSession is an append-only conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

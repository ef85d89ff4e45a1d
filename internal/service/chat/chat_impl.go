package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/retrieval"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/pkg/logger"
)

const (
	defaultSessionTitle = "New Chat"

	// Answer confidence depends on whether grounding sources were found.
	confidenceWithSources    = 0.8
	confidenceWithoutSources = 0.3

	fallbackAnswer = "I'm sorry, I couldn't generate an answer right now. Please try again."
)

var defaultSuggestions = []string{
	"What documents have been uploaded?",
	"Summarize the most recent document.",
	"What are the key dates mentioned in the documents?",
}

type ServiceConfig struct {
	HistoryMessages int
	ContextBudget   int
	TopK            int
	GenTimeout      time.Duration
}

func (c *ServiceConfig) defaults() {
	if c.HistoryMessages <= 0 {
		c.HistoryMessages = 5
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 6000
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
}

type ChatService struct {
	sessions  store.SessionStore
	retriever *retrieval.Engine
	gen       ai.Generator
	logger    logger.Logger
	config    ServiceConfig

	// Per-session locks serialize SendMessage so transcripts interleave in
	// strict user/assistant pairs.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(
	sessions store.SessionStore,
	retriever *retrieval.Engine,
	gen ai.Generator,
	log logger.Logger,
	cfg ServiceConfig,
) Service {
	cfg.defaults()
	return &ChatService{
		sessions:  sessions,
		retriever: retriever,
		gen:       gen,
		logger:    log.Named("chat"),
		config:    cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *ChatService) CreateSession(ctx context.Context, title string) (*models.ChatSession, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultSessionTitle
	}
	now := time.Now().UTC()
	session := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("Chat session created", logger.String("sessionId", session.ID))
	return session, nil
}

func (s *ChatService) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	return s.sessions.GetSession(ctx, id)
}

func (s *ChatService) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	return sessions, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	s.logger.Info("Chat session deleted", logger.String("sessionId", id))
	return nil
}

func (s *ChatService) SendMessage(ctx context.Context, sessionID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", models.ErrInvalidInput)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	sources := s.retrieve(ctx, content)
	answer, confidence := s.generate(ctx, session.Messages, content, sources)

	assistantMsg := &models.Message{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Role:       models.RoleAssistant,
		Content:    answer,
		Sources:    sources,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.sessions.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	return assistantMsg, nil
}

// retrieve fetches grounding chunks. Retrieval being down degrades the chat
// to an ungrounded answer rather than failing the request.
func (s *ChatService) retrieve(ctx context.Context, query string) []models.Source {
	results, err := s.retriever.Search(ctx, retrieval.Query{Text: query, TopK: s.config.TopK})
	if err != nil {
		if errors.Is(err, models.ErrRetrievalUnavailable) {
			s.logger.Warn("Retrieval unavailable, answering without sources", logger.Error(err))
			return nil
		}
		s.logger.Error("Retrieval failed", logger.Error(err))
		return nil
	}
	sources := make([]models.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, models.Source{
			Filename:     r.Chunk.Filename,
			DocumentType: r.Chunk.DocumentType,
			Content:      r.Chunk.Text,
			Score:        r.Score,
		})
	}
	return sources
}

func (s *ChatService) generate(ctx context.Context, history []models.Message, question string, sources []models.Source) (string, float64) {
	if s.config.GenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.GenTimeout)
		defer cancel()
	}
	answer, err := s.gen.Generate(ctx, s.buildPrompt(history, question, sources))
	if err != nil {
		s.logger.Error("Answer generation failed", logger.Error(err))
		return fallbackAnswer, 0
	}
	if len(sources) > 0 {
		return answer, confidenceWithSources
	}
	return answer, confidenceWithoutSources
}

func (s *ChatService) buildPrompt(history []models.Message, question string, sources []models.Source) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions about the user's documents.\n")
	b.WriteString("Base your answer on the provided document excerpts. If they don't contain the answer, say so.\n\n")

	if len(sources) > 0 {
		b.WriteString("Document excerpts:\n")
		// Budget is counted in runes to match truncate.
		budget := s.config.ContextBudget
		for i, src := range sources {
			if budget <= 0 {
				break
			}
			excerpt := truncate(src.Content, budget)
			fmt.Fprintf(&b, "[%d] %s (%s):\n%s\n\n", i+1, src.Filename, src.DocumentType, excerpt)
			budget -= len([]rune(excerpt))
		}
	}

	if n := len(history); n > 0 {
		start := n - s.config.HistoryMessages
		if start < 0 {
			start = 0
		}
		b.WriteString("Conversation so far:\n")
		for _, m := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", question)
	return b.String()
}

func (s *ChatService) Suggestions(ctx context.Context, sessionID, lastText string) ([]string, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(session.Messages) == 0 && lastText == "" {
		return defaultSuggestions, nil
	}

	var b strings.Builder
	b.WriteString("Based on this conversation about the user's documents, suggest 3 short follow-up questions.\n")
	b.WriteString("Return them as a numbered list, one per line.\n\nConversation:\n")
	start := len(session.Messages) - s.config.HistoryMessages
	if start < 0 {
		start = 0
	}
	for _, m := range session.Messages[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	if lastText != "" {
		fmt.Fprintf(&b, "assistant: %s\n", lastText)
	}

	reply, err := s.gen.Generate(ctx, b.String())
	if err != nil {
		s.logger.Warn("Suggestion generation failed, using defaults", logger.Error(err))
		return defaultSuggestions, nil
	}
	suggestions := parseNumberedLines(reply)
	if len(suggestions) == 0 {
		return defaultSuggestions, nil
	}
	return suggestions, nil
}

func (s *ChatService) Summary(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(session.Messages) == 0 {
		return "", fmt.Errorf("%w: session has no messages", models.ErrInvalidInput)
	}

	var b strings.Builder
	b.WriteString("Summarize this conversation in two or three sentences.\n\n")
	for _, m := range session.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	summary, err := s.gen.Generate(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func (s *ChatService) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// parseNumberedLines extracts items from a "1. foo" / "2) bar" style list.
func parseNumberedLines(reply string) []string {
	var items []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, "0123456789")
		if trimmed == line {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, ".) ")
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	return string(runes[:n])
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docuchat/docuchat/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	filename          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	size              INTEGER NOT NULL,
	format            TEXT NOT NULL,
	document_type     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	failure_stage     TEXT NOT NULL DEFAULT '',
	failure_reason    TEXT NOT NULL DEFAULT '',
	extracted_data    TEXT NOT NULL DEFAULT '{}',
	metadata          TEXT NOT NULL DEFAULT '{}',
	vector_partition  TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	confidence REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at);
`

// SQLiteStore implements Store on sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// Open connects to the sqlite database at path (":memory:" works for tests)
// and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// An in-memory database exists per connection; a pool of them would be a
	// pool of unrelated empty databases.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	extracted, err := marshalMap(doc.ExtractedData)
	if err != nil {
		return err
	}
	metadata, err := marshalMap(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, original_filename, size, format, document_type, status,
			failure_stage, failure_reason, extracted_data, metadata, vector_partition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.Size, doc.Format, doc.DocumentType, doc.Status,
		doc.FailureStage, doc.FailureReason, extracted, metadata, doc.VectorPartition, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, filename, original_filename, size, format, document_type, status,
	failure_stage, failure_reason, extracted_data, metadata, vector_partition, created_at, updated_at`

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter ListFilter) ([]models.Document, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.DocumentType != "" {
		where += ` AND document_type = ?`
		args = append(args, filter.DocumentType)
	}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, filter.Skip)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.StatusProcessing, time.Now().UTC(), id, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) ResetForReprocess(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, failure_stage = '', failure_reason = '', updated_at = ?
		 WHERE id = ? AND status != ?`,
		models.StatusPending, time.Now().UTC(), id, models.StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("reset for reprocess: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Finalize(ctx context.Context, id, documentType string, fields, metadata map[string]any) (bool, error) {
	extracted, err := marshalMap(fields)
	if err != nil {
		return false, err
	}
	meta, err := marshalMap(metadata)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, document_type = ?, extracted_data = ?, metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		models.StatusCompleted, documentType, extracted, meta, time.Now().UTC(), id, models.StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("finalize document: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, stage models.FailureStage, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, failure_stage = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		models.StatusFailed, stage, reason, time.Now().UTC(), id, models.StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Title, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, sources, confidence, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg        models.Message
			sourcesRaw string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &sourcesRaw, &msg.Confidence, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesRaw), &msg.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		session.Messages = append(session.Messages, msg)
	}
	return &session, rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var session models.ChatSession
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	if msg.Sources == nil {
		sources = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, msg.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, sources, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, string(sources), msg.Confidence, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		doc                 models.Document
		extracted, metadata string
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.Size, &doc.Format,
		&doc.DocumentType, &doc.Status, &doc.FailureStage, &doc.FailureReason,
		&extracted, &metadata, &doc.VectorPartition, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(extracted), &doc.ExtractedData); err != nil {
		return nil, fmt.Errorf("decode extracted data: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &doc, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

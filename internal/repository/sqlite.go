package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"little-giant/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_conversation ON history_messages(conversation_id, created_at, id);
`

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. The path
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("repository: create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, msgs ...domain.HistoryMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: Append begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if strings.TrimSpace(m.ConversationID) == "" {
			return errors.New("repository: Append: conversation id is required")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history_messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			m.ConversationID, string(m.Role), m.Content, formatTime(m.CreatedAt),
		); err != nil {
			return fmt.Errorf("repository: Append insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: Append commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at FROM history_messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}
	defer rows.Close()

	var msgs []domain.HistoryMessage
	for rows.Next() {
		var (
			m       domain.HistoryMessage
			role    string
			created string
		)
		if err := rows.Scan(&m.ConversationID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("repository: History scan: %w", err)
		}
		at, err := parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("repository: parse created_at: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt = at
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: History rows: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history_messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_messages WHERE conversation_id = ? AND role = ?`,
		conversationID, string(domain.RoleUser),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repository: TurnCount: %w", err)
	}
	return n, nil
}

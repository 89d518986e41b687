package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// Store persists sessions and message history.
type Store interface {
	UpsertSession(ctx context.Context, s chatwire.Session) error
	GetSession(ctx context.Context, sessionID string) (chatwire.Session, bool, error)
	SetActive(ctx context.Context, sessionID string, active bool) error
	TouchPreview(ctx context.Context, sessionID, lastMessage string, ts time.Time) error
	ListSessions(ctx context.Context) ([]chatwire.Session, error)
	SaveMessage(ctx context.Context, m chatwire.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]chatwire.Message, error)
	Close() error
}

// SQLiteStore keeps everything in one sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DSNForFile builds a WAL-mode dsn for a database file path.
func DSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			last_message TEXT NOT NULL DEFAULT '',
			timestamp_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			is_ai INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_session ON messages(session_id, created_at_ms);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, sess chatwire.Session) error {
	if strings.TrimSpace(sess.SessionID) == "" {
		return errors.New("store: session id is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, user, is_active, last_message, timestamp_ms)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user = excluded.user,
			is_active = excluded.is_active
	`, sess.SessionID, sess.User, boolToInt(sess.IsActive), sess.LastMessage, sess.Timestamp.UnixMilli())
	return errors.Wrap(err, "store: upsert session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (chatwire.Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user, is_active, last_message, timestamp_ms
		FROM sessions WHERE session_id = ?
	`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return chatwire.Session{}, false, nil
	}
	if err != nil {
		return chatwire.Session{}, false, errors.Wrap(err, "store: get session")
	}
	return sess, true, nil
}

func (s *SQLiteStore) SetActive(ctx context.Context, sessionID string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = ? WHERE session_id = ?`,
		boolToInt(active), sessionID)
	return errors.Wrap(err, "store: set active")
}

func (s *SQLiteStore) TouchPreview(ctx context.Context, sessionID, lastMessage string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_message = ?, timestamp_ms = ? WHERE session_id = ?`,
		lastMessage, ts.UnixMilli(), sessionID)
	return errors.Wrap(err, "store: touch preview")
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]chatwire.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user, is_active, last_message, timestamp_ms
		FROM sessions ORDER BY timestamp_ms DESC, session_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list sessions")
	}
	defer func() { _ = rows.Close() }()

	sessions := []chatwire.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "store: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, m chatwire.Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("store: message id is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(id, session_id, sender, content, is_ai, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, m.ID, m.SessionID, string(m.Sender), m.Content, boolToInt(m.IsAI), m.CreatedAt.UnixMilli())
	return errors.Wrap(err, "store: save message")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]chatwire.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, content, is_ai, created_at_ms
		FROM messages WHERE session_id = ? ORDER BY created_at_ms, id
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "store: list messages")
	}
	defer func() { _ = rows.Close() }()

	msgs := []chatwire.Message{}
	for rows.Next() {
		var m chatwire.Message
		var sender string
		var isAI int
		var createdMs int64
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Content, &isAI, &createdMs); err != nil {
			return nil, errors.Wrap(err, "store: scan message")
		}
		m.Sender = chatwire.Sender(sender)
		m.IsAI = isAI != 0
		m.CreatedAt = time.UnixMilli(createdMs)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (chatwire.Session, error) {
	var sess chatwire.Session
	var active int
	var tsMs int64
	if err := row.Scan(&sess.SessionID, &sess.User, &active, &sess.LastMessage, &tsMs); err != nil {
		return chatwire.Session{}, err
	}
	sess.IsActive = active != 0
	if tsMs > 0 {
		sess.Timestamp = time.UnixMilli(tsMs)
	}
	return sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

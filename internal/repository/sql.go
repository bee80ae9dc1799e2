package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements Store on database/sql for SQLite and Postgres.
// Queries are written with "?" placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open picks the driver from the DSN: postgres:// and postgresql:// URLs use
// lib/pq, everything else is treated as a SQLite DSN.
func Open(dsn string) (*SQLStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn)
	}
	return NewSQLiteStore(dsn)
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return newSQLStore(db, dialectSQLite)
}

// NewPostgresStore creates a new Postgres store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return newSQLStore(db, dialectPostgres)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	store := &SQLStore{db: db, dialect: d}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations. The DDL is portable between SQLite and
// Postgres: timestamps are unix seconds and booleans are 0/1 integers.
func (s *SQLStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			visitor_id TEXT NOT NULL,
			user_id TEXT,
			admin_id TEXT,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			last_message_at BIGINT NOT NULL,
			visitor_page_url TEXT,
			last_message_snippet TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_status ON chat_sessions(status, last_message_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_visitor ON chat_sessions(visitor_id, created_at)`,
		// At most one pending or active session per visitor.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_sessions_open_visitor ON chat_sessions(visitor_id)
			WHERE status IN ('pending', 'active')`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			message_text TEXT NOT NULL,
			message_html TEXT,
			sent_at BIGINT NOT NULL,
			is_read_by_admin INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (conversation_id) REFERENCES chat_sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id, sent_at, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites "?" placeholders into "$n" for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const sessionColumns = `cs.id, cs.visitor_id, cs.user_id, cs.admin_id, cs.status, cs.created_at, cs.last_message_at,
	cs.visitor_page_url, cs.last_message_snippet,
	(SELECT COUNT(*) FROM chat_messages cm
	  WHERE cm.conversation_id = cs.id AND cm.sender_type IN ('visitor', 'user') AND cm.is_read_by_admin = 0) AS unread_admin_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var userID, adminID, pageURL, snippet sql.NullString
	var unread int64
	if err := row.Scan(&session.ID, &session.VisitorID, &userID, &adminID, &session.Status,
		&session.CreatedAt, &session.LastMessageAt, &pageURL, &snippet, &unread); err != nil {
		return nil, err
	}
	session.UserID = userID.String
	session.AdminID = adminID.String
	session.VisitorPageURL = pageURL.String
	session.LastMessageSnippet = snippet.String
	session.UnreadAdminCount = int(unread)
	return &session, nil
}

// CreateSession creates a new session. It fails when the visitor already
// has a pending or active session.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO chat_sessions (id, visitor_id, user_id, admin_id, status, created_at, last_message_at, visitor_page_url, last_message_snippet)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.VisitorID, nullString(session.UserID), nullString(session.AdminID), session.Status,
		session.CreatedAt, session.LastMessageAt, nullString(session.VisitorPageURL), nullString(session.LastMessageSnippet))
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sessionColumns+` FROM chat_sessions cs WHERE cs.id = ?`), sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// FindOpenSessionByVisitor returns the visitor's most recent pending or
// active session.
func (s *SQLStore) FindOpenSessionByVisitor(ctx context.Context, visitorID string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sessionColumns+` FROM chat_sessions cs
		 WHERE cs.visitor_id = ? AND cs.status IN (?, ?)
		 ORDER BY cs.created_at DESC, cs.id DESC LIMIT 1`),
		visitorID, domain.SessionStatusPending, domain.SessionStatusActive)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// ListSessions returns one page of sessions, most recently active first,
// together with the total number of matching sessions.
func (s *SQLStore) ListSessions(ctx context.Context, statuses []domain.SessionStatus, page, limit int) ([]domain.ChatSession, int, error) {
	where := ""
	var args []interface{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = " WHERE cs.status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM chat_sessions cs`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + sessionColumns + ` FROM chat_sessions cs` + where +
		` ORDER BY cs.last_message_at DESC, cs.id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := []domain.ChatSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, total, rows.Err()
}

// ClaimSession atomically assigns a pending, unassigned session.
func (s *SQLStore) ClaimSession(ctx context.Context, sessionID, adminID string, systemMessage *domain.ChatMessage) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE chat_sessions SET admin_id = ?, status = ?, last_message_at = ?, last_message_snippet = ?
		 WHERE id = ? AND status = ? AND admin_id IS NULL`),
		adminID, domain.SessionStatusActive, systemMessage.Timestamp, domain.Snippet(systemMessage.MessageText),
		sessionID, domain.SessionStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if err := s.insertMessage(ctx, tx, systemMessage); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateSessionStatus conditionally changes a session's status.
func (s *SQLStore) UpdateSessionStatus(ctx context.Context, sessionID string, from []domain.SessionStatus, to domain.SessionStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("at least one source status is required")
	}
	placeholders := make([]string, len(from))
	args := []interface{}{to, sessionID}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE chat_sessions SET status = ? WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`), args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AppendMessage inserts a message and refreshes the session's denormalised
// last-message fields unless a newer message is already recorded.
func (s *SQLStore) AppendMessage(ctx context.Context, message *domain.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.insertMessage(ctx, tx, message); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE chat_sessions SET last_message_at = ?, last_message_snippet = ? WHERE id = ? AND last_message_at <= ?`),
		message.Timestamp, domain.Snippet(message.MessageText), message.ConversationID, message.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) insertMessage(ctx context.Context, tx *sql.Tx, message *domain.ChatMessage) error {
	read := 0
	if message.IsReadByAdmin {
		read = 1
	}
	_, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO chat_messages (id, conversation_id, sender_id, sender_type, message_text, message_html, sent_at, is_read_by_admin)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		message.ID, message.ConversationID, message.SenderID, message.SenderType, message.MessageText,
		nullString(message.MessageHTML), message.Timestamp, read)
	return err
}

// GetMessages returns a conversation's messages ordered by (sent_at, id).
func (s *SQLStore) GetMessages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, conversation_id, sender_id, sender_type, message_text, message_html, sent_at, is_read_by_admin
		 FROM chat_messages WHERE conversation_id = ? ORDER BY sent_at ASC, id ASC`), conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var msg domain.ChatMessage
		var html sql.NullString
		var read int
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderType, &msg.MessageText,
			&html, &msg.Timestamp, &read); err != nil {
			return nil, err
		}
		msg.MessageHTML = html.String
		msg.IsReadByAdmin = read != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkReadByAdmin flags the conversation's visitor and user messages as read.
func (s *SQLStore) MarkReadByAdmin(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE chat_messages SET is_read_by_admin = 1
		 WHERE conversation_id = ? AND sender_type IN (?, ?) AND is_read_by_admin = 0`),
		conversationID, domain.SenderVisitor, domain.SenderUser)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

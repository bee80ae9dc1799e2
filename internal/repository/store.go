// Package store persists chat sessions and messages.
package store

import (
	"context"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

// Store defines the interface for chat persistence.
//
// Lookups return (nil, nil) when the row does not exist. Conditional writes
// return false when their precondition no longer holds.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	FindOpenSessionByVisitor(ctx context.Context, visitorID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, statuses []domain.SessionStatus, page, limit int) ([]domain.ChatSession, int, error)

	// ClaimSession assigns an unclaimed pending session to adminID and
	// appends the system message in the same transaction. It returns false
	// when the session is no longer pending or already has an assignee.
	ClaimSession(ctx context.Context, sessionID, adminID string, systemMessage *domain.ChatMessage) (bool, error)

	// UpdateSessionStatus moves a session to "to" only if its current status
	// is one of "from".
	UpdateSessionStatus(ctx context.Context, sessionID string, from []domain.SessionStatus, to domain.SessionStatus) (bool, error)

	// Message operations
	AppendMessage(ctx context.Context, message *domain.ChatMessage) error
	GetMessages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
	MarkReadByAdmin(ctx context.Context, conversationID string) (int64, error)

	// Lifecycle
	Close() error
}

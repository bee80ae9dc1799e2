package helpers

import (
	"context"
	"testing"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedSession inserts a session with the given status and last activity.
func SeedSession(t *testing.T, s store.Store, id string, status domain.SessionStatus, adminID string, lastMessageAt int64) *domain.ChatSession {
	t.Helper()

	session := &domain.ChatSession{
		ID:            id,
		VisitorID:     id,
		AdminID:       adminID,
		Status:        status,
		CreatedAt:     lastMessageAt,
		LastMessageAt: lastMessageAt,
	}
	if err := s.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
	return session
}

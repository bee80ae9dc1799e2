package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seed(t *testing.T, store *SQLStore, id string, status domain.SessionStatus, last int64) {
	t.Helper()
	err := store.CreateSession(context.Background(), &domain.ChatSession{
		ID: id, VisitorID: id, Status: status, CreatedAt: last, LastMessageAt: last,
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func systemMessage(id, conversationID string, ts int64) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       "system",
		SenderType:     domain.SenderSystem,
		MessageText:    "Admin joined",
		Timestamp:      ts,
		IsReadByAdmin:  true,
	}
}

func TestSQLStoreListSessionsPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	for i := 0; i < 25; i++ {
		seed(t, store, fmt.Sprintf("v%02d", i), domain.SessionStatusPending, int64(1000+i))
	}
	seed(t, store, "closed", domain.SessionStatusClosedByAdmin, 5000)

	sessions, total, err := store.ListSessions(ctx, []domain.SessionStatus{domain.SessionStatusPending}, 2, 20)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 25 {
		t.Fatalf("expected total 25, got %d", total)
	}
	if len(sessions) != 5 {
		t.Fatalf("expected 5 sessions on page 2, got %d", len(sessions))
	}
	// Oldest activity lands on the last page.
	if sessions[4].ID != "v00" {
		t.Fatalf("expected v00 last, got %s", sessions[4].ID)
	}

	all, total, err := store.ListSessions(ctx, nil, 1, 100)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 26 || len(all) != 26 {
		t.Fatalf("expected 26 sessions, got total=%d len=%d", total, len(all))
	}
	if all[0].ID != "closed" {
		t.Fatalf("expected most recent session first, got %s", all[0].ID)
	}
}

func TestSQLStoreListSessionsTieBreaksByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "b", domain.SessionStatusPending, 100)
	seed(t, store, "a", domain.SessionStatusPending, 100)

	sessions, _, err := store.ListSessions(ctx, nil, 1, 20)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if sessions[0].ID != "a" || sessions[1].ID != "b" {
		t.Fatalf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestSQLStoreClaimSessionIsConditional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "v123", domain.SessionStatusPending, 100)

	ok, err := store.ClaimSession(ctx, "v123", "a1", systemMessage("m1", "v123", 200))
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}

	ok, err = store.ClaimSession(ctx, "v123", "a2", systemMessage("m2", "v123", 201))
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to be rejected")
	}

	session, err := store.GetSession(ctx, "v123")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.AdminID != "a1" || session.Status != domain.SessionStatusActive {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.LastMessageAt != 200 {
		t.Fatalf("expected last_message_at 200, got %d", session.LastMessageAt)
	}

	messages, err := store.GetMessages(ctx, "v123")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != "m1" {
		t.Fatalf("expected only the winning system message, got %+v", messages)
	}
}

func TestSQLStoreConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "v1", domain.SessionStatusPending, 100)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.ClaimSession(ctx, "v1", fmt.Sprintf("a%d", i), systemMessage(fmt.Sprintf("m%d", i), "v1", 200))
			if err != nil {
				t.Errorf("claim %d failed: %v", i, err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSQLStoreUpdateSessionStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "v1", domain.SessionStatusActive, 100)

	ok, err := store.UpdateSessionStatus(ctx, "v1", []domain.SessionStatus{domain.SessionStatusClosedByAdmin, domain.SessionStatusClosedByVisitor}, domain.SessionStatusArchived)
	if err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	if ok {
		t.Fatal("active session must not be archived")
	}

	ok, err = store.UpdateSessionStatus(ctx, "v1", []domain.SessionStatus{domain.SessionStatusActive}, domain.SessionStatusClosedByAdmin)
	if err != nil || !ok {
		t.Fatalf("close: ok=%v err=%v", ok, err)
	}

	if _, err := store.UpdateSessionStatus(ctx, "v1", nil, domain.SessionStatusArchived); err == nil {
		t.Fatal("expected error without source statuses")
	}
}

func TestSQLStoreMessagesOrderAndUnread(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "v1", domain.SessionStatusPending, 90)

	msgs := []*domain.ChatMessage{
		{ID: "m3", ConversationID: "v1", SenderID: "v1", SenderType: domain.SenderVisitor, MessageText: "third", Timestamp: 103},
		{ID: "m1", ConversationID: "v1", SenderID: "v1", SenderType: domain.SenderVisitor, MessageText: "first", Timestamp: 100},
		{ID: "m2", ConversationID: "v1", SenderID: "a1", SenderType: domain.SenderAdmin, MessageText: "second", Timestamp: 101, IsReadByAdmin: true},
	}
	for _, m := range msgs {
		if err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	got, err := store.GetMessages(ctx, "v1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != "m1" || got[1].ID != "m2" || got[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", got)
	}

	session, err := store.GetSession(ctx, "v1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.UnreadAdminCount != 2 {
		t.Fatalf("expected 2 unread, got %d", session.UnreadAdminCount)
	}
	if session.LastMessageAt != 103 || session.LastMessageSnippet != "third" {
		t.Fatalf("unexpected snippet %q", session.LastMessageSnippet)
	}

	n, err := store.MarkReadByAdmin(ctx, "v1")
	if err != nil {
		t.Fatalf("MarkReadByAdmin failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows marked, got %d", n)
	}

	session, _ = store.GetSession(ctx, "v1")
	if session.UnreadAdminCount != 0 {
		t.Fatalf("expected 0 unread, got %d", session.UnreadAdminCount)
	}
}

func TestSQLStoreFindOpenSessionByVisitor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	got, err := store.FindOpenSessionByVisitor(ctx, "v1")
	if err != nil || got != nil {
		t.Fatalf("expected no session, got %+v err=%v", got, err)
	}

	seed(t, store, "v1", domain.SessionStatusClosedByVisitor, 100)
	got, _ = store.FindOpenSessionByVisitor(ctx, "v1")
	if got != nil {
		t.Fatalf("closed session must not be returned: %+v", got)
	}

	if err := store.CreateSession(ctx, &domain.ChatSession{
		ID: "v1-abcd1234", VisitorID: "v1", Status: domain.SessionStatusPending, CreatedAt: 200, LastMessageAt: 200,
	}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	got, err = store.FindOpenSessionByVisitor(ctx, "v1")
	if err != nil || got == nil || got.ID != "v1-abcd1234" {
		t.Fatalf("unexpected session %+v err=%v", got, err)
	}
}

func TestSQLStoreOneOpenSessionPerVisitor(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	seed(t, store, "v1", domain.SessionStatusPending, 100)
	err := store.CreateSession(ctx, &domain.ChatSession{
		ID: "v1-0000aaaa", VisitorID: "v1", Status: domain.SessionStatusPending, CreatedAt: 101, LastMessageAt: 101,
	})
	if err == nil {
		t.Fatal("expected a second open session for the same visitor to be rejected")
	}

	ok, err := store.UpdateSessionStatus(ctx, "v1", []domain.SessionStatus{domain.SessionStatusPending}, domain.SessionStatusClosedByVisitor)
	if err != nil || !ok {
		t.Fatalf("UpdateSessionStatus failed: ok=%v err=%v", ok, err)
	}
	if err := store.CreateSession(ctx, &domain.ChatSession{
		ID: "v1-0000bbbb", VisitorID: "v1", Status: domain.SessionStatusPending, CreatedAt: 102, LastMessageAt: 102,
	}); err != nil {
		t.Fatalf("new session after close should succeed: %v", err)
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{dialect: dialectPostgres}
	got := s.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	if got != "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	s.dialect = dialectSQLite
	if s.rebind("a = ?") != "a = ?" {
		t.Fatal("sqlite queries must be untouched")
	}
}

package console

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeAPI serves canned responses. A conversation listed in gates blocks its
// history fetch until the gate is closed, ignoring cancellation so late
// responses can be observed.
type fakeAPI struct {
	mu        sync.Mutex
	histories map[string][]domain.ChatMessage
	gates     map[string]chan struct{}
	started   chan string
	pages     []*domain.SessionPage
	listGate  chan struct{}
	listErr   error
	claimErr  error
	queries   []domain.SessionQuery
	claims    []string
	listCalls int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		histories: make(map[string][]domain.ChatMessage),
		gates:     make(map[string]chan struct{}),
		started:   make(chan string, 16),
	}
}

func (f *fakeAPI) ListSessions(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	n := atomic.AddInt32(&f.listCalls, 1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.listGate
	var page *domain.SessionPage
	if int(n) <= len(f.pages) {
		page = f.pages[n-1]
	}
	err := f.listErr
	f.mu.Unlock()

	if gate != nil && n == 1 {
		f.started <- "list"
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &domain.SessionPage{Data: []domain.ChatSession{}, Pagination: domain.NewPagination(q.Page, q.Limit, 0)}
	}
	return page, nil
}

func (f *fakeAPI) ClaimSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, id)
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return &domain.ChatSession{ID: id, Status: domain.SessionStatusActive, AdminID: "a1"}, nil
}

func (f *fakeAPI) CloseSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	return &domain.ChatSession{ID: id, Status: domain.SessionStatusClosedByAdmin}, nil
}

func (f *fakeAPI) ArchiveSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	return &domain.ChatSession{ID: id, Status: domain.SessionStatusArchived}, nil
}

func (f *fakeAPI) GetHistory(ctx context.Context, id string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	gate := f.gates[id]
	msgs, ok := f.histories[id]
	f.mu.Unlock()

	f.started <- id
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, apperr.New(apperr.CodeFetchFailed, "history unavailable")
	}
	return append([]domain.ChatMessage(nil), msgs...), nil
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []protocol.Envelope
	subs      map[string][]func(protocol.Envelope)
}

func newFakeTransport(connected bool) *fakeTransport {
	return &fakeTransport{connected: connected, subs: make(map[string][]func(protocol.Envelope))}
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(ctx context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Subscribe(msgType string, fn func(protocol.Envelope)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[msgType] = append(f.subs[msgType], fn)
	idx := len(f.subs[msgType]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs[msgType][idx] = nil
	}
}

func (f *fakeTransport) emit(t *testing.T, msgType string, v interface{}) {
	t.Helper()
	env, err := protocol.NewEvent(msgType, v)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	f.mu.Lock()
	handlers := append([]func(protocol.Envelope){}, f.subs[msgType]...)
	f.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(env)
		}
	}
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type countingInvalidator struct {
	n int32
}

func (c *countingInvalidator) Invalidate() {
	atomic.AddInt32(&c.n, 1)
}

func (c *countingInvalidator) count() int {
	return int(atomic.LoadInt32(&c.n))
}

type fakeNotifier struct {
	mu  sync.Mutex
	fns []func(bool)
}

func (f *fakeNotifier) OnStateChange(fn func(connected bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
}

func (f *fakeNotifier) set(connected bool) {
	f.mu.Lock()
	fns := append([]func(bool){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

package console

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// Invalidator is told when the session list may be stale.
type Invalidator interface {
	Invalidate()
}

// StateNotifier reports connection drops and recoveries.
type StateNotifier interface {
	OnStateChange(fn func(connected bool))
}

// MessageLog holds the ordered, de-duplicated messages of the selected
// conversation.
type MessageLog struct {
	api         API
	invalidator Invalidator
	timeout     time.Duration

	mu             sync.Mutex
	conversationID string
	gen            uint64
	cancel         context.CancelFunc
	messages       []domain.ChatMessage
	ids            map[string]struct{}
	loading        bool
	err            error
	listener       func(conversationID string, messages []domain.ChatMessage)
}

// NewMessageLog creates an empty log. invalidator may be nil.
func NewMessageLog(api API, invalidator Invalidator, timeout time.Duration) *MessageLog {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &MessageLog{
		api:         api,
		invalidator: invalidator,
		timeout:     timeout,
		ids:         make(map[string]struct{}),
	}
}

// SetListener registers the view callback. It receives the full ordered
// snapshot after every load and append.
func (l *MessageLog) SetListener(fn func(conversationID string, messages []domain.ChatMessage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = fn
}

// Select switches to conversationID and loads its history. The fetch for the
// previously selected conversation is cancelled and its late result dropped.
func (l *MessageLog) Select(ctx context.Context, conversationID string) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	l.cancel = cancel
	l.conversationID = conversationID
	l.messages = nil
	l.ids = make(map[string]struct{})
	l.loading = conversationID != ""
	l.err = nil
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(conversationID, nil)
	}
	if conversationID == "" {
		cancel()
		return nil
	}
	defer cancel()

	history, err := l.api.GetHistory(ctx, conversationID)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return nil
	}
	l.loading = false
	l.cancel = nil
	if err != nil {
		l.err = err
		l.mu.Unlock()
		return err
	}
	for _, msg := range history {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		l.insert(msg)
	}
	snapshot := l.snapshot()
	listener = l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(conversationID, snapshot)
	}
	if l.invalidator != nil {
		l.invalidator.Invalidate()
	}
	return nil
}

// Retry re-fetches the selected conversation.
func (l *MessageLog) Retry(ctx context.Context) error {
	return l.Select(ctx, l.Current())
}

// Resync re-fetches the selected conversation and merges messages that are
// missing, keeping what is already shown. A Select made meanwhile wins.
func (l *MessageLog) Resync(ctx context.Context) error {
	l.mu.Lock()
	conversationID := l.conversationID
	gen := l.gen
	l.mu.Unlock()
	if conversationID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	history, err := l.api.GetHistory(ctx, conversationID)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		l.err = err
		l.mu.Unlock()
		return err
	}
	l.err = nil
	changed := false
	for _, msg := range history {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if l.insert(msg) {
			changed = true
		}
	}
	if !changed {
		l.mu.Unlock()
		return nil
	}
	snapshot := l.snapshot()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(conversationID, snapshot)
	}
	return nil
}

// ResyncOnReconnect resyncs the log each time n comes back after a drop, so
// messages pushed while offline are filled in. onErr may be nil.
func (l *MessageLog) ResyncOnReconnect(ctx context.Context, n StateNotifier, onErr func(error)) {
	var dropped atomic.Bool
	n.OnStateChange(func(connected bool) {
		if !connected {
			dropped.Store(true)
			return
		}
		if !dropped.Swap(false) {
			return
		}
		go func() {
			if err := l.Resync(ctx); err != nil && ctx.Err() == nil && onErr != nil {
				onErr(err)
			}
		}()
	})
}

// Current returns the selected conversation id.
func (l *MessageLog) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversationID
}

// Messages returns the ordered messages of the selected conversation.
func (l *MessageLog) Messages() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Loading reports whether a history fetch is in flight.
func (l *MessageLog) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Err returns the last history fetch error.
func (l *MessageLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// OnIncoming merges a pushed chat_message_receive event. Messages for other
// conversations only invalidate the directory.
func (l *MessageLog) OnIncoming(env protocol.Envelope) {
	var msg domain.ChatMessage
	if err := env.Decode(&msg); err != nil || msg.ID == "" {
		return
	}

	l.mu.Lock()
	if msg.ConversationID != l.conversationID || l.conversationID == "" {
		l.mu.Unlock()
		if l.invalidator != nil {
			l.invalidator.Invalidate()
		}
		return
	}
	if !l.insert(msg) {
		l.mu.Unlock()
		return
	}
	snapshot := l.snapshot()
	conversationID := l.conversationID
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener(conversationID, snapshot)
	}
}

// Subscribe feeds chat_message_receive events from t into the log.
func (l *MessageLog) Subscribe(t Transport) func() {
	return t.Subscribe(protocol.TypeChatMessageReceive, l.OnIncoming)
}

// insert adds msg in (timestamp, id) order unless its id is already present.
// Callers hold l.mu.
func (l *MessageLog) insert(msg domain.ChatMessage) bool {
	if _, dup := l.ids[msg.ID]; dup {
		return false
	}
	l.ids[msg.ID] = struct{}{}
	i := sort.Search(len(l.messages), func(i int) bool { return msg.Before(l.messages[i]) })
	l.messages = append(l.messages, domain.ChatMessage{})
	copy(l.messages[i+1:], l.messages[i:])
	l.messages[i] = msg
	return true
}

func (l *MessageLog) snapshot() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

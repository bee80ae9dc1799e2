package console

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

func ids(msgs []domain.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestMessageLogOrdersPushesAndDeduplicates(t *testing.T) {
	api := newFakeAPI()
	api.histories["c1"] = []domain.ChatMessage{{ID: "m1", ConversationID: "c1", Timestamp: 100}}
	inv := &countingInvalidator{}
	log := NewMessageLog(api, inv, time.Second)

	var renders [][]string
	log.SetListener(func(_ string, msgs []domain.ChatMessage) {
		renders = append(renders, ids(msgs))
	})

	require.NoError(t, log.Select(context.Background(), "c1"))
	assert.Equal(t, 1, inv.count())

	transport := newFakeTransport(true)
	unsubscribe := log.Subscribe(transport)
	defer unsubscribe()

	transport.emit(t, protocol.TypeChatMessageReceive, domain.ChatMessage{ID: "m3", ConversationID: "c1", Timestamp: 103})
	transport.emit(t, protocol.TypeChatMessageReceive, domain.ChatMessage{ID: "m2", ConversationID: "c1", Timestamp: 101})
	transport.emit(t, protocol.TypeChatMessageReceive, domain.ChatMessage{ID: "m3", ConversationID: "c1", Timestamp: 103})

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(log.Messages()))
	// cleared, loaded, m3, m2; the duplicate m3 does not re-render
	require.Len(t, renders, 4)
	assert.Equal(t, []string{"m1", "m2", "m3"}, renders[3])
}

func TestMessageLogTieBreaksByID(t *testing.T) {
	api := newFakeAPI()
	api.histories["c1"] = []domain.ChatMessage{
		{ID: "b", ConversationID: "c1", Timestamp: 100},
		{ID: "a", ConversationID: "c1", Timestamp: 100},
	}
	log := NewMessageLog(api, nil, time.Second)
	require.NoError(t, log.Select(context.Background(), "c1"))
	assert.Equal(t, []string{"a", "b"}, ids(log.Messages()))
}

func TestMessageLogDropsStaleHistory(t *testing.T) {
	api := newFakeAPI()
	api.histories["A"] = []domain.ChatMessage{{ID: "a1", ConversationID: "A", Timestamp: 1}}
	api.histories["B"] = []domain.ChatMessage{{ID: "b1", ConversationID: "B", Timestamp: 2}}
	gate := make(chan struct{})
	api.gates["A"] = gate
	log := NewMessageLog(api, nil, time.Second)

	done := make(chan error, 1)
	go func() { done <- log.Select(context.Background(), "A") }()
	require.Equal(t, "A", <-api.started)

	require.NoError(t, log.Select(context.Background(), "B"))
	<-api.started
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, "B", log.Current())
	assert.Equal(t, []string{"b1"}, ids(log.Messages()))
	assert.False(t, log.Loading())
}

func TestMessageLogOtherConversationInvalidatesDirectory(t *testing.T) {
	api := newFakeAPI()
	api.histories["c1"] = nil
	inv := &countingInvalidator{}
	log := NewMessageLog(api, inv, time.Second)
	require.NoError(t, log.Select(context.Background(), "c1"))
	before := inv.count()

	env, err := protocol.NewEvent(protocol.TypeChatMessageReceive, domain.ChatMessage{ID: "x", ConversationID: "c2", Timestamp: 5})
	require.NoError(t, err)
	log.OnIncoming(env)

	assert.Empty(t, log.Messages())
	assert.Equal(t, before+1, inv.count())
}

func TestMessageLogFetchFailureAndRetry(t *testing.T) {
	api := newFakeAPI()
	log := NewMessageLog(api, nil, time.Second)

	err := log.Select(context.Background(), "missing")
	assert.Equal(t, apperr.CodeFetchFailed, apperr.Code(err))
	assert.Equal(t, err, log.Err())

	api.mu.Lock()
	api.histories["missing"] = []domain.ChatMessage{{ID: "m1", ConversationID: "missing", Timestamp: 1}}
	api.mu.Unlock()

	require.NoError(t, log.Retry(context.Background()))
	assert.NoError(t, log.Err())
	assert.Equal(t, []string{"m1"}, ids(log.Messages()))
}

func TestMessageLogResyncMergesMissedMessages(t *testing.T) {
	api := newFakeAPI()
	api.histories["v1"] = []domain.ChatMessage{{ID: "m1", ConversationID: "v1", Timestamp: 1}}
	log := NewMessageLog(api, nil, time.Second)
	var renders int
	log.SetListener(func(string, []domain.ChatMessage) { renders++ })

	require.NoError(t, log.Select(context.Background(), "v1"))
	<-api.started
	assert.Equal(t, 2, renders)

	require.NoError(t, log.Resync(context.Background()))
	<-api.started
	assert.Equal(t, 2, renders, "nothing new, nothing rendered")

	api.mu.Lock()
	api.histories["v1"] = append(api.histories["v1"], domain.ChatMessage{ID: "m2", ConversationID: "v1", Timestamp: 2})
	api.mu.Unlock()

	require.NoError(t, log.Resync(context.Background()))
	<-api.started
	assert.Equal(t, 3, renders)
	assert.Equal(t, []string{"m1", "m2"}, ids(log.Messages()))
}

func TestMessageLogResyncWithoutSelection(t *testing.T) {
	api := newFakeAPI()
	log := NewMessageLog(api, nil, time.Second)

	require.NoError(t, log.Resync(context.Background()))
	assert.Empty(t, api.started)
}

func TestMessageLogResyncDropsResultAfterReselect(t *testing.T) {
	api := newFakeAPI()
	api.histories["v1"] = []domain.ChatMessage{{ID: "m1", ConversationID: "v1", Timestamp: 1}}
	api.histories["v2"] = []domain.ChatMessage{{ID: "n1", ConversationID: "v2", Timestamp: 1}}
	log := NewMessageLog(api, nil, time.Second)
	require.NoError(t, log.Select(context.Background(), "v1"))
	<-api.started

	gate := make(chan struct{})
	api.mu.Lock()
	api.gates["v1"] = gate
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- log.Resync(context.Background()) }()
	<-api.started

	require.NoError(t, log.Select(context.Background(), "v2"))
	<-api.started
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, "v2", log.Current())
	assert.Equal(t, []string{"n1"}, ids(log.Messages()))
}

func TestMessageLogResyncsAfterReconnect(t *testing.T) {
	api := newFakeAPI()
	api.histories["v1"] = []domain.ChatMessage{{ID: "m1", ConversationID: "v1", Timestamp: 1}}
	log := NewMessageLog(api, nil, time.Second)
	n := &fakeNotifier{}
	log.ResyncOnReconnect(context.Background(), n, nil)

	require.NoError(t, log.Select(context.Background(), "v1"))
	<-api.started

	n.set(true)
	assert.Empty(t, api.started, "no drop, no resync")

	api.mu.Lock()
	api.histories["v1"] = append(api.histories["v1"], domain.ChatMessage{ID: "m2", ConversationID: "v1", Timestamp: 2})
	api.mu.Unlock()

	n.set(false)
	n.set(true)
	<-api.started
	require.Eventually(t, func() bool { return len(log.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2"}, ids(log.Messages()))
}

func TestMessageLogResyncReportsErrors(t *testing.T) {
	api := newFakeAPI()
	api.histories["v1"] = []domain.ChatMessage{{ID: "m1", ConversationID: "v1", Timestamp: 1}}
	log := NewMessageLog(api, nil, time.Second)
	errs := make(chan error, 1)
	n := &fakeNotifier{}
	log.ResyncOnReconnect(context.Background(), n, func(err error) { errs <- err })

	require.NoError(t, log.Select(context.Background(), "v1"))
	<-api.started
	api.mu.Lock()
	delete(api.histories, "v1")
	api.mu.Unlock()

	n.set(false)
	n.set(true)
	select {
	case err := <-errs:
		assert.Equal(t, apperr.CodeFetchFailed, apperr.Code(err))
	case <-time.After(2 * time.Second):
		t.Fatal("resync error not reported")
	}
	assert.Equal(t, []string{"m1"}, ids(log.Messages()), "shown messages survive a failed resync")
}

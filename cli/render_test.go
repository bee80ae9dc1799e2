package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

func TestRenderLogKeepsTail(t *testing.T) {
	var msgs []domain.ChatMessage
	for i := 0; i < 20; i++ {
		msgs = append(msgs, domain.ChatMessage{
			ID: string(rune('a' + i)), SenderID: "v1", SenderType: domain.SenderVisitor,
			MessageText: "msg-" + string(rune('a'+i)), Timestamp: int64(100 + i),
		})
	}
	out := renderLog("v1", msgs, "a1", maxLogLines)
	assert.Contains(t, out, "5 earlier")
	assert.NotContains(t, out, "msg-a\n")
	assert.Contains(t, out, "msg-t")
	assert.Equal(t, maxLogLines+2, strings.Count(out, "\n"))
}

func TestRenderMessageMarksOwnReplies(t *testing.T) {
	m := domain.ChatMessage{SenderID: "a1", SenderType: domain.SenderAdmin, MessageText: "hi", Timestamp: 100}
	assert.Contains(t, renderMessage(m, "a1"), "you:")
	assert.Contains(t, renderMessage(m, "a2"), "a1:")
}

func TestRenderSessionsEmpty(t *testing.T) {
	out := renderSessions(domain.FilterPending, nil, domain.NewPagination(1, 20, 0), "")
	assert.Contains(t, out, "page 1/1, 0 total")
	assert.Contains(t, out, "no sessions")
}

func TestVisitorFrame(t *testing.T) {
	env, err := visitorFrame("/leave")
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeChatSessionClose, env.Type)

	env, err = visitorFrame("is the beagle still available?")
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeChatMessageSend, env.Type)
	var p domain.SendMessagePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "is the beagle still available?", p.MessageText)
}

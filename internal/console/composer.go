package console

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// Composer validates and sends admin replies over the transport. The sent
// reply shows up in the MessageLog through the server echo.
type Composer struct {
	transport Transport
}

// NewComposer creates a composer writing to t.
func NewComposer(t Transport) *Composer {
	return &Composer{transport: t}
}

// Send sends text to conversationID and returns the client message id the
// server echoes back as ref. Nothing is sent when validation fails or the
// transport is down.
func (c *Composer) Send(ctx context.Context, conversationID, adminID, text string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", apperr.Validation("reply cannot be empty")
	case conversationID == "":
		return "", apperr.Validation("no conversation selected")
	case adminID == "":
		return "", apperr.Validation("admin id is required")
	}
	if !c.transport.IsConnected() {
		return "", apperr.New(apperr.CodeDisconnected, "not connected to chat server")
	}

	clientID := uuid.NewString()
	env, err := protocol.NewRequest(protocol.TypeChatMessageSend, domain.SendMessagePayload{
		ConversationID:  conversationID,
		MessageText:     text,
		ClientMessageID: clientID,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "failed to encode reply", err)
	}
	if err := c.transport.Send(ctx, env.WithRef(clientID)); err != nil {
		return "", err
	}
	return clientID, nil
}

// OnRejected calls fn with the ref and error of every error event from t.
func (c *Composer) OnRejected(fn func(ref string, payload domain.ErrorPayload)) func() {
	return c.transport.Subscribe(protocol.TypeError, func(env protocol.Envelope) {
		var payload domain.ErrorPayload
		if err := env.Decode(&payload); err != nil {
			return
		}
		fn(env.Ref, payload)
	})
}

package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("message text is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", apperr.Validation(fmt.Sprintf("message text exceeds %d characters", MaxMessageLength))
	}
	return text, nil
}

func joinedText(adminID string) string {
	short := adminID
	if r := []rune(short); len(r) > 8 {
		short = string(r[:8])
	}
	return fmt.Sprintf("Admin %s has joined the chat.", short)
}

// newMessage builds a message with a time-ordered id. Admin and system
// messages are stored as already read.
func (s *Service) newMessage(conversationID, senderID string, senderType domain.SenderType, text, html string) (*domain.ChatMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to generate message id", err)
	}
	if html != "" {
		html = strings.TrimSpace(s.sanitizer.Sanitize(html))
	}
	return &domain.ChatMessage{
		ID:             id.String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderType:     senderType,
		MessageText:    text,
		MessageHTML:    html,
		Timestamp:      s.now().Unix(),
		IsReadByAdmin:  senderType == domain.SenderAdmin || senderType == domain.SenderSystem,
	}, nil
}

func (s *Service) appendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to store chat message", err)
	}
	s.metrics.ObserveMessage(string(msg.SenderType))
	return nil
}

// InitiateChat opens or continues the visitor's chat with a first message.
func (s *Service) InitiateChat(ctx context.Context, req domain.InitiateChatRequest) (*domain.InitiateChatResponse, error) {
	session, msg, created, err := s.PostVisitorMessage(ctx, domain.VisitorMessage{
		VisitorID:   req.VisitorID,
		UserID:      req.UserID,
		PageURL:     req.PageURL,
		MessageText: req.InitialMessageText,
	})
	if err != nil {
		return nil, err
	}

	text := "Message sent."
	if created {
		text = "Chat initiated. An admin will be with you shortly."
	}
	return &domain.InitiateChatResponse{
		Success:        true,
		Message:        text,
		ConversationID: session.ID,
		MessageID:      msg.ID,
	}, nil
}

// PostVisitorMessage appends a visitor message to the visitor's open session,
// creating a pending session first when there is none.
func (s *Service) PostVisitorMessage(ctx context.Context, in domain.VisitorMessage) (*domain.ChatSession, *domain.ChatMessage, bool, error) {
	if in.VisitorID == "" {
		return nil, nil, false, apperr.Validation("visitor id is required")
	}
	text, err := validateText(in.MessageText)
	if err != nil {
		return nil, nil, false, err
	}

	session, created, err := s.openSession(ctx, in)
	if err != nil {
		return nil, nil, false, err
	}
	if err := s.authorize(ctx, domain.ActionVisitorMessage, session, in.VisitorID); err != nil {
		return nil, nil, false, err
	}

	senderID, senderType := in.VisitorID, domain.SenderVisitor
	if in.UserID != "" {
		senderID, senderType = in.UserID, domain.SenderUser
	}
	msg, err := s.newMessage(session.ID, senderID, senderType, text, in.MessageHTML)
	if err != nil {
		return nil, nil, false, err
	}
	if err := s.appendMessage(ctx, msg); err != nil {
		return nil, nil, false, err
	}

	if created {
		if fresh, err := s.loadSession(ctx, session.ID); err == nil {
			session = fresh
		}
		s.logger.Info("chat session created", zap.String("conversation_id", session.ID), zap.String("visitor_id", in.VisitorID))
		s.notifyAdmins(protocol.TypeNewChatSession, session, "")
	} else {
		s.notifyAdmins(protocol.TypeChatMessageReceive, msg, "")
	}
	s.notifyVisitor(session.VisitorID, protocol.TypeChatMessageReceive, msg)
	return session, msg, created, nil
}

// openSession returns the visitor's open session or creates a pending one.
// A visitor whose earlier session was closed gets a suffixed session id.
func (s *Service) openSession(ctx context.Context, in domain.VisitorMessage) (*domain.ChatSession, bool, error) {
	session, err := s.store.FindOpenSessionByVisitor(ctx, in.VisitorID)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInternal, "failed to find chat session", err)
	}
	if session != nil {
		return session, false, nil
	}

	id := in.VisitorID
	previous, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInternal, "failed to get chat session", err)
	}
	if previous != nil {
		id = in.VisitorID + "-" + uuid.New().String()[:8]
	}

	now := s.now().Unix()
	session = &domain.ChatSession{
		ID:             id,
		VisitorID:      in.VisitorID,
		UserID:         in.UserID,
		Status:         domain.SessionStatusPending,
		CreatedAt:      now,
		LastMessageAt:  now,
		VisitorPageURL: in.PageURL,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		// Another request may have opened the session first.
		existing, findErr := s.store.FindOpenSessionByVisitor(ctx, in.VisitorID)
		if findErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, apperr.Wrap(apperr.CodeInternal, "failed to create chat session", err)
	}
	return session, true, nil
}

// SendAdminReply persists a reply from the session's assignee and echoes it
// to every admin, the sender included, with ref set to the client message id.
func (s *Service) SendAdminReply(ctx context.Context, adminID string, payload domain.SendMessagePayload) (*domain.ChatMessage, error) {
	if adminID == "" {
		return nil, apperr.Validation("admin id is required")
	}
	text, err := validateText(payload.MessageText)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, payload.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, domain.ActionReply, session, adminID); err != nil {
		return nil, err
	}

	msg, err := s.newMessage(session.ID, adminID, domain.SenderAdmin, text, payload.MessageHTML)
	if err != nil {
		return nil, err
	}
	if err := s.appendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Debug("admin reply stored", zap.String("conversation_id", session.ID), zap.String("message_id", msg.ID))

	s.notifyAdmins(protocol.TypeChatMessageReceive, msg, payload.ClientMessageID)
	s.notifyVisitor(session.VisitorID, protocol.TypeChatMessageReceive, msg)
	return msg, nil
}

// GetHistory marks the conversation's visitor messages read and returns the
// full log in (timestamp, id) order.
func (s *Service) GetHistory(ctx context.Context, sessionID, adminID string) ([]domain.ChatMessage, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	marked, err := s.store.MarkReadByAdmin(ctx, session.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to mark messages read", err)
	}

	messages, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to get chat messages", err)
	}
	domain.SortMessages(messages)

	if marked > 0 {
		s.notifyAdmins(protocol.TypeChatSessionRead, domain.SessionReadPayload{ConversationID: session.ID, AdminID: adminID}, "")
	}
	return messages, nil
}

func (s *Service) notifyAdmins(msgType string, v interface{}, ref string) {
	if s.notifier == nil {
		return
	}
	env, err := protocol.NewEvent(msgType, v)
	if err != nil {
		s.logger.Warn("failed to encode admin event", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := s.notifier.BroadcastAdmins(env.WithRef(ref)); err != nil {
		s.logger.Warn("failed to notify admins", zap.String("type", msgType), zap.Error(err))
	}
}

func (s *Service) notifyVisitor(visitorID, msgType string, v interface{}) {
	if s.notifier == nil {
		return
	}
	env, err := protocol.NewEvent(msgType, v)
	if err != nil {
		s.logger.Warn("failed to encode visitor event", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := s.notifier.SendToVisitor(visitorID, env); err != nil {
		s.logger.Warn("failed to notify visitor", zap.String("visitor_id", visitorID), zap.Error(err))
	}
}

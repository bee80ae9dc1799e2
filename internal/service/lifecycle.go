package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/metrics"
	"github.com/rancherdx/pawfect-livechat/internal/policy"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// authorize runs the lifecycle policy for action on session.
func (s *Service) authorize(ctx context.Context, action domain.Action, session *domain.ChatSession, actorID string) error {
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		Action:        action,
		SessionStatus: session.Status,
		AssignedAdmin: session.AdminID,
		ActorID:       actorID,
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "policy evaluation failed", err)
	}

	switch decision {
	case policy.DecisionAllow:
		return nil
	case policy.DecisionAlreadyClaimed:
		return apperr.New(apperr.CodeConflict, "chat session already claimed by another admin")
	case policy.DecisionNotAssignee:
		return apperr.New(apperr.CodeForbidden, "chat session is assigned to another admin")
	case policy.DecisionSessionClosed:
		return apperr.New(apperr.CodeInvalidState, fmt.Sprintf("chat session is %s", session.Status))
	default:
		return apperr.New(apperr.CodeInvalidState, fmt.Sprintf("cannot %s a %s chat session", action, session.Status))
	}
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	if sessionID == "" {
		return nil, apperr.Validation("conversation id is required")
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to get chat session", err)
	}
	if session == nil {
		return nil, apperr.New(apperr.CodeNotFound, "chat session not found")
	}
	return session, nil
}

// transition conditionally moves a session to "to" and announces the change.
func (s *Service) transition(ctx context.Context, session *domain.ChatSession, from []domain.SessionStatus, to domain.SessionStatus) (*domain.ChatSession, error) {
	ok, err := s.store.UpdateSessionStatus(ctx, session.ID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to update chat session", err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidState, "chat session changed state concurrently")
	}

	updated, err := s.loadSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat session status changed",
		zap.String("conversation_id", updated.ID),
		zap.String("from", string(session.Status)),
		zap.String("to", string(updated.Status)))

	s.notifyAdmins(protocol.TypeChatSessionUpdated, updated, "")
	if to.IsClosed() {
		s.notifyVisitor(updated.VisitorID, protocol.TypeChatClosed, domain.ClosedPayload{ConversationID: updated.ID, Status: updated.Status})
	}
	return updated, nil
}

// ClaimSession assigns a pending session to adminID. Exactly one of several
// concurrent claimants wins; the rest get a conflict error.
func (s *Service) ClaimSession(ctx context.Context, sessionID, adminID string) (*domain.ChatSession, error) {
	if adminID == "" {
		return nil, apperr.Validation("admin id is required")
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, domain.ActionClaim, session, adminID); err != nil {
		if apperr.Code(err) == apperr.CodeConflict {
			s.metrics.ObserveClaim(metrics.ClaimConflict)
		} else {
			s.metrics.ObserveClaim(metrics.ClaimRejected)
		}
		return nil, err
	}

	joined, err := s.newMessage(session.ID, "system", domain.SenderSystem, joinedText(adminID), "")
	if err != nil {
		return nil, err
	}

	won, err := s.store.ClaimSession(ctx, session.ID, adminID, joined)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to claim chat session", err)
	}
	if !won {
		s.metrics.ObserveClaim(metrics.ClaimConflict)
		s.logger.Info("chat session claim lost", zap.String("conversation_id", session.ID), zap.String("admin_id", adminID))
		return nil, apperr.New(apperr.CodeConflict, "chat session already claimed by another admin")
	}
	s.metrics.ObserveClaim(metrics.ClaimWon)
	s.metrics.ObserveMessage(string(domain.SenderSystem))

	claimed, err := s.loadSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("chat session claimed", zap.String("conversation_id", claimed.ID), zap.String("admin_id", adminID))

	s.notifyAdmins(protocol.TypeChatClaimed, domain.ClaimedPayload{ConversationID: claimed.ID, AdminID: adminID}, "")
	s.notifyAdmins(protocol.TypeChatMessageReceive, joined, "")
	s.notifyVisitor(claimed.VisitorID, protocol.TypeAdminJoinedChat, domain.AdminJoinedPayload{
		ConversationID: claimed.ID,
		AdminID:        adminID,
		Message:        joined.MessageText,
	})
	s.notifyVisitor(claimed.VisitorID, protocol.TypeChatMessageReceive, joined)
	return claimed, nil
}

// CloseByAdmin closes an active session owned by adminID.
func (s *Service) CloseByAdmin(ctx context.Context, sessionID, adminID string) (*domain.ChatSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, domain.ActionCloseByAdmin, session, adminID); err != nil {
		return nil, err
	}
	return s.transition(ctx, session, []domain.SessionStatus{domain.SessionStatusActive}, domain.SessionStatusClosedByAdmin)
}

// CloseByVisitor closes the visitor's open session.
func (s *Service) CloseByVisitor(ctx context.Context, visitorID string) (*domain.ChatSession, error) {
	if visitorID == "" {
		return nil, apperr.Validation("visitor id is required")
	}
	session, err := s.store.FindOpenSessionByVisitor(ctx, visitorID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to find chat session", err)
	}
	if session == nil {
		return nil, apperr.New(apperr.CodeNotFound, "no open chat session")
	}
	if err := s.authorize(ctx, domain.ActionCloseByVisitor, session, visitorID); err != nil {
		return nil, err
	}
	return s.transition(ctx, session,
		[]domain.SessionStatus{domain.SessionStatusPending, domain.SessionStatusActive},
		domain.SessionStatusClosedByVisitor)
}

// ArchiveSession archives a closed session.
func (s *Service) ArchiveSession(ctx context.Context, sessionID, adminID string) (*domain.ChatSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, domain.ActionArchive, session, adminID); err != nil {
		return nil, err
	}
	return s.transition(ctx, session,
		[]domain.SessionStatus{domain.SessionStatusClosedByAdmin, domain.SessionStatusClosedByVisitor},
		domain.SessionStatusArchived)
}

// ListSessions returns one page of the session directory.
func (s *Service) ListSessions(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = domain.DefaultPageSize
	}
	if q.Page < 1 {
		return nil, apperr.Validation("page must be >= 1")
	}
	if q.Limit < 1 || q.Limit > domain.MaxPageSize {
		return nil, apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", domain.MaxPageSize))
	}
	statuses, ok := q.Status.Statuses()
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown status filter %q", q.Status))
	}

	sessions, total, err := s.store.ListSessions(ctx, statuses, q.Page, q.Limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to list chat sessions", err)
	}
	return &domain.SessionPage{
		Data:       sessions,
		Pagination: domain.NewPagination(q.Page, q.Limit, total),
	}, nil
}

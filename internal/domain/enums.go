// Package domain defines the core chat models.
package domain

// SessionStatus represents the lifecycle status of a chat session.
type SessionStatus string

const (
	SessionStatusPending         SessionStatus = "pending"
	SessionStatusActive          SessionStatus = "active"
	SessionStatusClosedByVisitor SessionStatus = "closed_by_visitor"
	SessionStatusClosedByAdmin   SessionStatus = "closed_by_admin"
	SessionStatusArchived        SessionStatus = "archived"
)

// IsOpen reports whether the session can still receive messages.
func (s SessionStatus) IsOpen() bool {
	return s == SessionStatusPending || s == SessionStatusActive
}

// IsClosed reports whether the session was closed by either side.
func (s SessionStatus) IsClosed() bool {
	return s == SessionStatusClosedByVisitor || s == SessionStatusClosedByAdmin
}

// StatusFilter selects sessions in a listing.
type StatusFilter string

const (
	FilterPending  StatusFilter = "pending"
	FilterActive   StatusFilter = "active"
	FilterClosed   StatusFilter = "closed"
	FilterArchived StatusFilter = "archived"
	FilterAll      StatusFilter = "all"
)

// Statuses expands a filter into the statuses it matches; nil means all.
func (f StatusFilter) Statuses() ([]SessionStatus, bool) {
	switch f {
	case FilterAll, "":
		return nil, true
	case FilterPending:
		return []SessionStatus{SessionStatusPending}, true
	case FilterActive:
		return []SessionStatus{SessionStatusActive}, true
	case FilterClosed:
		return []SessionStatus{SessionStatusClosedByVisitor, SessionStatusClosedByAdmin}, true
	case FilterArchived:
		return []SessionStatus{SessionStatusArchived}, true
	default:
		return nil, false
	}
}

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderUser    SenderType = "user"
	SenderAdmin   SenderType = "admin"
	SenderSystem  SenderType = "system"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	switch t {
	case SenderVisitor, SenderUser, SenderAdmin, SenderSystem:
		return true
	}
	return false
}

// Lifecycle actions checked against the session policy.
type Action string

const (
	ActionClaim          Action = "claim"
	ActionReply          Action = "reply"
	ActionVisitorMessage Action = "visitor_message"
	ActionCloseByAdmin   Action = "close_by_admin"
	ActionCloseByVisitor Action = "close_by_visitor"
	ActionArchive        Action = "archive"
)

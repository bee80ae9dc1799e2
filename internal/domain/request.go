package domain

// Listing defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SessionQuery is the input to a session listing.
type SessionQuery struct {
	Status StatusFilter `json:"status"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
}

// InitiateChatRequest is sent by a visitor to open or continue a chat.
type InitiateChatRequest struct {
	VisitorID          string `json:"visitor_id"`
	InitialMessageText string `json:"initial_message_text"`
	PageURL            string `json:"page_url"`
	UserID             string `json:"user_id,omitempty"`
}

// InitiateChatResponse is returned to the visitor.
type InitiateChatResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// VisitorMessage is a message posted by a visitor or signed-in user.
type VisitorMessage struct {
	VisitorID   string
	UserID      string
	PageURL     string
	MessageText string
	MessageHTML string
}

// HistoryResponse wraps a conversation's messages.
type HistoryResponse struct {
	Data []ChatMessage `json:"data"`
}

package domain

// SendMessagePayload is the payload of a chat_message_send event.
type SendMessagePayload struct {
	ConversationID  string `json:"conversation_id"`
	MessageText     string `json:"message_text"`
	MessageHTML     string `json:"message_html,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

// ClaimedPayload is broadcast to admins when a session is claimed.
type ClaimedPayload struct {
	ConversationID string `json:"conversation_id"`
	AdminID        string `json:"admin_id"`
}

// AdminJoinedPayload tells the visitor an admin has joined.
type AdminJoinedPayload struct {
	ConversationID string `json:"conversation_id"`
	AdminID        string `json:"admin_id"`
	Message        string `json:"message"`
}

// SessionReadPayload is broadcast when an admin reads a conversation.
type SessionReadPayload struct {
	ConversationID string `json:"conversation_id"`
	AdminID        string `json:"admin_id,omitempty"`
}

// ErrorPayload is carried by error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClosedPayload tells the visitor their session ended.
type ClosedPayload struct {
	ConversationID string        `json:"conversation_id"`
	Status         SessionStatus `json:"status"`
}

package domain

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// SnippetLength is the maximum rune length of a session's last-message snippet.
const SnippetLength = 80

// ChatSession is one visitor conversation.
type ChatSession struct {
	ID                 string        `json:"id"`
	VisitorID          string        `json:"visitor_id"`
	UserID             string        `json:"user_id,omitempty"`
	AdminID            string        `json:"admin_id,omitempty"`
	Status             SessionStatus `json:"status"`
	CreatedAt          int64         `json:"created_at"`
	LastMessageAt      int64         `json:"last_message_at"`
	VisitorPageURL     string        `json:"visitor_page_url,omitempty"`
	LastMessageSnippet string        `json:"last_message_snippet,omitempty"`
	UnreadAdminCount   int           `json:"unread_admin_count"`
}

// ChatMessage is one entry in a conversation's append-only log.
type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderType     SenderType `json:"sender_type"`
	MessageText    string     `json:"message_text"`
	MessageHTML    string     `json:"message_html,omitempty"`
	Timestamp      int64      `json:"timestamp"` // Unix seconds
	IsReadByAdmin  bool       `json:"is_read_by_admin"`
}

// Before reports whether m sorts before o in a conversation.
func (m ChatMessage) Before(o ChatMessage) bool {
	if m.Timestamp != o.Timestamp {
		return m.Timestamp < o.Timestamp
	}
	return m.ID < o.ID
}

// SortMessages orders messages by (timestamp, id).
func SortMessages(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

// Snippet truncates text to SnippetLength runes for session listings.
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= SnippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:SnippetLength-1]) + "…"
}

// Pagination describes a page of a listing.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
	Limit       int `json:"limit"`
}

// NewPagination computes total pages for a listing.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{CurrentPage: page, TotalPages: totalPages, TotalItems: total, Limit: limit}
}

// SessionPage is one page of the session directory.
type SessionPage struct {
	Data       []ChatSession `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	faintStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	adminStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4FA3F7"))
	systemStyle   = lipgloss.NewStyle().Italic(true).Faint(true)

	statusStyles = map[domain.SessionStatus]lipgloss.Style{
		domain.SessionStatusPending:         lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")),
		domain.SessionStatusActive:          lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		domain.SessionStatusClosedByVisitor: lipgloss.NewStyle().Foreground(lipgloss.Color("#6E7681")),
		domain.SessionStatusClosedByAdmin:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6E7681")),
		domain.SessionStatusArchived:        lipgloss.NewStyle().Faint(true),
	}
)

// maxLogLines is how many messages the console prints per conversation.
const maxLogLines = 15

func statusLabel(s domain.SessionStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

func renderSessions(filter domain.StatusFilter, sessions []domain.ChatSession, p domain.Pagination, selected string) string {
	if filter == "" {
		filter = domain.FilterAll
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Sessions [%s] page %d/%d, %d total", filter, p.CurrentPage, max(p.TotalPages, 1), p.TotalItems)))
	b.WriteString("\n")
	if len(sessions) == 0 {
		b.WriteString(faintStyle.Render("  no sessions"))
		b.WriteString("\n")
		return b.String()
	}

	for _, s := range sessions {
		marker := "  "
		id := s.ID
		if s.ID == selected {
			marker = "> "
			id = selectedStyle.Render(s.ID)
		}
		admin := s.AdminID
		if admin == "" {
			admin = "-"
		}
		unread := ""
		if s.UnreadAdminCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", s.UnreadAdminCount)
		}
		fmt.Fprintf(&b, "%s%s  %s  admin:%s  %s%s\n", marker, id, statusLabel(s.Status), admin, ago(s.LastMessageAt), unread)
		if s.LastMessageSnippet != "" {
			b.WriteString("    ")
			b.WriteString(faintStyle.Render(s.LastMessageSnippet))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderLog prints the tail of a conversation. limit <= 0 prints everything.
func renderLog(conversationID string, messages []domain.ChatMessage, adminID string, limit int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Conversation " + conversationID))
	b.WriteString("\n")

	if limit > 0 && len(messages) > limit {
		fmt.Fprintf(&b, "%s\n", faintStyle.Render(fmt.Sprintf("  ... %d earlier", len(messages)-limit)))
		messages = messages[len(messages)-limit:]
	}
	for _, m := range messages {
		b.WriteString(renderMessage(m, adminID))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(m domain.ChatMessage, adminID string) string {
	stamp := faintStyle.Render(time.Unix(m.Timestamp, 0).Format("15:04:05"))
	switch m.SenderType {
	case domain.SenderSystem:
		return fmt.Sprintf("  %s %s", stamp, systemStyle.Render(m.MessageText))
	case domain.SenderAdmin:
		who := m.SenderID
		if who == adminID && adminID != "" {
			who = "you"
		}
		return fmt.Sprintf("  %s %s %s", stamp, adminStyle.Render(who+":"), m.MessageText)
	default:
		return fmt.Sprintf("  %s %s %s", stamp, headerStyle.Render(m.SenderID+":"), m.MessageText)
	}
}

func ago(unix int64) string {
	if unix == 0 {
		return ""
	}
	d := time.Since(time.Unix(unix, 0)).Round(time.Second)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return time.Unix(unix, 0).Format("2006-01-02")
	}
}

package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name + " must be an integer")
	}
	return val, nil
}

// ListSessions lists chat sessions.
// GET /admin/chat/sessions?page=&limit=&status=
func (h *Handler) ListSessions(c echo.Context) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return h.respondError(c, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.respondError(c, err)
	}

	result, err := h.service.ListSessions(c.Request().Context(), domain.SessionQuery{
		Status: domain.StatusFilter(c.QueryParam("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ClaimSession assigns a pending session to the calling admin.
// POST /admin/chat/sessions/:id/claim
func (h *Handler) ClaimSession(c echo.Context) error {
	session, err := h.service.ClaimSession(c.Request().Context(), c.Param("id"), adminID(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// CloseSession closes a session owned by the calling admin.
// POST /admin/chat/sessions/:id/close
func (h *Handler) CloseSession(c echo.Context) error {
	session, err := h.service.CloseByAdmin(c.Request().Context(), c.Param("id"), adminID(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// ArchiveSession archives a closed session.
// POST /admin/chat/sessions/:id/archive
func (h *Handler) ArchiveSession(c echo.Context) error {
	session, err := h.service.ArchiveSession(c.Request().Context(), c.Param("id"), adminID(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// GetHistory returns a conversation's messages and marks them read.
// GET /admin/chat/sessions/:id/history
func (h *Handler) GetHistory(c echo.Context) error {
	messages, err := h.service.GetHistory(c.Request().Context(), c.Param("id"), adminID(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, domain.HistoryResponse{Data: messages})
}

package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

// InitiateChat opens or continues a visitor chat.
// POST /chat/initiate
func (h *Handler) InitiateChat(c echo.Context) error {
	var req domain.InitiateChatRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, apperr.Validation("invalid request body"))
	}

	resp, err := h.service.InitiateChat(c.Request().Context(), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

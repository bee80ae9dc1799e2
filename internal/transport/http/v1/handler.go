// Package v1 provides the REST handlers for the chat API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/service"
)

// AdminIDKey is the echo context key the auth middleware stores the admin id under.
const AdminIDKey = "admin_id"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the admin routes behind adminAuth and the public
// visitor routes.
func (h *Handler) RegisterRoutes(e *echo.Echo, adminAuth echo.MiddlewareFunc) {
	admin := e.Group("/admin/chat", adminAuth)
	admin.GET("/sessions", h.ListSessions)
	admin.POST("/sessions/:id/claim", h.ClaimSession)
	admin.POST("/sessions/:id/close", h.CloseSession)
	admin.POST("/sessions/:id/archive", h.ArchiveSession)
	admin.GET("/sessions/:id/history", h.GetHistory)

	e.POST("/chat/initiate", h.InitiateChat)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) respondError(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: apperr.Message(err), Code: apperr.Code(err)})
}

func adminID(c echo.Context) string {
	id, _ := c.Get(AdminIDKey).(string)
	return id
}

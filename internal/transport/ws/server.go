// Package ws serves the admin and visitor WebSocket endpoints.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/auth"
	"github.com/rancherdx/pawfect-livechat/internal/config"
	"github.com/rancherdx/pawfect-livechat/internal/domain"
	"github.com/rancherdx/pawfect-livechat/internal/hub"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

const handlerTimeout = 10 * time.Second

// ChatService is the part of the chat service driven by socket messages.
type ChatService interface {
	SendAdminReply(ctx context.Context, adminID string, payload domain.SendMessagePayload) (*domain.ChatMessage, error)
	PostVisitorMessage(ctx context.Context, in domain.VisitorMessage) (*domain.ChatSession, *domain.ChatMessage, bool, error)
	CloseByVisitor(ctx context.Context, visitorID string) (*domain.ChatSession, error)
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	chat     ChatService
	verifier auth.Verifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// visitorInfo is what a visitor socket was opened with.
type visitorInfo struct {
	userID  string
	pageURL string
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, chat ChatService, verifier auth.Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		hub:      h,
		chat:     chat,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers on the storefront and dashboard origins both connect.
				return true
			},
		},
	}
}

// RegisterRoutes mounts the socket endpoints on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/admin-notifications", s.HandleAdmin)
	e.GET("/ws/chat", s.HandleVisitor)
}

// HandleAdmin upgrades an authenticated admin connection. An invalid token
// is refused with 401 before the upgrade.
func (s *Server) HandleAdmin(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	}
	adminID, err := s.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		s.logger.Info("rejected admin websocket", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": apperr.Message(err),
			"code":  apperr.CodeAuthInvalid,
		})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, hub.RoleAdmin, adminID)
	s.start(conn, func(env protocol.Envelope) { s.handleAdminMessage(conn, env) })
	return nil
}

// HandleVisitor upgrades a public visitor connection.
func (s *Server) HandleVisitor(c echo.Context) error {
	visitorID := c.QueryParam("visitor_id")
	if visitorID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "visitor_id is required",
			"code":  apperr.CodeValidation,
		})
	}
	info := visitorInfo{userID: c.QueryParam("user_id"), pageURL: c.QueryParam("page_url")}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, hub.RoleVisitor, visitorID)
	s.start(conn, func(env protocol.Envelope) { s.handleVisitorMessage(conn, info, env) })
	return nil
}

func (s *Server) start(conn *hub.Connection, handle func(protocol.Envelope)) {
	if !s.hub.Register(conn) {
		conn.Close()
		return
	}
	conn.Conn.SetReadLimit(s.cfg.MaxMessageSize)

	// Start reader and writer goroutines
	go s.writePump(conn)
	go s.readPump(conn, handle)
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection, handle func(protocol.Envelope)) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.sendError(conn, "", apperr.Validation("invalid JSON message"))
			continue
		}
		handle(env)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleAdminMessage dispatches admin socket messages.
func (s *Server) handleAdminMessage(conn *hub.Connection, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChatMessageSend:
		var payload domain.SendMessagePayload
		if err := env.Decode(&payload); err != nil {
			s.sendError(conn, env.Ref, apperr.Validation("invalid chat_message_send payload"))
			return
		}
		ref := env.Ref
		if ref == "" {
			ref = payload.ClientMessageID
		}
		if payload.ClientMessageID == "" {
			payload.ClientMessageID = ref
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if _, err := s.chat.SendAdminReply(ctx, conn.PrincipalID, payload); err != nil {
			s.sendError(conn, ref, err)
		}
	default:
		s.sendError(conn, env.Ref, apperr.Validation("unknown message type: "+env.Type))
	}
}

// handleVisitorMessage dispatches visitor socket messages.
func (s *Server) handleVisitorMessage(conn *hub.Connection, info visitorInfo, env protocol.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch env.Type {
	case protocol.TypeChatMessageSend:
		var payload domain.SendMessagePayload
		if err := env.Decode(&payload); err != nil {
			s.sendError(conn, env.Ref, apperr.Validation("invalid chat_message_send payload"))
			return
		}
		_, _, _, err := s.chat.PostVisitorMessage(ctx, domain.VisitorMessage{
			VisitorID:   conn.PrincipalID,
			UserID:      info.userID,
			PageURL:     info.pageURL,
			MessageText: payload.MessageText,
			MessageHTML: payload.MessageHTML,
		})
		if err != nil {
			s.sendError(conn, env.Ref, err)
		}
	case protocol.TypeChatSessionClose:
		if _, err := s.chat.CloseByVisitor(ctx, conn.PrincipalID); err != nil {
			s.sendError(conn, env.Ref, err)
		}
	default:
		s.sendError(conn, env.Ref, apperr.Validation("unknown message type: "+env.Type))
	}
}

// sendError sends an error event correlated with ref.
func (s *Server) sendError(conn *hub.Connection, ref string, err error) {
	if apperr.Code(err) == apperr.CodeInternal {
		s.logger.Error("socket request failed", zap.String("conn_id", conn.ID), zap.Error(err))
	}
	env, encErr := protocol.NewEvent(protocol.TypeError, domain.ErrorPayload{
		Code:    apperr.Code(err),
		Message: apperr.Message(err),
	})
	if encErr != nil {
		return
	}
	if err := s.hub.SendToConnection(conn, env.WithRef(ref)); err != nil {
		s.logger.Warn("failed to send error event", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}

// Package hub provides connection management for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/metrics"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// Role distinguishes admin sockets from visitor sockets.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleVisitor Role = "visitor"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID          string
	Role        Role
	PrincipalID string // admin id or visitor id
	Conn        *websocket.Conn
	Send        chan []byte
	hub         *Hub
	mu          sync.Mutex
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Principal id to set of connection IDs, per role
	admins   map[string]map[string]bool
	visitors map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	broadcast chan *outbound
	done      chan struct{}

	logger  *zap.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// outbound targets every connection of a role, one principal when set, or a
// single connection.
type outbound struct {
	role      Role
	principal string
	conn      *Connection
	data      []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		admins:      make(map[string]map[string]bool),
		visitors:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *outbound, 256),
		done:        make(chan struct{}),
		logger:      logger,
		metrics:     m,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after closing
// every connection's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				h.remove(conn)
				delete(h.connections, id)
			}
			h.mu.Unlock()
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			index := h.index(conn.Role)
			if index[conn.PrincipalID] == nil {
				index[conn.PrincipalID] = make(map[string]bool)
			}
			index[conn.PrincipalID][conn.ID] = true
			h.mu.Unlock()
			h.metrics.ConnectionOpened(string(conn.Role))
			h.logger.Debug("connection registered",
				zap.String("conn_id", conn.ID), zap.String("role", string(conn.Role)), zap.String("principal", conn.PrincipalID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.remove(conn)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if msg.conn != nil {
				if _, ok := h.connections[msg.conn.ID]; ok {
					h.deliver(msg.conn, msg.data)
				}
				h.mu.RUnlock()
				continue
			}
			index := h.index(msg.role)
			for principal, connIDs := range index {
				if msg.principal != "" && principal != msg.principal {
					continue
				}
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						h.deliver(conn, msg.data)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Buffer full, close the connection
		h.logger.Warn("connection buffer full, closing", zap.String("conn_id", conn.ID))
		go h.Unregister(conn)
	}
}

// remove drops conn from its principal index and closes its send channel.
// Callers hold h.mu.
func (h *Hub) remove(conn *Connection) {
	index := h.index(conn.Role)
	if ids := index[conn.PrincipalID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(index, conn.PrincipalID)
		}
	}
	close(conn.Send)
	h.metrics.ConnectionClosed(string(conn.Role))
	h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
}

func (h *Hub) index(role Role) map[string]map[string]bool {
	if role == RoleAdmin {
		return h.admins
	}
	return h.visitors
}

// NewConnection creates a new connection for a principal. It still has to be
// registered.
func (h *Hub) NewConnection(ws *websocket.Conn, role Role, principalID string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		PrincipalID: principalID,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		hub:         h,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) enqueue(msg *outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// BroadcastAdmins sends an envelope to every admin connection.
func (h *Hub) BroadcastAdmins(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.enqueue(&outbound{role: RoleAdmin, data: data})
	return nil
}

// SendToVisitor sends an envelope to every connection of one visitor.
func (h *Hub) SendToVisitor(visitorID string, env protocol.Envelope) error {
	if visitorID == "" {
		return nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.enqueue(&outbound{role: RoleVisitor, principal: visitorID, data: data})
	return nil
}

// SendToConnection sends an envelope to a specific registered connection.
func (h *Hub) SendToConnection(conn *Connection, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.enqueue(&outbound{conn: conn, data: data})
	return nil
}

// Stats is a snapshot of connection counts.
type Stats struct {
	Connections int `json:"connections"`
	Admins      int `json:"admins"`
	Visitors    int `json:"visitors"`
}

// Stats returns the current connection counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: len(h.connections),
		Admins:      len(h.admins),
		Visitors:    len(h.visitors),
	}
}

// IsVisitorOnline checks if a visitor has any active connections.
func (h *Hub) IsVisitorOnline(visitorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.visitors[visitorID]
	return ok && len(connIDs) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
)

// DefaultReconnectInterval is the first delay before redialling.
const DefaultReconnectInterval = 5 * time.Second

// Transport is the realtime channel shared by the console components.
type Transport interface {
	IsConnected() bool
	Send(ctx context.Context, env protocol.Envelope) error
	Subscribe(msgType string, fn func(protocol.Envelope)) (unsubscribe func())
}

// Conn is a reconnecting WebSocket connection to the admin notification
// endpoint.
type Conn struct {
	url               string
	token             string
	dialer            *websocket.Dialer
	logger            *zap.Logger
	reconnectInterval time.Duration
	maxInterval       time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	closed bool

	writeMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[string]map[int]func(protocol.Envelope)
	nextSub int
	states  []func(connected bool)
	ends    []func(error)

	wg sync.WaitGroup
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithReconnectInterval sets the initial and maximum reconnect delays.
func WithReconnectInterval(initial, max time.Duration) ConnOption {
	return func(c *Conn) {
		c.reconnectInterval = initial
		c.maxInterval = max
	}
}

// WithLogger sets the connection logger.
func WithLogger(logger *zap.Logger) ConnOption {
	return func(c *Conn) {
		c.logger = logger
	}
}

// NewConn creates a connection to wsURL authenticated with token. It does
// not dial until Open.
func NewConn(wsURL, token string, opts ...ConnOption) *Conn {
	c := &Conn{
		url:               wsURL,
		token:             token,
		dialer:            &websocket.Dialer{HandshakeTimeout: DefaultRequestTimeout},
		logger:            zap.NewNop(),
		reconnectInterval: DefaultReconnectInterval,
		maxInterval:       time.Minute,
		subs:              make(map[string]map[int]func(protocol.Envelope)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials the server and starts the read loop. The connection then
// reconnects with exponential backoff until Close, ctx ends, the server
// closes normally or for a policy violation, or a redial is refused with
// 401.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperr.New(apperr.CodeDisconnected, "connection closed")
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		return err
	}
	c.setConn(ws)

	c.wg.Add(1)
	go c.loop(ctx, ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDisconnected, "invalid websocket url", err)
	}
	q := u.Query()
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, apperr.Wrap(apperr.CodeAuthInvalid, "chat server rejected the token", err)
		}
		return nil, apperr.Wrap(apperr.CodeDisconnected, "failed to connect to chat server", err)
	}
	return ws, nil
}

func (c *Conn) loop(ctx context.Context, ws *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.readLoop(ws)
		ws.Close()

		stopping := ctx.Err() != nil || c.isClosed()
		if !stopping && !shouldReconnect(err) {
			c.logger.Warn("chat server closed the connection", zap.Error(err))
			c.terminate(closeReason(err))
			c.setConn(nil)
			return
		}
		c.setConn(nil)
		if stopping {
			return
		}
		c.logger.Info("connection lost, reconnecting", zap.Error(err))

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.reconnectInterval
		b.MaxInterval = c.maxInterval
		b.MaxElapsedTime = 0

		var next *websocket.Conn
		var refused error
		err = backoff.RetryNotify(func() error {
			w, err := c.dial(ctx)
			if apperr.Code(err) == apperr.CodeAuthInvalid {
				refused = err
				return nil
			}
			if err != nil {
				return err
			}
			next = w
			return nil
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			c.logger.Debug("reconnect failed", zap.Error(err), zap.Duration("retry_in", wait))
		})
		if refused != nil {
			c.logger.Warn("chat server refused the token", zap.Error(refused))
			c.terminate(refused)
			return
		}
		if err != nil || next == nil {
			return
		}
		if ctx.Err() != nil || c.isClosed() {
			next.Close()
			return
		}
		c.setConn(next)
		ws = next
	}
}

// closeReason maps a final close frame to the error reported to OnTerminate.
func closeReason(err error) error {
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		return apperr.Wrap(apperr.CodeAuthInvalid, "chat server rejected the session", err)
	}
	return apperr.Wrap(apperr.CodeDisconnected, "chat server closed the connection", err)
}

func (c *Conn) terminate(err error) {
	c.subsMu.RLock()
	ends := append([]func(error){}, c.ends...)
	c.subsMu.RUnlock()
	for _, fn := range ends {
		fn(err)
	}
}

// shouldReconnect reports whether a read error warrants redialling.
func shouldReconnect(err error) bool {
	return !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation)
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env protocol.Envelope) {
	c.subsMu.RLock()
	var handlers []func(protocol.Envelope)
	for _, fn := range c.subs[env.Type] {
		handlers = append(handlers, fn)
	}
	for _, fn := range c.subs[protocol.TypeAny] {
		handlers = append(handlers, fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}
}

func (c *Conn) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	changed := (c.ws == nil) != (ws == nil)
	c.ws = ws
	c.mu.Unlock()

	if !changed {
		return
	}
	c.subsMu.RLock()
	states := append([]func(bool){}, c.states...)
	c.subsMu.RUnlock()
	for _, fn := range states {
		fn(ws != nil)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsConnected reports whether a socket is currently open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Send writes an envelope. It fails with a disconnected error when no
// socket is open.
func (c *Conn) Send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return apperr.New(apperr.CodeDisconnected, "not connected to chat server")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultRequestTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(env); err != nil {
		return apperr.Wrap(apperr.CodeDisconnected, "failed to send message", err)
	}
	return nil
}

// Subscribe registers fn for msgType, or every type with protocol.TypeAny.
func (c *Conn) Subscribe(msgType string, fn func(protocol.Envelope)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.subs[msgType] == nil {
		c.subs[msgType] = make(map[int]func(protocol.Envelope))
	}
	id := c.nextSub
	c.nextSub++
	c.subs[msgType][id] = fn

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs[msgType], id)
	}
}

// OnStateChange registers fn to be told when the connection drops or
// comes back.
func (c *Conn) OnStateChange(fn func(connected bool)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.states = append(c.states, fn)
}

// OnTerminate registers fn to be told when the connection stops for good
// without Close being called. It runs before the matching state change.
func (c *Conn) OnTerminate(fn func(err error)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.ends = append(c.ends, fn)
}

// Close ends the connection lifecycle and waits for the read loop to exit.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
	c.wg.Wait()
	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts      = 5
	defaultMinBackoff       = time.Second
	defaultMaxBackoff       = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultStableAfter      = 10 * time.Second
	closeWriteTimeout       = time.Second
)

var (
	// ErrReconnectExhausted is returned by Run once every reconnect attempt failed.
	ErrReconnectExhausted = errors.New("client: reconnect attempts exhausted")
	// ErrHandshakeRejected is returned by Run when the server refuses the credentials.
	ErrHandshakeRejected = errors.New("client: handshake rejected")
	// ErrSessionEnded is returned by Run when the server closed the socket because the user logged out.
	ErrSessionEnded = errors.New("client: session ended by logout")
	// ErrClientClosed is returned when Run is called after Close.
	ErrClientClosed = errors.New("client: closed")

	errMissingURL    = errors.New("client: url is required")
	errMissingToken  = errors.New("client: token is required")
	errMissingUserID = errors.New("client: user id is required")
)

// DesktopNotifier shows an OS level notification. A nil notifier means permission was not granted.
type DesktopNotifier interface {
	Notify(title, body string) error
}

// Config describes the endpoint, credentials and reconnect policy.
type Config struct {
	URL              string
	Token            string
	UserID           int64
	MaxAttempts      int
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	// StableAfter is how long a joined session must last before a drop
	// stops counting towards MaxAttempts.
	StableAfter      time.Duration
	Dialer           *websocket.Dialer
	Logger           *zap.Logger
	Desktop          DesktopNotifier
	Clock            func() time.Time
}

// Client keeps one live socket per session, rejoins the user room after every
// reconnect and projects received events into an Inbox.
type Client struct {
	url         string
	token       string
	userID      int64
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	stableAfter time.Duration
	dialer      *websocket.Dialer
	logger      *zap.Logger
	desktop     DesktopNotifier
	clock       func() time.Time
	inbox       *Inbox

	mu             sync.Mutex
	state          State
	degraded       bool
	closed         bool
	socket         *websocket.Conn
	closing        chan struct{}
	updateHandlers []func(Notification)
	stateHandlers  []func(State)
}

func New(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errMissingURL
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errMissingToken
	}
	if cfg.UserID <= 0 {
		return nil, errMissingUserID
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = defaultMaxBackoff
		if maxBackoff < minBackoff {
			maxBackoff = minBackoff
		}
	}
	stableAfter := cfg.StableAfter
	if stableAfter <= 0 {
		stableAfter = defaultStableAfter
	}
	dialer := cfg.Dialer
	if dialer == nil {
		handshakeTimeout := cfg.HandshakeTimeout
		if handshakeTimeout <= 0 {
			handshakeTimeout = defaultHandshakeTimeout
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Client{
		url:         url,
		token:       token,
		userID:      cfg.UserID,
		maxAttempts: maxAttempts,
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
		stableAfter: stableAfter,
		dialer:      dialer,
		logger:      logger,
		desktop:     cfg.Desktop,
		clock:       clock,
		inbox:       NewInbox(),
		closing:     make(chan struct{}),
	}, nil
}

func (c *Client) Inbox() *Inbox {
	return c.inbox
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports whether the client gave up reconnecting. Callers fall back to polling.
func (c *Client) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// OnTaskUpdate registers a handler invoked for every accepted notification.
func (c *Client) OnTaskUpdate(handler func(Notification)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateHandlers = append(c.updateHandlers, handler)
}

// OnStateChange registers a handler invoked on every state transition.
func (c *Client) OnStateChange(handler func(State)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

// Run connects and consumes events until ctx ends, Close is called, the
// server ends the session on logout, the handshake is rejected or reconnect
// attempts run out.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.degraded = false
	c.mu.Unlock()

	delays := &backoff.Backoff{
		Min:    c.minBackoff,
		Max:    c.maxBackoff,
		Factor: 2,
	}
	// failures counts attempts since the last session that stayed joined for stableAfter.
	failures := 0
	c.setState(StateConnecting)

	for {
		socket, err := c.dial(ctx)
		if err == nil {
			c.setState(StateConnected)
			if err = c.join(socket); err != nil {
				c.clearSocket(socket)
				err = fmt.Errorf("client: join: %w", err)
			}
		}
		if err != nil {
			if c.stopped(ctx) {
				return c.finish(ctx)
			}
			if errors.Is(err, ErrHandshakeRejected) {
				c.logger.Warn("realtime handshake rejected", zap.Int64("user_id", c.userID), zap.Error(err))
				c.setState(StateDisconnected)
				return err
			}
			failures++
			if failures >= c.maxAttempts {
				return c.exhausted(failures, err)
			}
			c.logger.Info("realtime connect failed", zap.Int("attempt", failures), zap.Error(err))
			if !c.retryAfter(ctx, delays.Duration()) {
				return c.finish(ctx)
			}
			continue
		}

		c.setState(StateJoined)
		joinedAt := c.clock()
		err = c.consume(ctx, socket)
		c.clearSocket(socket)

		if c.stopped(ctx) {
			return c.finish(ctx)
		}
		if websocket.IsCloseError(err, realtime.CloseLogout) {
			c.logger.Info("realtime session ended by server", zap.Int64("user_id", c.userID))
			c.terminate()
			c.setState(StateDisconnected)
			return ErrSessionEnded
		}
		c.logger.Info("realtime connection lost", zap.Int64("user_id", c.userID), zap.Error(err))

		if c.clock().Sub(joinedAt) >= c.stableAfter {
			failures = 0
			delays.Reset()
		} else {
			failures++
			if failures >= c.maxAttempts {
				return c.exhausted(failures, err)
			}
		}
		if !c.retryAfter(ctx, delays.Duration()) {
			return c.finish(ctx)
		}
	}
}

// Close disconnects on purpose: no reconnect follows and the inbox is cleared.
func (c *Client) Close() error {
	socket, ok := c.terminate()
	if !ok {
		return nil
	}
	if socket != nil {
		closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
		_ = socket.WriteControl(websocket.CloseMessage, closing, c.clock().Add(closeWriteTimeout))
		_ = socket.Close()
	}
	c.setState(StateDisconnected)
	return nil
}

// terminate marks the client closed and clears the inbox under one lock.
func (c *Client) terminate() (*websocket.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	c.closed = true
	close(c.closing)
	c.inbox.ClearAll()
	return c.socket, true
}

func (c *Client) exhausted(attempts int, err error) error {
	c.logger.Warn("realtime reconnect attempts exhausted",
		zap.Int64("user_id", c.userID),
		zap.Int("attempts", attempts),
		zap.Error(err))
	c.mu.Lock()
	c.degraded = true
	c.mu.Unlock()
	c.setState(StateDisconnected)
	return ErrReconnectExhausted
}

func (c *Client) retryAfter(ctx context.Context, delay time.Duration) bool {
	c.setState(StateReconnecting)
	if !c.wait(ctx, delay) {
		return false
	}
	c.setState(StateConnecting)
	return true
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))

	socket, response, err := c.dialer.DialContext(ctx, c.url, header)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if err != nil {
		if response != nil && response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
		}
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = socket.Close()
		return nil, ErrClientClosed
	}
	c.socket = socket
	c.mu.Unlock()
	return socket, nil
}

// join is sent on every successful connect; membership does not survive a reconnect.
func (c *Client) join(socket *websocket.Conn) error {
	frame, err := realtime.EncodeFrame(realtime.EventJoinUserRoom, c.userID)
	if err != nil {
		return err
	}
	return socket.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) consume(ctx context.Context, socket *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = socket.Close()
		case <-done:
		}
	}()

	for {
		messageType, message, err := socket.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleFrame(message)
	}
}

func (c *Client) handleFrame(message []byte) {
	frame, err := realtime.DecodeFrame(message)
	if err != nil {
		c.logger.Debug("ignoring malformed frame", zap.Error(err))
		return
	}
	if frame.Event == realtime.EventError {
		c.logger.Warn("server rejected message", zap.ByteString("data", frame.Data))
		return
	}
	kind, ok := realtime.ParseEventKind(frame.Event)
	if !ok {
		c.logger.Debug("ignoring unknown event", zap.String("event", frame.Event))
		return
	}

	data, view, accepted, err := render(kind, frame.Data)
	if err != nil {
		c.logger.Info("notification payload rejected", zap.String("event", frame.Event), zap.Error(err))
		return
	}
	if !accepted {
		return
	}

	notification := Notification{
		ID:          newNotificationID(),
		Type:        kind,
		Title:       view.title,
		Message:     view.message,
		Data:        append([]byte(nil), frame.Data...),
		ReceivedAt:  c.clock().UTC(),
		TaskID:      data.TaskID,
		ProjectName: data.ProjectName,
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbox.Add(notification)
	handlers := slices.Clone(c.updateHandlers)
	c.mu.Unlock()

	if view.desktop && c.desktop != nil {
		if err := c.desktop.Notify(view.title, view.message); err != nil {
			c.logger.Debug("desktop notification failed", zap.Error(err))
		}
	}
	for _, handler := range handlers {
		handler(notification)
	}
}

func (c *Client) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	handlers := slices.Clone(c.stateHandlers)
	c.mu.Unlock()
	for _, handler := range handlers {
		handler(next)
	}
}

func (c *Client) clearSocket(socket *websocket.Conn) {
	_ = socket.Close()
	c.mu.Lock()
	if c.socket == socket {
		c.socket = nil
	}
	c.mu.Unlock()
}

func (c *Client) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) finish(ctx context.Context) error {
	c.setState(StateDisconnected)
	if err := ctx.Err(); err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			return err
		}
	}
	return nil
}

func (c *Client) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.closing:
		return false
	}
}

func newNotificationID() string {
	value, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return value.String()
}

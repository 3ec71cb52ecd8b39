package realtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendBuffer      = 16
	defaultPingInterval    = 25 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 4096
	shutdownConcurrency    = 32
)

var (
	// ErrHubClosed is returned when a connection arrives after Shutdown began.
	ErrHubClosed           = errors.New("realtime: hub closed")
	errMissingHandshakeID  = errors.New("realtime: authenticated user id required")
	errInvalidPingSettings = errors.New("realtime: ping interval must be shorter than pong timeout")
)

// IDProvider issues connection identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

func (uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// HubConfig describes transport timing and collaborators.
type HubConfig struct {
	Logger          *zap.Logger
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	Clock           func() time.Time
	IDProvider      IDProvider
	CheckOrigin     func(r *http.Request) bool
}

// Hub owns the WebSocket transport and the registry, router and dispatcher built on top of it.
type Hub struct {
	registry   *ConnectionRegistry
	router     *RoomRouter
	dispatcher *EventDispatcher
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	clock      func() time.Time
	ids        IDProvider

	pingInterval    time.Duration
	pongTimeout     time.Duration
	writeTimeout    time.Duration
	sendBuffer      int
	maxMessageBytes int64

	mu       sync.Mutex
	sessions map[string]*session
	closing  bool
	pumps    sync.WaitGroup
}

type session struct {
	conn   *Connection
	socket *websocket.Conn
}

// NewHub constructs a hub; connections are accepted until Shutdown.
func NewHub(cfg HubConfig) (*Hub, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = uuidProvider{}
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongTimeout := cfg.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = defaultPongTimeout
	}
	if pingInterval >= pongTimeout {
		return nil, errInvalidPingSettings
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	maxMessageBytes := cfg.MaxMessageBytes
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}

	registry := NewConnectionRegistry()
	router := NewRoomRouter(registry, logger)
	return &Hub{
		registry:   registry,
		router:     router,
		dispatcher: NewEventDispatcher(registry, router, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger:          logger,
		clock:           clock,
		ids:             ids,
		pingInterval:    pingInterval,
		pongTimeout:     pongTimeout,
		writeTimeout:    writeTimeout,
		sendBuffer:      sendBuffer,
		maxMessageBytes: maxMessageBytes,
		sessions:        make(map[string]*session),
	}, nil
}

func (h *Hub) Registry() *ConnectionRegistry {
	return h.registry
}

func (h *Hub) Router() *RoomRouter {
	return h.router
}

func (h *Hub) Dispatcher() *EventDispatcher {
	return h.dispatcher
}

// Serve upgrades an authenticated request and runs the connection until it closes.
// Room membership is only granted after the client sends join-user-room.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity Identity) error {
	if identity.UserID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return errMissingHandshakeID
	}
	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	connectionID, err := h.ids.NewID()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return err
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
		return err
	}

	conn := newConnection(connectionID, identity, h.clock().UTC(), h.sendBuffer)
	current := &session{conn: conn, socket: socket}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = socket.Close()
		return ErrHubClosed
	}
	h.sessions[connectionID] = current
	h.pumps.Add(2)
	h.mu.Unlock()

	h.logger.Info("connection established",
		zap.String("connection_id", connectionID),
		zap.Int64("user_id", identity.UserID),
		zap.String("transport", conn.Transport()))

	go h.writePump(current)
	go h.readPump(current)
	return nil
}

// DisconnectUser ends every live connection of userID with CloseLogout and
// returns how many were closed.
func (h *Hub) DisconnectUser(userID int64) int {
	h.mu.Lock()
	targets := make([]*session, 0)
	for _, candidate := range h.sessions {
		if candidate.conn.UserID() == userID {
			targets = append(targets, candidate)
		}
	}
	h.mu.Unlock()
	for _, target := range targets {
		target.conn.closeWith(CloseLogout, CloseReasonLogout)
	}
	return len(targets)
}

// Shutdown stops accepting connections, closes the live ones and waits for their pumps.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	targets := make([]*session, 0, len(h.sessions))
	for _, candidate := range h.sessions {
		targets = append(targets, candidate)
	}
	h.mu.Unlock()

	group := new(errgroup.Group)
	group.SetLimit(shutdownConcurrency)
	for _, target := range targets {
		group.Go(func() error {
			target.conn.closeWith(websocket.CloseGoingAway, "server shutting down")
			return nil
		})
	}
	_ = group.Wait()

	drained := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		h.logger.Info("realtime hub stopped", zap.Int("closed_connections", len(targets)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) readPump(current *session) {
	reason := disconnectTransportError
	defer h.pumps.Done()
	defer func() {
		h.disconnect(current, reason)
	}()

	socket := current.socket
	socket.SetReadLimit(h.maxMessageBytes)
	_ = socket.SetReadDeadline(h.clock().Add(h.pongTimeout))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(h.clock().Add(h.pongTimeout))
	})

	for {
		messageType, message, err := socket.ReadMessage()
		if err != nil {
			reason = classifyReadError(current.conn, err)
			if reason == disconnectTransportError {
				h.logger.Info("connection read failed",
					zap.String("connection_id", current.conn.ID()),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleMessage(current.conn, message)
	}
}

func (h *Hub) handleMessage(conn *Connection, message []byte) {
	frame, err := DecodeFrame(message)
	if err != nil {
		h.logger.Debug("ignoring malformed frame", zap.String("connection_id", conn.ID()), zap.Error(err))
		return
	}
	switch frame.Event {
	case EventJoinUserRoom:
		userID, err := ParseJoinPayload(frame.Data)
		if err != nil {
			h.logger.Info("join payload rejected", zap.String("connection_id", conn.ID()), zap.Error(err))
			h.replyError(conn, "invalid join payload")
			return
		}
		if err := h.router.JoinRoom(conn, userID); err != nil {
			h.replyError(conn, "room join rejected")
		}
	default:
		h.logger.Debug("ignoring unknown client event",
			zap.String("connection_id", conn.ID()),
			zap.String("event", frame.Event))
	}
}

func (h *Hub) replyError(conn *Connection, message string) {
	frame, err := EncodeFrame(EventError, ErrorData{Message: message})
	if err != nil {
		return
	}
	if err := conn.enqueue(frame); err != nil {
		h.logger.Debug("error reply dropped", zap.String("connection_id", conn.ID()), zap.Error(err))
	}
}

func (h *Hub) writePump(current *session) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = current.socket.Close()
		h.pumps.Done()
	}()

	socket := current.socket
	conn := current.conn
	for {
		select {
		case frame := <-conn.send:
			_ = socket.SetWriteDeadline(h.clock().Add(h.writeTimeout))
			if err := socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Info("connection write failed", zap.String("connection_id", conn.ID()), zap.Error(err))
				conn.close()
				return
			}
		case <-ticker.C:
			deadline := h.clock().Add(h.writeTimeout)
			if err := socket.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.close()
				return
			}
		case <-conn.Done():
			deadline := h.clock().Add(h.writeTimeout)
			_ = socket.WriteControl(websocket.CloseMessage, conn.closeFrame(), deadline)
			return
		}
	}
}

const (
	disconnectClientClosed   = "client_closed"
	disconnectServerClosed   = "server_closed"
	disconnectTimeout        = "ping_timeout"
	disconnectTransportError = "transport_error"
)

func classifyReadError(conn *Connection, err error) string {
	select {
	case <-conn.Done():
		return disconnectServerClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return disconnectClientClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return disconnectTimeout
	}
	return disconnectTransportError
}

// disconnect runs once per connection regardless of why it ended.
func (h *Hub) disconnect(current *session, reason string) {
	current.conn.close()
	h.router.Leave(current.conn)

	h.mu.Lock()
	_, tracked := h.sessions[current.conn.ID()]
	delete(h.sessions, current.conn.ID())
	h.mu.Unlock()
	if !tracked {
		return
	}

	h.logger.Info("connection closed",
		zap.String("connection_id", current.conn.ID()),
		zap.Int64("user_id", current.conn.UserID()),
		zap.String("reason", reason),
		zap.Int("remaining_connections", h.registry.ActiveCount(current.conn.UserID())))
}

package realtime

import (
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const roomPrefix = "user-"

var (
	// ErrRoomSpoofing indicates a join request for a user other than the authenticated one.
	ErrRoomSpoofing  = errors.New("realtime: room join does not match authenticated user")
	errNilConnection = errors.New("realtime: connection required")
)

// RoomName derives the broadcast group for a user.
func RoomName(userID int64) string {
	return roomPrefix + strconv.FormatInt(userID, 10)
}

// RoomRouter binds connections to their per-user rooms and keeps the registry in step.
type RoomRouter struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Connection
	registry *ConnectionRegistry
	logger   *zap.Logger
}

// NewRoomRouter constructs a router over the provided registry.
func NewRoomRouter(registry *ConnectionRegistry, logger *zap.Logger) *RoomRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomRouter{
		rooms:    make(map[string]map[string]*Connection),
		registry: registry,
		logger:   logger,
	}
}

// JoinRoom admits conn to the room of userID. A userID that differs from the
// connection's authenticated owner is rejected with ErrRoomSpoofing.
func (r *RoomRouter) JoinRoom(conn *Connection, userID int64) error {
	if conn == nil {
		return errNilConnection
	}
	if conn.UserID() != userID {
		r.logger.Warn("room join rejected",
			zap.String("connection_id", conn.ID()),
			zap.Int64("authenticated_user_id", conn.UserID()),
			zap.Int64("claimed_user_id", userID))
		return ErrRoomSpoofing
	}

	room := RoomName(userID)
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	if _, already := members[conn.ID()]; already {
		r.mu.Unlock()
		return nil
	}
	members[conn.ID()] = conn
	r.mu.Unlock()

	conn.joined.Store(true)
	r.registry.Register(userID, conn.ID())

	r.logger.Debug("connection joined room",
		zap.String("connection_id", conn.ID()),
		zap.String("room", room),
		zap.Int("active_connections", r.registry.ActiveCount(userID)))
	return nil
}

// Leave drops conn from its room and unregisters it. Safe to call for connections that never joined.
func (r *RoomRouter) Leave(conn *Connection) {
	if conn == nil {
		return
	}
	room := RoomName(conn.UserID())
	r.mu.Lock()
	if members, ok := r.rooms[room]; ok {
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	r.mu.Unlock()
	conn.joined.Store(false)
	r.registry.Unregister(conn.ID())
}

// Members returns a snapshot of the connections joined to room.
func (r *RoomRouter) Members(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]*Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// RoomSize returns the current membership count of room.
func (r *RoomRouter) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

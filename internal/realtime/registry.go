package realtime

import "sync"

// ConnectionRegistry tracks the live connection identifiers of every user.
// A connection belongs to exactly one user for its whole lifetime.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	byUser map[int64][]string
	owners map[string]int64
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byUser: make(map[int64][]string),
		owners: make(map[string]int64),
	}
}

// Register appends connectionID to the user's list. It reports false when the
// connection is already registered, either for this user or for another one.
func (r *ConnectionRegistry) Register(userID int64, connectionID string) bool {
	if connectionID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.owners[connectionID]; exists {
		return false
	}
	r.owners[connectionID] = userID
	r.byUser[userID] = append(r.byUser[userID], connectionID)
	return true
}

// Unregister removes connectionID wherever it is registered and returns its owner.
func (r *ConnectionRegistry) Unregister(connectionID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, exists := r.owners[connectionID]
	if !exists {
		return 0, false
	}
	delete(r.owners, connectionID)

	connections := r.byUser[userID]
	for index, candidate := range connections {
		if candidate == connectionID {
			connections = append(connections[:index], connections[index+1:]...)
			break
		}
	}
	if len(connections) == 0 {
		delete(r.byUser, userID)
	} else {
		r.byUser[userID] = connections
	}
	return userID, true
}

// IsOnline reports whether the user has at least one registered connection.
func (r *ConnectionRegistry) IsOnline(userID int64) bool {
	return r.ActiveCount(userID) > 0
}

// ActiveCount returns the number of live connections registered for the user.
func (r *ConnectionRegistry) ActiveCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Connections returns a snapshot of the user's connection identifiers in registration order.
func (r *ConnectionRegistry) Connections(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connections := r.byUser[userID]
	if len(connections) == 0 {
		return nil
	}
	return append([]string(nil), connections...)
}

// OnlineUsers returns the number of users with at least one connection.
func (r *ConnectionRegistry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wednesday-pm/taskrelay/internal/realtime"
)

// Notification is the session-local record of a received event.
type Notification struct {
	ID          string             `json:"id"`
	Type        realtime.EventKind `json:"type"`
	Title       string             `json:"title"`
	Message     string             `json:"message"`
	Data        json.RawMessage    `json:"data"`
	Read        bool               `json:"read"`
	ReceivedAt  time.Time          `json:"receivedAt"`
	TaskID      int64              `json:"taskId"`
	ProjectName string             `json:"projectName,omitempty"`
}

// Inbox keeps notifications newest first. It is safe for concurrent use.
type Inbox struct {
	mu            sync.RWMutex
	notifications []Notification
}

func NewInbox() *Inbox {
	return &Inbox{}
}

// Add places notification at the front of the inbox.
func (i *Inbox) Add(notification Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notifications = append([]Notification{notification}, i.notifications...)
}

// List returns a snapshot, newest first.
func (i *Inbox) List() []Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snapshot := make([]Notification, len(i.notifications))
	copy(snapshot, i.notifications)
	return snapshot
}

// MarkAsRead flags the notification with id as read and reports whether it was found.
func (i *Inbox) MarkAsRead(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for index := range i.notifications {
		if i.notifications[index].ID == id {
			i.notifications[index].Read = true
			return true
		}
	}
	return false
}

func (i *Inbox) ClearAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notifications = nil
}

func (i *Inbox) UnreadCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	unread := 0
	for _, notification := range i.notifications {
		if !notification.Read {
			unread++
		}
	}
	return unread
}

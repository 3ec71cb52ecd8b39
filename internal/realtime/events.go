package realtime

import (
	"errors"
	"fmt"
)

// EventKind names a server-to-client notification.
type EventKind string

const (
	EventTaskAssigned     EventKind = "task-assigned"
	EventTaskUpdated      EventKind = "task-updated"
	EventTaskCommented    EventKind = "task-commented"
	EventTaskCompleted    EventKind = "task-completed"
	EventTaskOverdue      EventKind = "task-overdue"
	EventSubtaskAdded     EventKind = "subtask-added"
	EventSubtaskUpdated   EventKind = "subtask-updated"
	EventSubtaskCompleted EventKind = "subtask-completed"
	EventNoteAdded        EventKind = "note-added"
	EventNoteUpdated      EventKind = "note-updated"
)

const (
	maxContentExcerpt = 100
	excerptEllipsis   = "..."
)

var (
	// ErrUnknownEventKind indicates an event name outside the catalog.
	ErrUnknownEventKind = errors.New("realtime: unknown event kind")
	// ErrPayloadMismatch indicates a payload whose type does not match its event kind.
	ErrPayloadMismatch = errors.New("realtime: payload does not match event kind")
)

var knownKinds = map[EventKind]struct{}{
	EventTaskAssigned:     {},
	EventTaskUpdated:      {},
	EventTaskCommented:    {},
	EventTaskCompleted:    {},
	EventTaskOverdue:      {},
	EventSubtaskAdded:     {},
	EventSubtaskUpdated:   {},
	EventSubtaskCompleted: {},
	EventNoteAdded:        {},
	EventNoteUpdated:      {},
}

// ParseEventKind maps a wire name onto a catalog entry.
func ParseEventKind(value string) (EventKind, bool) {
	kind := EventKind(value)
	_, ok := knownKinds[kind]
	return kind, ok
}

// String returns the wire name.
func (k EventKind) String() string {
	return string(k)
}

// TaskAssigned is pushed to every newly assigned user.
type TaskAssigned struct {
	TaskID      int64  `json:"taskId"`
	Title       string `json:"title"`
	AssignedBy  string `json:"assignedBy"`
	ProjectName string `json:"projectName"`
}

// TaskUpdated is pushed when a task changes; OldStatus is set on status transitions.
type TaskUpdated struct {
	TaskID    int64  `json:"taskId"`
	Title     string `json:"title"`
	UpdatedBy string `json:"updatedBy"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	OldStatus string `json:"oldStatus,omitempty"`
}

// TaskCompleted is pushed to the project owner when a task reaches COMPLETED.
type TaskCompleted struct {
	TaskID      int64  `json:"taskId"`
	Title       string `json:"title"`
	CompletedBy string `json:"completedBy"`
	ProjectName string `json:"projectName"`
}

// TaskCommented is part of the catalog for clients; no call site emits it yet.
type TaskCommented struct {
	TaskID      int64  `json:"taskId"`
	Title       string `json:"title"`
	CommentedBy string `json:"commentedBy"`
	Content     string `json:"content"`
}

// TaskOverdue is part of the catalog for clients; no call site emits it yet.
type TaskOverdue struct {
	TaskID      int64  `json:"taskId"`
	Title       string `json:"title"`
	DueDate     string `json:"dueDate"`
	ProjectName string `json:"projectName,omitempty"`
}

type SubtaskAdded struct {
	TaskID       int64  `json:"taskId"`
	SubtaskID    int64  `json:"subtaskId"`
	Title        string `json:"title"`
	SubtaskTitle string `json:"subtaskTitle"`
	AddedBy      string `json:"addedBy"`
	ProjectName  string `json:"projectName,omitempty"`
}

// SubtaskUpdated carries both subtask-updated and subtask-completed.
type SubtaskUpdated struct {
	TaskID       int64  `json:"taskId"`
	SubtaskID    int64  `json:"subtaskId"`
	Title        string `json:"title"`
	SubtaskTitle string `json:"subtaskTitle"`
	UpdatedBy    string `json:"updatedBy"`
	Completed    bool   `json:"completed"`
	ProjectName  string `json:"projectName,omitempty"`
}

type NoteAdded struct {
	TaskID      int64  `json:"taskId"`
	NoteID      int64  `json:"noteId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	AddedBy     string `json:"addedBy"`
	ProjectName string `json:"projectName,omitempty"`
}

type NoteUpdated struct {
	TaskID      int64  `json:"taskId"`
	NoteID      int64  `json:"noteId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	UpdatedBy   string `json:"updatedBy"`
	ProjectName string `json:"projectName,omitempty"`
}

// Event is an immutable notification addressed to a single user.
type Event struct {
	Kind    EventKind
	UserID  int64
	Payload any
}

// ExcerptContent trims note content to the first 100 characters followed by "..." when longer.
func ExcerptContent(content string) string {
	runes := []rune(content)
	if len(runes) <= maxContentExcerpt {
		return content
	}
	return string(runes[:maxContentExcerpt]) + excerptEllipsis
}

func validatePayload(kind EventKind, payload any) error {
	if _, ok := knownKinds[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
	var ok bool
	switch kind {
	case EventTaskAssigned:
		ok = isPayload[TaskAssigned](payload)
	case EventTaskUpdated:
		ok = isPayload[TaskUpdated](payload)
	case EventTaskCommented:
		ok = isPayload[TaskCommented](payload)
	case EventTaskCompleted:
		ok = isPayload[TaskCompleted](payload)
	case EventTaskOverdue:
		ok = isPayload[TaskOverdue](payload)
	case EventSubtaskAdded:
		ok = isPayload[SubtaskAdded](payload)
	case EventSubtaskUpdated, EventSubtaskCompleted:
		ok = isPayload[SubtaskUpdated](payload)
	case EventNoteAdded:
		ok = isPayload[NoteAdded](payload)
	case EventNoteUpdated:
		ok = isPayload[NoteUpdated](payload)
	}
	if !ok {
		return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, kind, payload)
	}
	return nil
}

func isPayload[T any](payload any) bool {
	switch payload.(type) {
	case T, *T:
		return true
	default:
		return false
	}
}

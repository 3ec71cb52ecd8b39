package tasks

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusStuck      Status = "STUCK"
	StatusCompleted  Status = "COMPLETED"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
	PriorityLow      Priority = "LOW"
)

// ParseStatus normalizes a status; empty input yields NOT_STARTED.
func ParseStatus(raw string) (Status, error) {
	switch value := Status(strings.ToUpper(strings.TrimSpace(raw))); value {
	case "":
		return StatusNotStarted, nil
	case StatusNotStarted, StatusInProgress, StatusStuck, StatusCompleted:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
}

// ParsePriority normalizes a priority, accepting the legacy URGENT and MEDIUM names.
func ParsePriority(raw string) (Priority, error) {
	switch value := Priority(strings.ToUpper(strings.TrimSpace(raw))); value {
	case "":
		return PriorityNormal, nil
	case "URGENT":
		return PriorityCritical, nil
	case "MEDIUM":
		return PriorityNormal, nil
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, raw)
	}
}

// Project groups tasks under a single owner.
type Project struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;size:190;not null" json:"name"`
	OwnerID   int64     `gorm:"column:owner_id;not null;index" json:"ownerId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Project) TableName() string {
	return "projects"
}

// Task is a unit of work. AssigneeID is the primary assignee; the full set
// lives in task_assignments.
type Task struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title       string     `gorm:"column:title;size:255;not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Status      Status     `gorm:"column:status;size:32;not null" json:"status"`
	Priority    Priority   `gorm:"column:priority;size:32;not null" json:"priority"`
	ProjectID   int64      `gorm:"column:project_id;not null;index" json:"projectId"`
	CreatorID   int64      `gorm:"column:creator_id;not null" json:"creatorId"`
	AssigneeID  int64      `gorm:"column:assignee_id;index" json:"assigneeId"`
	DueDate     *time.Time `gorm:"column:due_date" json:"dueDate,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	AssigneeIDs []int64 `gorm:"-" json:"assigneeIds"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskAssignment links a task to one of its assignees.
type TaskAssignment struct {
	TaskID int64 `gorm:"column:task_id;primaryKey"`
	UserID int64 `gorm:"column:user_id;primaryKey;index"`
}

func (TaskAssignment) TableName() string {
	return "task_assignments"
}

type Subtask struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID    int64     `gorm:"column:task_id;not null;index" json:"taskId"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Completed bool      `gorm:"column:completed;not null;default:false" json:"completed"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Subtask) TableName() string {
	return "subtasks"
}

// Note is a free-form comment left on a task by its author.
type Note struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID    int64     `gorm:"column:task_id;not null;index" json:"taskId"`
	UserID    int64     `gorm:"column:user_id;not null" json:"userId"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Note) TableName() string {
	return "notes"
}

// Models lists every table owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&Project{}, &Task{}, &TaskAssignment{}, &Subtask{}, &Note{}}
}

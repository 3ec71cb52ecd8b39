package client

import (
	"encoding/json"
	"fmt"

	"github.com/wednesday-pm/taskrelay/internal/realtime"
)

// eventData is the union of every payload field a client renders.
type eventData struct {
	TaskID       int64  `json:"taskId"`
	Title        string `json:"title"`
	AssignedBy   string `json:"assignedBy"`
	UpdatedBy    string `json:"updatedBy"`
	CompletedBy  string `json:"completedBy"`
	CommentedBy  string `json:"commentedBy"`
	AddedBy      string `json:"addedBy"`
	ProjectName  string `json:"projectName"`
	Status       string `json:"status"`
	OldStatus    string `json:"oldStatus"`
	SubtaskTitle string `json:"subtaskTitle"`
	Content      string `json:"content"`
	DueDate      string `json:"dueDate"`
}

type rendered struct {
	title   string
	message string
	desktop bool
}

// render builds the human readable form of an event. The second result is
// false when the payload carries no task and must be ignored.
func render(kind realtime.EventKind, raw json.RawMessage) (eventData, rendered, bool, error) {
	var data eventData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return eventData{}, rendered{}, false, fmt.Errorf("client: decode %s payload: %w", kind, err)
		}
	}
	if data.TaskID == 0 {
		return data, rendered{}, false, nil
	}

	var out rendered
	switch kind {
	case realtime.EventTaskAssigned:
		out = rendered{
			title:   "New task assigned",
			message: fmt.Sprintf("%s assigned you %q", data.AssignedBy, data.Title),
			desktop: true,
		}
	case realtime.EventTaskUpdated:
		message := fmt.Sprintf("%s updated %q", data.UpdatedBy, data.Title)
		if data.OldStatus != "" {
			message = fmt.Sprintf("%s changed the status of %q from %s to %s", data.UpdatedBy, data.Title, data.OldStatus, data.Status)
		}
		out = rendered{title: "Task updated", message: message, desktop: true}
	case realtime.EventTaskCompleted:
		out = rendered{
			title:   "Task completed",
			message: fmt.Sprintf("%s completed %q", data.CompletedBy, data.Title),
		}
	case realtime.EventTaskCommented:
		out = rendered{
			title:   "New comment",
			message: fmt.Sprintf("%s commented on %q: %s", data.CommentedBy, data.Title, data.Content),
			desktop: true,
		}
	case realtime.EventTaskOverdue:
		out = rendered{
			title:   "Task overdue",
			message: fmt.Sprintf("%q was due %s", data.Title, data.DueDate),
			desktop: true,
		}
	case realtime.EventSubtaskAdded:
		out = rendered{
			title:   "New subtask added",
			message: fmt.Sprintf("%s added subtask %q to %q", data.AddedBy, data.SubtaskTitle, data.Title),
			desktop: true,
		}
	case realtime.EventSubtaskUpdated:
		out = rendered{
			title:   "Subtask updated",
			message: fmt.Sprintf("%s updated subtask %q in %q", data.UpdatedBy, data.SubtaskTitle, data.Title),
			desktop: true,
		}
	case realtime.EventSubtaskCompleted:
		out = rendered{
			title:   "Subtask completed",
			message: fmt.Sprintf("%s completed subtask %q in %q", data.UpdatedBy, data.SubtaskTitle, data.Title),
			desktop: true,
		}
	case realtime.EventNoteAdded:
		out = rendered{
			title:   "New note added",
			message: fmt.Sprintf("%s added a note to %q: %s", data.AddedBy, data.Title, data.Content),
			desktop: true,
		}
	case realtime.EventNoteUpdated:
		out = rendered{
			title:   "Note updated",
			message: fmt.Sprintf("%s updated a note on %q: %s", data.UpdatedBy, data.Title, data.Content),
			desktop: true,
		}
	default:
		return data, rendered{}, false, realtime.ErrUnknownEventKind
	}
	return data, out, true, nil
}

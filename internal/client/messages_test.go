package client

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/wednesday-pm/taskrelay/internal/realtime"
)

func mustMarshal(t *testing.T, value any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestRenderMessages(t *testing.T) {
	testCases := []struct {
		name        string
		kind        realtime.EventKind
		payload     any
		wantTitle   string
		wantMessage string
		wantDesktop bool
	}{
		{
			name:        "assigned",
			kind:        realtime.EventTaskAssigned,
			payload:     realtime.TaskAssigned{TaskID: 42, Title: "Fix bug", AssignedBy: "Alice", ProjectName: "Backend"},
			wantTitle:   "New task assigned",
			wantMessage: `Alice assigned you "Fix bug"`,
			wantDesktop: true,
		},
		{
			name:        "status change",
			kind:        realtime.EventTaskUpdated,
			payload:     realtime.TaskUpdated{TaskID: 1, Title: "Ship", UpdatedBy: "Bob", Status: "COMPLETED", OldStatus: "IN_PROGRESS"},
			wantTitle:   "Task updated",
			wantMessage: `Bob changed the status of "Ship" from IN_PROGRESS to COMPLETED`,
			wantDesktop: true,
		},
		{
			name:        "plain update",
			kind:        realtime.EventTaskUpdated,
			payload:     realtime.TaskUpdated{TaskID: 1, Title: "Ship", UpdatedBy: "Bob", Status: "STUCK"},
			wantTitle:   "Task updated",
			wantMessage: `Bob updated "Ship"`,
			wantDesktop: true,
		},
		{
			name:        "completed has no desktop banner",
			kind:        realtime.EventTaskCompleted,
			payload:     realtime.TaskCompleted{TaskID: 1, Title: "Ship", CompletedBy: "Bob"},
			wantTitle:   "Task completed",
			wantMessage: `Bob completed "Ship"`,
		},
		{
			name:        "subtask completed",
			kind:        realtime.EventSubtaskCompleted,
			payload:     realtime.SubtaskUpdated{TaskID: 1, Title: "Ship", SubtaskTitle: "Tests", UpdatedBy: "Bob", Completed: true},
			wantTitle:   "Subtask completed",
			wantMessage: `Bob completed subtask "Tests" in "Ship"`,
			wantDesktop: true,
		},
		{
			name:        "note added",
			kind:        realtime.EventNoteAdded,
			payload:     realtime.NoteAdded{TaskID: 1, Title: "Ship", Content: "looks good", AddedBy: "Carol"},
			wantTitle:   "New note added",
			wantMessage: `Carol added a note to "Ship": looks good`,
			wantDesktop: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, view, accepted, err := render(testCase.kind, mustMarshal(t, testCase.payload))
			if err != nil || !accepted {
				t.Fatalf("expected accepted payload, got accepted=%v err=%v", accepted, err)
			}
			if view.title != testCase.wantTitle || view.message != testCase.wantMessage || view.desktop != testCase.wantDesktop {
				t.Fatalf("unexpected rendering %+v", view)
			}
		})
	}
}

func TestRenderSkipsPayloadWithoutTask(t *testing.T) {
	_, _, accepted, err := render(realtime.EventTaskAssigned, mustMarshal(t, map[string]any{"title": "orphan"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted {
		t.Fatalf("payload without taskId must be skipped")
	}
}

func TestRenderRejectsMalformedPayload(t *testing.T) {
	_, _, _, err := render(realtime.EventTaskAssigned, json.RawMessage(`{"taskId":"x"`))
	if err == nil || !strings.Contains(err.Error(), "task-assigned") {
		t.Fatalf("expected decode error naming the event, got %v", err)
	}
	_, _, _, err = render(realtime.EventKind("task-archived"), json.RawMessage(`{"taskId":1}`))
	if !errors.Is(err, realtime.ErrUnknownEventKind) {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

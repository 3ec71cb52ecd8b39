package tasks

import "github.com/wednesday-pm/taskrelay/internal/realtime"

// Notice addresses one event kind to one user.
type Notice struct {
	UserID int64
	Kind   realtime.EventKind
}

// Participant is a recipient of subtask and note events. Owner marks the
// project owner's copy, which carries the project name.
type Participant struct {
	UserID int64
	Owner  bool
}

// TaskChange captures the before and after state of a task update.
type TaskChange struct {
	ActorID           int64
	OwnerID           int64
	PreviousAssignees []int64
	CurrentAssignees  []int64
	PreviousPrimary   int64
	CurrentPrimary    int64
	OldStatus         Status
	NewStatus         Status
}

// AssignmentRecipients returns the assignees to notify about a new task.
func AssignmentRecipients(actorID int64, assignees []int64) []int64 {
	recipients := make([]int64, 0, len(assignees))
	seen := make(map[int64]struct{}, len(assignees))
	for _, userID := range assignees {
		if userID <= 0 || userID == actorID {
			continue
		}
		if _, exists := seen[userID]; exists {
			continue
		}
		seen[userID] = struct{}{}
		recipients = append(recipients, userID)
	}
	return recipients
}

// UpdateNotices resolves who hears about a task update and with which kind.
// The owner receives at most one of task-completed or task-updated.
func UpdateNotices(change TaskChange) []Notice {
	previous := make(map[int64]struct{}, len(change.PreviousAssignees))
	for _, userID := range change.PreviousAssignees {
		previous[userID] = struct{}{}
	}
	added := make([]int64, 0, len(change.CurrentAssignees))
	for _, userID := range change.CurrentAssignees {
		if _, exists := previous[userID]; !exists {
			added = append(added, userID)
		}
	}

	notices := make([]Notice, 0, len(added)+2)
	for _, userID := range AssignmentRecipients(change.ActorID, added) {
		notices = append(notices, Notice{UserID: userID, Kind: realtime.EventTaskAssigned})
	}

	completed := change.NewStatus == StatusCompleted && change.OldStatus != StatusCompleted
	ownerNotified := false
	if completed && change.OwnerID > 0 && change.OwnerID != change.ActorID {
		notices = append(notices, Notice{UserID: change.OwnerID, Kind: realtime.EventTaskCompleted})
		ownerNotified = true
	}

	previousPrimary := change.PreviousPrimary
	if previousPrimary > 0 && previousPrimary != change.CurrentPrimary && previousPrimary != change.ActorID {
		if previousPrimary != change.OwnerID || !ownerNotified {
			notices = append(notices, Notice{UserID: previousPrimary, Kind: realtime.EventTaskUpdated})
			if previousPrimary == change.OwnerID {
				ownerNotified = true
			}
		}
	}

	if !ownerNotified && change.OwnerID > 0 && change.OwnerID != change.ActorID {
		notices = append(notices, Notice{UserID: change.OwnerID, Kind: realtime.EventTaskUpdated})
	}
	return notices
}

// ParticipantRecipients returns the task assignee and project owner, minus
// the actor. When the owner is also the assignee they are notified once.
func ParticipantRecipients(actorID, assigneeID, ownerID int64) []Participant {
	recipients := make([]Participant, 0, 2)
	if assigneeID > 0 && assigneeID != actorID {
		recipients = append(recipients, Participant{UserID: assigneeID})
	}
	if ownerID > 0 && ownerID != actorID && ownerID != assigneeID {
		recipients = append(recipients, Participant{UserID: ownerID, Owner: true})
	}
	return recipients
}

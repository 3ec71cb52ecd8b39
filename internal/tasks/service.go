package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound indicates the referenced project, task, subtask or note does not exist.
	ErrNotFound = errors.New("tasks: not found")
	// ErrForbidden indicates the actor may not act on the referenced record.
	ErrForbidden = errors.New("tasks: forbidden")
	// ErrInvalidInput indicates a malformed mutation request.
	ErrInvalidInput = errors.New("tasks: invalid input")

	errMissingDatabase = errors.New("database handle is required")
	errMissingNotifier = errors.New("notifier is required")
	errMissingNames    = errors.New("name resolver is required")
	errMissingActor    = errors.New("actor identifier is required")
	noOpLogger         = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "tasks.service.new"
	opCreateProject  = "tasks.create_project"
	opCreateTask     = "tasks.create_task"
	opUpdateTask     = "tasks.update_task"
	opCreateSubtask  = "tasks.create_subtask"
	opUpdateSubtask  = "tasks.update_subtask"
	opCreateNote     = "tasks.create_note"
	opUpdateNote     = "tasks.update_note"
	opNotify         = "tasks.notify"
	maxTitleLength   = 255
	maxProjectLength = 190
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Notifier pushes a realtime event to one user. Implementations must not block.
type Notifier interface {
	EmitToUser(userID int64, kind realtime.EventKind, payload any)
}

// NameResolver maps user ids to display names used in notifications.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) string
}

type ServiceConfig struct {
	Database *gorm.DB
	Notifier Notifier
	Names    NameResolver
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service commits task mutations and notifies interested users afterwards.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	names    NameResolver
	logger   *zap.Logger
	clock    func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Notifier == nil {
		return nil, newServiceError(opServiceNew, "missing_notifier", errMissingNotifier)
	}
	if cfg.Names == nil {
		return nil, newServiceError(opServiceNew, "missing_name_resolver", errMissingNames)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:       cfg.Database,
		notifier: cfg.Notifier,
		names:    cfg.Names,
		logger:   logger,
		clock:    clock,
	}, nil
}

type CreateProjectInput struct {
	Name string
}

type CreateTaskInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *time.Time
	ProjectID   int64
	AssigneeIDs []int64
}

// UpdateTaskInput applies only the fields that are set. A nil AssigneeIDs
// leaves assignments untouched; an empty slice clears them.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *time.Time
	AssigneeIDs []int64
}

type CreateSubtaskInput struct {
	TaskID int64
	Title  string
}

type UpdateSubtaskInput struct {
	Title     *string
	Completed *bool
}

type CreateNoteInput struct {
	TaskID  int64
	Content string
}

type UpdateNoteInput struct {
	Content string
}

type pendingNotice struct {
	userID  int64
	kind    realtime.EventKind
	payload any
}

// CreateProject creates a project owned by the actor.
func (s *Service) CreateProject(ctx context.Context, actorID int64, input CreateProjectInput) (Project, error) {
	if actorID <= 0 {
		return Project{}, newServiceError(opCreateProject, "missing_actor", errMissingActor)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxProjectLength {
		return Project{}, newServiceError(opCreateProject, "invalid_name", ErrInvalidInput)
	}
	project := Project{Name: name, OwnerID: actorID}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		s.logError(opCreateProject, "insert_failed", err, zap.Int64("actor_id", actorID))
		return Project{}, newServiceError(opCreateProject, "insert_failed", err)
	}
	return project, nil
}

// CreateTask persists a task with its assignees and notifies each assignee
// other than the actor with task-assigned.
func (s *Service) CreateTask(ctx context.Context, actorID int64, input CreateTaskInput) (Task, error) {
	if actorID <= 0 {
		return Task{}, newServiceError(opCreateTask, "missing_actor", errMissingActor)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return Task{}, newServiceError(opCreateTask, "invalid_title", ErrInvalidInput)
	}
	status, err := ParseStatus(input.Status)
	if err != nil {
		return Task{}, newServiceError(opCreateTask, "invalid_status", err)
	}
	priority, err := ParsePriority(input.Priority)
	if err != nil {
		return Task{}, newServiceError(opCreateTask, "invalid_priority", err)
	}
	assignees, err := normalizeAssignees(input.AssigneeIDs)
	if err != nil {
		return Task{}, newServiceError(opCreateTask, "invalid_assignees", err)
	}

	var project Project
	task := Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		Priority:    priority,
		ProjectID:   input.ProjectID,
		CreatorID:   actorID,
		AssigneeID:  primaryAssignee(assignees),
		DueDate:     input.DueDate,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadProject(tx, input.ProjectID)
		if err != nil {
			return s.wrapLoadError(opCreateTask, "project", err, zap.Int64("project_id", input.ProjectID))
		}
		project = loaded
		if err := tx.Create(&task).Error; err != nil {
			s.logError(opCreateTask, "task_insert_failed", err, zap.Int64("project_id", input.ProjectID))
			return newServiceError(opCreateTask, "task_insert_failed", err)
		}
		if err := replaceAssignments(tx, task.ID, assignees); err != nil {
			s.logError(opCreateTask, "assignment_insert_failed", err, zap.Int64("task_id", task.ID))
			return newServiceError(opCreateTask, "assignment_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Task{}, txErr
	}
	task.AssigneeIDs = assignees

	recipients := AssignmentRecipients(actorID, assignees)
	if len(recipients) > 0 {
		actorName := s.names.DisplayName(ctx, actorID)
		notices := make([]pendingNotice, 0, len(recipients))
		for _, userID := range recipients {
			notices = append(notices, pendingNotice{
				userID: userID,
				kind:   realtime.EventTaskAssigned,
				payload: realtime.TaskAssigned{
					TaskID:      task.ID,
					Title:       task.Title,
					AssignedBy:  actorName,
					ProjectName: project.Name,
				},
			})
		}
		s.notify(notices)
	}
	return task, nil
}

// UpdateTask applies the changes and notifies newly added assignees, the
// previous primary assignee and the project owner.
func (s *Service) UpdateTask(ctx context.Context, actorID, taskID int64, input UpdateTaskInput) (Task, error) {
	if actorID <= 0 {
		return Task{}, newServiceError(opUpdateTask, "missing_actor", errMissingActor)
	}

	var (
		task    Task
		project Project
		change  TaskChange
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := loadTaskForUpdate(tx, taskID)
		if err != nil {
			return s.wrapLoadError(opUpdateTask, "task", err, zap.Int64("task_id", taskID))
		}
		task = loaded
		project, err = loadProject(tx, task.ProjectID)
		if err != nil {
			return s.wrapLoadError(opUpdateTask, "project", err, zap.Int64("project_id", task.ProjectID))
		}
		previousAssignees, err := loadAssignees(tx, task.ID)
		if err != nil {
			s.logError(opUpdateTask, "assignment_select_failed", err, zap.Int64("task_id", taskID))
			return newServiceError(opUpdateTask, "assignment_select_failed", err)
		}
		if !canModify(actorID, project, task, previousAssignees) {
			return newServiceError(opUpdateTask, "forbidden", ErrForbidden)
		}

		change = TaskChange{
			ActorID:           actorID,
			OwnerID:           project.OwnerID,
			PreviousAssignees: previousAssignees,
			CurrentAssignees:  previousAssignees,
			PreviousPrimary:   task.AssigneeID,
			CurrentPrimary:    task.AssigneeID,
			OldStatus:         task.Status,
			NewStatus:         task.Status,
		}

		if err := applyTaskInput(&task, input); err != nil {
			return newServiceError(opUpdateTask, "invalid_input", err)
		}
		change.NewStatus = task.Status
		if input.AssigneeIDs != nil {
			assignees, err := normalizeAssignees(input.AssigneeIDs)
			if err != nil {
				return newServiceError(opUpdateTask, "invalid_assignees", err)
			}
			if err := replaceAssignments(tx, task.ID, assignees); err != nil {
				s.logError(opUpdateTask, "assignment_update_failed", err, zap.Int64("task_id", taskID))
				return newServiceError(opUpdateTask, "assignment_update_failed", err)
			}
			task.AssigneeID = primaryAssignee(assignees)
			change.CurrentAssignees = assignees
			change.CurrentPrimary = task.AssigneeID
		}
		task.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&task).Error; err != nil {
			s.logError(opUpdateTask, "task_save_failed", err, zap.Int64("task_id", taskID))
			return newServiceError(opUpdateTask, "task_save_failed", err)
		}
		task.AssigneeIDs = change.CurrentAssignees
		return nil
	})
	if txErr != nil {
		return Task{}, txErr
	}

	notices := UpdateNotices(change)
	if len(notices) == 0 {
		return task, nil
	}
	actorName := s.names.DisplayName(ctx, actorID)
	oldStatus := ""
	if change.OldStatus != change.NewStatus {
		oldStatus = string(change.OldStatus)
	}
	pending := make([]pendingNotice, 0, len(notices))
	for _, notice := range notices {
		var payload any
		switch notice.Kind {
		case realtime.EventTaskAssigned:
			payload = realtime.TaskAssigned{TaskID: task.ID, Title: task.Title, AssignedBy: actorName, ProjectName: project.Name}
		case realtime.EventTaskCompleted:
			payload = realtime.TaskCompleted{TaskID: task.ID, Title: task.Title, CompletedBy: actorName, ProjectName: project.Name}
		default:
			payload = realtime.TaskUpdated{
				TaskID:    task.ID,
				Title:     task.Title,
				UpdatedBy: actorName,
				Status:    string(task.Status),
				Priority:  string(task.Priority),
				OldStatus: oldStatus,
			}
		}
		pending = append(pending, pendingNotice{userID: notice.UserID, kind: notice.Kind, payload: payload})
	}
	s.notify(pending)
	return task, nil
}

// CreateSubtask adds a subtask and notifies the task assignee and project owner.
func (s *Service) CreateSubtask(ctx context.Context, actorID int64, input CreateSubtaskInput) (Subtask, error) {
	if actorID <= 0 {
		return Subtask{}, newServiceError(opCreateSubtask, "missing_actor", errMissingActor)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return Subtask{}, newServiceError(opCreateSubtask, "invalid_title", ErrInvalidInput)
	}

	var (
		task    Task
		project Project
	)
	subtask := Subtask{TaskID: input.TaskID, Title: title}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, project, err = s.loadAccessibleTask(tx, opCreateSubtask, actorID, input.TaskID)
		if err != nil {
			return err
		}
		if err := tx.Create(&subtask).Error; err != nil {
			s.logError(opCreateSubtask, "subtask_insert_failed", err, zap.Int64("task_id", input.TaskID))
			return newServiceError(opCreateSubtask, "subtask_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Subtask{}, txErr
	}

	recipients := ParticipantRecipients(actorID, task.AssigneeID, project.OwnerID)
	if len(recipients) == 0 {
		return subtask, nil
	}
	actorName := s.names.DisplayName(ctx, actorID)
	pending := make([]pendingNotice, 0, len(recipients))
	for _, recipient := range recipients {
		payload := realtime.SubtaskAdded{
			TaskID:       task.ID,
			SubtaskID:    subtask.ID,
			Title:        task.Title,
			SubtaskTitle: subtask.Title,
			AddedBy:      actorName,
		}
		if recipient.Owner {
			payload.ProjectName = project.Name
		}
		pending = append(pending, pendingNotice{userID: recipient.UserID, kind: realtime.EventSubtaskAdded, payload: payload})
	}
	s.notify(pending)
	return subtask, nil
}

// UpdateSubtask changes a subtask. Completing it emits subtask-completed,
// anything else subtask-updated.
func (s *Service) UpdateSubtask(ctx context.Context, actorID, subtaskID int64, input UpdateSubtaskInput) (Subtask, error) {
	if actorID <= 0 {
		return Subtask{}, newServiceError(opUpdateSubtask, "missing_actor", errMissingActor)
	}

	var (
		subtask       Subtask
		task          Task
		project       Project
		justCompleted bool
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", subtaskID).Take(&subtask).Error
		if err != nil {
			return s.wrapLoadError(opUpdateSubtask, "subtask", err, zap.Int64("subtask_id", subtaskID))
		}
		task, project, err = s.loadAccessibleTask(tx, opUpdateSubtask, actorID, subtask.TaskID)
		if err != nil {
			return err
		}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" || len(title) > maxTitleLength {
				return newServiceError(opUpdateSubtask, "invalid_title", ErrInvalidInput)
			}
			subtask.Title = title
		}
		if input.Completed != nil {
			justCompleted = *input.Completed && !subtask.Completed
			subtask.Completed = *input.Completed
		}
		subtask.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&subtask).Error; err != nil {
			s.logError(opUpdateSubtask, "subtask_save_failed", err, zap.Int64("subtask_id", subtaskID))
			return newServiceError(opUpdateSubtask, "subtask_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Subtask{}, txErr
	}

	recipients := ParticipantRecipients(actorID, task.AssigneeID, project.OwnerID)
	if len(recipients) == 0 {
		return subtask, nil
	}
	kind := realtime.EventSubtaskUpdated
	if justCompleted {
		kind = realtime.EventSubtaskCompleted
	}
	actorName := s.names.DisplayName(ctx, actorID)
	pending := make([]pendingNotice, 0, len(recipients))
	for _, recipient := range recipients {
		payload := realtime.SubtaskUpdated{
			TaskID:       task.ID,
			SubtaskID:    subtask.ID,
			Title:        task.Title,
			SubtaskTitle: subtask.Title,
			UpdatedBy:    actorName,
			Completed:    subtask.Completed,
		}
		if recipient.Owner {
			payload.ProjectName = project.Name
		}
		pending = append(pending, pendingNotice{userID: recipient.UserID, kind: kind, payload: payload})
	}
	s.notify(pending)
	return subtask, nil
}

// CreateNote records a note by the actor and notifies the task participants
// with an excerpt of its content.
func (s *Service) CreateNote(ctx context.Context, actorID int64, input CreateNoteInput) (Note, error) {
	if actorID <= 0 {
		return Note{}, newServiceError(opCreateNote, "missing_actor", errMissingActor)
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return Note{}, newServiceError(opCreateNote, "invalid_content", ErrInvalidInput)
	}

	var (
		task    Task
		project Project
	)
	note := Note{TaskID: input.TaskID, UserID: actorID, Content: content}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, project, err = s.loadAccessibleTask(tx, opCreateNote, actorID, input.TaskID)
		if err != nil {
			return err
		}
		if err := tx.Create(&note).Error; err != nil {
			s.logError(opCreateNote, "note_insert_failed", err, zap.Int64("task_id", input.TaskID))
			return newServiceError(opCreateNote, "note_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}

	s.notifyNote(ctx, realtime.EventNoteAdded, actorID, task, project, note)
	return note, nil
}

// UpdateNote rewrites a note; only its author may do so.
func (s *Service) UpdateNote(ctx context.Context, actorID, noteID int64, input UpdateNoteInput) (Note, error) {
	if actorID <= 0 {
		return Note{}, newServiceError(opUpdateNote, "missing_actor", errMissingActor)
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return Note{}, newServiceError(opUpdateNote, "invalid_content", ErrInvalidInput)
	}

	var (
		note    Note
		task    Task
		project Project
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", noteID).Take(&note).Error
		if err != nil {
			return s.wrapLoadError(opUpdateNote, "note", err, zap.Int64("note_id", noteID))
		}
		if note.UserID != actorID {
			return newServiceError(opUpdateNote, "forbidden", ErrForbidden)
		}
		task, err = loadTask(tx, note.TaskID)
		if err != nil {
			return s.wrapLoadError(opUpdateNote, "task", err, zap.Int64("task_id", note.TaskID))
		}
		project, err = loadProject(tx, task.ProjectID)
		if err != nil {
			return s.wrapLoadError(opUpdateNote, "project", err, zap.Int64("project_id", task.ProjectID))
		}
		note.Content = content
		note.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&note).Error; err != nil {
			s.logError(opUpdateNote, "note_save_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opUpdateNote, "note_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}

	s.notifyNote(ctx, realtime.EventNoteUpdated, actorID, task, project, note)
	return note, nil
}

func (s *Service) notifyNote(ctx context.Context, kind realtime.EventKind, actorID int64, task Task, project Project, note Note) {
	recipients := ParticipantRecipients(actorID, task.AssigneeID, project.OwnerID)
	if len(recipients) == 0 {
		return
	}
	actorName := s.names.DisplayName(ctx, actorID)
	excerpt := realtime.ExcerptContent(note.Content)
	pending := make([]pendingNotice, 0, len(recipients))
	for _, recipient := range recipients {
		projectName := ""
		if recipient.Owner {
			projectName = project.Name
		}
		var payload any
		if kind == realtime.EventNoteAdded {
			payload = realtime.NoteAdded{TaskID: task.ID, NoteID: note.ID, Title: task.Title, Content: excerpt, AddedBy: actorName, ProjectName: projectName}
		} else {
			payload = realtime.NoteUpdated{TaskID: task.ID, NoteID: note.ID, Title: task.Title, Content: excerpt, UpdatedBy: actorName, ProjectName: projectName}
		}
		pending = append(pending, pendingNotice{userID: recipient.UserID, kind: kind, payload: payload})
	}
	s.notify(pending)
}

// notify runs after commit; a failing notifier never affects the mutation result.
func (s *Service) notify(notices []pendingNotice) {
	for _, notice := range notices {
		s.emit(notice)
	}
}

func (s *Service) emit(notice pendingNotice) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logError(opNotify, "notifier_panicked", fmt.Errorf("%v", recovered),
				zap.Int64("user_id", notice.userID),
				zap.String("event", notice.kind.String()))
		}
	}()
	s.notifier.EmitToUser(notice.userID, notice.kind, notice.payload)
}

func (s *Service) loadAccessibleTask(tx *gorm.DB, operation string, actorID, taskID int64) (Task, Project, error) {
	task, err := loadTask(tx, taskID)
	if err != nil {
		return Task{}, Project{}, s.wrapLoadError(operation, "task", err, zap.Int64("task_id", taskID))
	}
	project, err := loadProject(tx, task.ProjectID)
	if err != nil {
		return Task{}, Project{}, s.wrapLoadError(operation, "project", err, zap.Int64("project_id", task.ProjectID))
	}
	assignees, err := loadAssignees(tx, task.ID)
	if err != nil {
		s.logError(operation, "assignment_select_failed", err, zap.Int64("task_id", taskID))
		return Task{}, Project{}, newServiceError(operation, "assignment_select_failed", err)
	}
	if !canModify(actorID, project, task, assignees) {
		return Task{}, Project{}, newServiceError(operation, "forbidden", ErrForbidden)
	}
	task.AssigneeIDs = assignees
	return task, project, nil
}

func (s *Service) wrapLoadError(operation, entity string, err error, fields ...zap.Field) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(operation, entity+"_not_found", ErrNotFound)
	}
	s.logError(operation, entity+"_select_failed", err, fields...)
	return newServiceError(operation, entity+"_select_failed", err)
}

func loadProject(tx *gorm.DB, projectID int64) (Project, error) {
	var project Project
	err := tx.Where("id = ?", projectID).Take(&project).Error
	return project, err
}

func loadTask(tx *gorm.DB, taskID int64) (Task, error) {
	var task Task
	err := tx.Where("id = ?", taskID).Take(&task).Error
	return task, err
}

func loadTaskForUpdate(tx *gorm.DB, taskID int64) (Task, error) {
	var task Task
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", taskID).Take(&task).Error
	return task, err
}

func loadAssignees(tx *gorm.DB, taskID int64) ([]int64, error) {
	var assignments []TaskAssignment
	if err := tx.Where("task_id = ?", taskID).Order("user_id ASC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	assignees := make([]int64, 0, len(assignments))
	for _, assignment := range assignments {
		assignees = append(assignees, assignment.UserID)
	}
	return assignees, nil
}

func replaceAssignments(tx *gorm.DB, taskID int64, assignees []int64) error {
	if err := tx.Where("task_id = ?", taskID).Delete(&TaskAssignment{}).Error; err != nil {
		return err
	}
	if len(assignees) == 0 {
		return nil
	}
	rows := make([]TaskAssignment, 0, len(assignees))
	for _, userID := range assignees {
		rows = append(rows, TaskAssignment{TaskID: taskID, UserID: userID})
	}
	return tx.Create(&rows).Error
}

func applyTaskInput(task *Task, input UpdateTaskInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > maxTitleLength {
			return fmt.Errorf("%w: title", ErrInvalidInput)
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		status, err := ParseStatus(*input.Status)
		if err != nil {
			return err
		}
		task.Status = status
	}
	if input.Priority != nil {
		priority, err := ParsePriority(*input.Priority)
		if err != nil {
			return err
		}
		task.Priority = priority
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	return nil
}

// normalizeAssignees drops duplicates while keeping the first-seen order.
func normalizeAssignees(raw []int64) ([]int64, error) {
	assignees := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, userID := range raw {
		if userID <= 0 {
			return nil, fmt.Errorf("%w: assignee id %d", ErrInvalidInput, userID)
		}
		if _, exists := seen[userID]; exists {
			continue
		}
		seen[userID] = struct{}{}
		assignees = append(assignees, userID)
	}
	return assignees, nil
}

func primaryAssignee(assignees []int64) int64 {
	if len(assignees) == 0 {
		return 0
	}
	return assignees[0]
}

func canModify(actorID int64, project Project, task Task, assignees []int64) bool {
	if actorID == project.OwnerID || actorID == task.CreatorID || actorID == task.AssigneeID {
		return true
	}
	for _, userID := range assignees {
		if userID == actorID {
			return true
		}
	}
	return false
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("tasks service error", attrs...)
}

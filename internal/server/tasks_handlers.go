package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"go.uber.org/zap"
)

type createProjectPayload struct {
	Name string `json:"name"`
}

type createTaskPayload struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	DueDate         *time.Time `json:"dueDate"`
	ProjectID       int64      `json:"projectId"`
	AssignedUserIDs []int64    `json:"assignedUserIds"`
}

type updateTaskPayload struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Status          *string    `json:"status"`
	Priority        *string    `json:"priority"`
	DueDate         *time.Time `json:"dueDate"`
	AssignedUserIDs []int64    `json:"assignedUserIds"`
}

type createSubtaskPayload struct {
	TaskID int64  `json:"taskId"`
	Title  string `json:"title"`
}

type updateSubtaskPayload struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type createNotePayload struct {
	TaskID  int64  `json:"taskId"`
	Content string `json:"content"`
}

type updateNotePayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateProject(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request createProjectPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	project, err := h.taskService.CreateProject(c.Request.Context(), principal.UserID, tasks.CreateProjectInput{Name: request.Name})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request createTaskPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.ProjectID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	task, err := h.taskService.CreateTask(c.Request.Context(), principal.UserID, tasks.CreateTaskInput{
		Title:       request.Title,
		Description: request.Description,
		Status:      request.Status,
		Priority:    request.Priority,
		DueDate:     request.DueDate,
		ProjectID:   request.ProjectID,
		AssigneeIDs: request.AssignedUserIDs,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateTaskPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	task, err := h.taskService.UpdateTask(c.Request.Context(), principal.UserID, taskID, tasks.UpdateTaskInput{
		Title:       request.Title,
		Description: request.Description,
		Status:      request.Status,
		Priority:    request.Priority,
		DueDate:     request.DueDate,
		AssigneeIDs: request.AssignedUserIDs,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *httpHandler) handleCreateSubtask(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request createSubtaskPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.TaskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	subtask, err := h.taskService.CreateSubtask(c.Request.Context(), principal.UserID, tasks.CreateSubtaskInput{
		TaskID: request.TaskID,
		Title:  request.Title,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subtask)
}

func (h *httpHandler) handleUpdateSubtask(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	subtaskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateSubtaskPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	subtask, err := h.taskService.UpdateSubtask(c.Request.Context(), principal.UserID, subtaskID, tasks.UpdateSubtaskInput{
		Title:     request.Title,
		Completed: request.Completed,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subtask)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request createNotePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.TaskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.taskService.CreateNote(c.Request.Context(), principal.UserID, tasks.CreateNoteInput{
		TaskID:  request.TaskID,
		Content: request.Content,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	noteID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.taskService.UpdateNote(c.Request.Context(), principal.UserID, noteID, tasks.UpdateNoteInput{Content: request.Content})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return value, true
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	code := "internal_error"
	var serviceErr *tasks.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	switch {
	case errors.Is(err, tasks.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": code})
	case errors.Is(err, tasks.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": code})
	case errors.Is(err, tasks.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": code})
	default:
		h.logger.Error("task mutation failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}

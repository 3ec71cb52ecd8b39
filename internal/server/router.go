package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wednesday-pm/taskrelay/internal/auth"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"github.com/wednesday-pm/taskrelay/internal/users"
	"go.uber.org/zap"
)

const principalContextKey = "taskrelay_principal"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingAuthenticator = errors.New("authenticator dependency required")
	errMissingTaskService   = errors.New("task service dependency required")
	errMissingHub           = errors.New("realtime hub dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type TokenManager interface {
	IssueToken(ctx context.Context, principal auth.Principal) (string, int64, error)
	ValidateToken(token string) (auth.Principal, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (users.User, error)
}

type TaskService interface {
	CreateProject(ctx context.Context, actorID int64, input tasks.CreateProjectInput) (tasks.Project, error)
	CreateTask(ctx context.Context, actorID int64, input tasks.CreateTaskInput) (tasks.Task, error)
	UpdateTask(ctx context.Context, actorID, taskID int64, input tasks.UpdateTaskInput) (tasks.Task, error)
	CreateSubtask(ctx context.Context, actorID int64, input tasks.CreateSubtaskInput) (tasks.Subtask, error)
	UpdateSubtask(ctx context.Context, actorID, subtaskID int64, input tasks.UpdateSubtaskInput) (tasks.Subtask, error)
	CreateNote(ctx context.Context, actorID int64, input tasks.CreateNoteInput) (tasks.Note, error)
	UpdateNote(ctx context.Context, actorID, noteID int64, input tasks.UpdateNoteInput) (tasks.Note, error)
}

type Dependencies struct {
	TokenManager   TokenManager
	Authenticator  Authenticator
	TaskService    TaskService
	Hub            *realtime.Hub
	Revocations    *auth.RevocationList
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.TaskService == nil {
		return nil, errMissingTaskService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	revocations := deps.Revocations
	if revocations == nil {
		revocations = auth.NewRevocationList(time.Now)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		authenticator: deps.Authenticator,
		taskService:   deps.TaskService,
		hub:           deps.Hub,
		revocations:   revocations,
		logger:        logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/socket", handler.handleSocket)
	router.GET("/socket.io/", handler.handleSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.POST("/projects", handler.handleCreateProject)
	protected.POST("/tasks", handler.handleCreateTask)
	protected.PUT("/tasks/:id", handler.handleUpdateTask)
	protected.POST("/subtasks", handler.handleCreateSubtask)
	protected.PUT("/subtasks/:id", handler.handleUpdateSubtask)
	protected.POST("/notes", handler.handleCreateNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.GET("/realtime/presence/:userId", handler.handlePresence)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
	}
	if wildcard {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	tokens        TokenManager
	authenticator Authenticator
	taskService   TaskService
	hub           *realtime.Hub
	revocations   *auth.RevocationList
	logger        *zap.Logger
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResponsePayload struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
	User        userPayload `json:"user"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.authenticator.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("login rejected", zap.String("email", users.NormalizeEmail(request.Email)))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Principal{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User: userPayload{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
			Role:  user.Role,
		},
	})
}

// handleLogout revokes the caller's tokens, then ends every socket the user
// holds with the logout close code so clients do not reconnect.
func (h *httpHandler) handleLogout(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.revocations.Revoke(principal)
	closed := h.hub.DisconnectUser(principal.UserID)
	h.logger.Info("user logged out", zap.Int64("user_id", principal.UserID), zap.Int("closed_connections", closed))
	c.JSON(http.StatusOK, gin.H{"closedConnections": closed})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.revocations.IsRevoked(principal) {
		h.logger.Info("revoked token rejected", zap.Int64("user_id", principal.UserID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_revoked"})
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func principalFromContext(c *gin.Context) (auth.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	principal, ok := value.(auth.Principal)
	if !ok || principal.UserID <= 0 {
		return auth.Principal{}, false
	}
	return principal, true
}

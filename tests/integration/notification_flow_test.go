package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wednesday-pm/taskrelay/internal/auth"
	"github.com/wednesday-pm/taskrelay/internal/client"
	"github.com/wednesday-pm/taskrelay/internal/database"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"github.com/wednesday-pm/taskrelay/internal/server"
	"github.com/wednesday-pm/taskrelay/internal/tasks"
	"github.com/wednesday-pm/taskrelay/internal/users"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
	alicePassword   = "alice-password"
	bobPassword     = "bob-password"
)

type stack struct {
	server *httptest.Server
	hub    *realtime.Hub
	users  *users.Service
}

func newStack(t *testing.T) stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "taskrelay.db"), logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	userService, err := users.NewService(users.ServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "taskrelay-auth",
		Audience:      "taskrelay-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	hub, err := realtime.NewHub(realtime.HubConfig{Logger: logger})
	if err != nil {
		t.Fatalf("hub: %v", err)
	}
	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database: db,
		Notifier: hub.Dispatcher(),
		Names:    userService,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("task service: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  issuer,
		Authenticator: userService,
		TaskService:   taskService,
		Hub:           hub,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		testServer.Close()
	})
	return stack{server: testServer, hub: hub, users: userService}
}

func (s stack) createUser(t *testing.T, name, email, password string) users.User {
	t.Helper()
	user, err := s.users.Create(context.Background(), users.CreateUserInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     users.RoleMember,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func (s stack) login(t *testing.T, email, password string) string {
	t.Helper()
	response := s.send(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", email, response.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, response, &body)
	if body.AccessToken == "" {
		t.Fatalf("login %s returned no token", email)
	}
	return body.AccessToken
}

func (s stack) send(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	request, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = response.Body.Close() })
	return response
}

func (s stack) listen(t *testing.T, token string, userID int64) *client.Client {
	t.Helper()
	listener, err := client.New(client.Config{
		URL:    "ws" + strings.TrimPrefix(s.server.URL, "http") + "/socket",
		Token:  token,
		UserID: userID,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = listener.Run(ctx) }()
	t.Cleanup(func() {
		_ = listener.Close()
		cancel()
	})
	waitFor(t, func() bool { return s.hub.Registry().IsOnline(userID) })
	return listener
}

func decodeBody(t *testing.T, response *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestAssignmentReachesAssigneeAndCompletionReachesOwner(t *testing.T) {
	env := newStack(t)
	alice := env.createUser(t, "Alice", "alice@example.com", alicePassword)
	bob := env.createUser(t, "Bob", "bob@example.com", bobPassword)
	aliceToken := env.login(t, "alice@example.com", alicePassword)
	bobToken := env.login(t, "BOB@example.com", bobPassword)

	aliceClient := env.listen(t, aliceToken, alice.ID)
	bobClient := env.listen(t, bobToken, bob.ID)

	response := env.send(t, http.MethodPost, "/projects", aliceToken, map[string]string{"name": "Backend"})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create project: status %d", response.StatusCode)
	}
	var project tasks.Project
	decodeBody(t, response, &project)

	response = env.send(t, http.MethodPost, "/tasks", aliceToken, map[string]any{
		"title":           "Fix bug",
		"projectId":       project.ID,
		"assignedUserIds": []int64{bob.ID, alice.ID},
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", response.StatusCode)
	}
	var task tasks.Task
	decodeBody(t, response, &task)

	waitFor(t, func() bool { return bobClient.Inbox().UnreadCount() == 1 })
	assigned := bobClient.Inbox().List()[0]
	if assigned.Type != realtime.EventTaskAssigned || assigned.TaskID != task.ID || assigned.ProjectName != "Backend" {
		t.Fatalf("unexpected assignment notification %+v", assigned)
	}
	if assigned.Message != `Alice assigned you "Fix bug"` {
		t.Fatalf("unexpected assignment message %q", assigned.Message)
	}

	response = env.send(t, http.MethodPut, "/tasks/"+strconv.FormatInt(task.ID, 10), bobToken, map[string]string{"status": "COMPLETED"})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("complete task: status %d", response.StatusCode)
	}

	waitFor(t, func() bool { return aliceClient.Inbox().UnreadCount() > 0 })
	received := aliceClient.Inbox().List()
	if len(received) != 1 || received[0].Type != realtime.EventTaskCompleted {
		t.Fatalf("owner must only see the completion, self-assignment stays silent: %+v", received)
	}
	if received[0].Message != `Bob completed "Fix bug"` {
		t.Fatalf("unexpected completion message %q", received[0].Message)
	}
	if bobClient.Inbox().UnreadCount() != 1 {
		t.Fatalf("actor must not be notified of their own update")
	}
}

func TestSocketRequiresMatchingIdentity(t *testing.T) {
	env := newStack(t)
	alice := env.createUser(t, "Alice", "alice@example.com", alicePassword)
	bob := env.createUser(t, "Bob", "bob@example.com", bobPassword)
	aliceToken := env.login(t, "alice@example.com", alicePassword)

	impostor, err := client.New(client.Config{
		URL:    "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket",
		Token:  aliceToken,
		UserID: bob.ID,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := impostor.Run(context.Background()); err == nil {
		t.Fatalf("expected impostor handshake to fail")
	}
	if env.hub.Registry().IsOnline(bob.ID) || env.hub.Registry().IsOnline(alice.ID) {
		t.Fatalf("rejected handshake must not register a connection")
	}
}

func TestLogoutEndsListenerWithoutReconnect(t *testing.T) {
	env := newStack(t)
	bob := env.createUser(t, "Bob", "bob@example.com", bobPassword)
	bobToken := env.login(t, "bob@example.com", bobPassword)

	listener, err := client.New(client.Config{
		URL:        "ws" + strings.TrimPrefix(env.server.URL, "http") + "/socket",
		Token:      bobToken,
		UserID:     bob.ID,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	result := make(chan error, 1)
	go func() { result <- listener.Run(context.Background()) }()
	t.Cleanup(func() { _ = listener.Close() })
	waitFor(t, func() bool { return env.hub.Registry().IsOnline(bob.ID) })

	response := env.send(t, http.MethodPost, "/auth/logout", bobToken, map[string]string{})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", response.StatusCode)
	}

	select {
	case err := <-result:
		if !errors.Is(err, client.ErrSessionEnded) {
			t.Fatalf("expected session ended, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("listener kept running after logout")
	}
	time.Sleep(100 * time.Millisecond)
	if env.hub.Registry().IsOnline(bob.ID) {
		t.Fatalf("listener reconnected after logout")
	}
	if listener.State() != client.StateDisconnected {
		t.Fatalf("expected disconnected listener, got %s", listener.State())
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wednesday-pm/taskrelay/internal/auth"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type realtimeFixture struct {
	server *httptest.Server
	hub    *realtime.Hub
	issuer *auth.TokenIssuer
	logs   *observer.ObservedLogs
}

func newRealtimeFixture(t *testing.T) realtimeFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "taskrelay-auth",
		Audience:      "taskrelay-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	hub, err := realtime.NewHub(realtime.HubConfig{Logger: logger})
	if err != nil {
		t.Fatalf("hub: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:  issuer,
		Authenticator: stubAuthenticator{},
		TaskService:   &stubTaskService{},
		Hub:           hub,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		server.Close()
	})
	return realtimeFixture{server: server, hub: hub, issuer: issuer, logs: logs}
}

func (f realtimeFixture) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, _, err := f.issuer.IssueToken(context.Background(), auth.Principal{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f realtimeFixture) socketURL(path string, token string, userID int64) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?token=" + token + "&userId=" + strconv.FormatInt(userID, 10)
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSocketHandshakeAndJoin(t *testing.T) {
	fixture := newRealtimeFixture(t)
	socket, _, err := websocket.DefaultDialer.Dial(fixture.socketURL("/socket.io/", fixture.token(t, 5, "MEMBER"), 5), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer socket.Close()

	frame, _ := realtime.EncodeFrame(realtime.EventJoinUserRoom, 5)
	if err := socket.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write join: %v", err)
	}
	waitUntil(t, func() bool { return fixture.hub.Registry().IsOnline(5) })

	fixture.hub.Dispatcher().EmitToUser(5, realtime.EventTaskAssigned, realtime.TaskAssigned{TaskID: 42, Title: "Fix bug", AssignedBy: "Alice", ProjectName: "Backend"})
	_ = socket.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := socket.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	received, err := realtime.DecodeFrame(message)
	if err != nil || received.Event != "task-assigned" {
		t.Fatalf("unexpected frame %s", message)
	}
}

func TestSocketHandshakeRejections(t *testing.T) {
	fixture := newRealtimeFixture(t)
	valid := fixture.token(t, 5, "MEMBER")

	testCases := []struct {
		name string
		url  string
	}{
		{name: "missing token", url: "ws" + strings.TrimPrefix(fixture.server.URL, "http") + "/socket?userId=5"},
		{name: "bad token", url: fixture.socketURL("/socket", "garbage", 5)},
		{name: "claimed id mismatch", url: fixture.socketURL("/socket", valid, 9)},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, response, err := websocket.DefaultDialer.Dial(testCase.url, nil)
			if err == nil {
				t.Fatalf("expected handshake to fail")
			}
			if response == nil || response.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", response)
			}
		})
	}
	if fixture.logs.FilterMessage("socket handshake identity mismatch").Len() != 1 {
		t.Fatalf("expected mismatch to be logged")
	}
}

func TestPresenceAndLogout(t *testing.T) {
	fixture := newRealtimeFixture(t)
	token := fixture.token(t, 5, "MEMBER")
	socket, _, err := websocket.DefaultDialer.Dial(fixture.socketURL("/socket", token, 5), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer socket.Close()
	frame, _ := realtime.EncodeFrame(realtime.EventJoinUserRoom, "5")
	_ = socket.WriteMessage(websocket.TextMessage, frame)
	waitUntil(t, func() bool { return fixture.hub.Registry().IsOnline(5) })

	request, _ := http.NewRequest(http.MethodGet, fixture.server.URL+"/realtime/presence/5", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("presence request: %v", err)
	}
	var presence presencePayload
	_ = json.NewDecoder(response.Body).Decode(&presence)
	response.Body.Close()
	if !presence.Online || presence.ActiveConnections != 1 || presence.Room != "user-5" {
		t.Fatalf("unexpected presence %+v", presence)
	}

	request, _ = http.NewRequest(http.MethodGet, fixture.server.URL+"/realtime/presence/6", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("presence request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected members to see only their own presence, got %d", response.StatusCode)
	}

	request, _ = http.NewRequest(http.MethodPost, fixture.server.URL+"/auth/logout", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected logout to succeed, got %d", response.StatusCode)
	}
	waitUntil(t, func() bool { return !fixture.hub.Registry().IsOnline(5) })

	_ = socket.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := socket.ReadMessage(); !websocket.IsCloseError(err, realtime.CloseLogout) {
		t.Fatalf("expected logout close code, got %v", err)
	}
}

func TestLogoutRevokesTokenForSocketAndRoutes(t *testing.T) {
	fixture := newRealtimeFixture(t)
	token := fixture.token(t, 5, "MEMBER")

	request, _ := http.NewRequest(http.MethodPost, fixture.server.URL+"/auth/logout", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("logout request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected logout to succeed, got %d", response.StatusCode)
	}

	_, response, err = websocket.DefaultDialer.Dial(fixture.socketURL("/socket", token, 5), nil)
	if err == nil {
		t.Fatalf("expected a logged out token to be refused at the handshake")
	}
	if response == nil || response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", response)
	}

	request, _ = http.NewRequest(http.MethodGet, fixture.server.URL+"/realtime/presence/5", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("presence request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be refused, got %d", response.StatusCode)
	}
	if fixture.logs.FilterMessage("revoked token rejected").Len() != 2 {
		t.Fatalf("expected both refusals to be logged")
	}

	fresh, _, err := websocket.DefaultDialer.Dial(fixture.socketURL("/socket", fixture.token(t, 5, "MEMBER"), 5), nil)
	if err != nil {
		t.Fatalf("expected a new login to connect: %v", err)
	}
	fresh.Close()
}

func TestHealthEndpoint(t *testing.T) {
	fixture := newRealtimeFixture(t)
	response, err := http.Get(fixture.server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %d", response.StatusCode)
	}
}

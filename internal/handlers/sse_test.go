package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/utils"
	"github.com/gin-gonic/gin"
)

// streamRecorder adds the CloseNotifier gin's Stream expects.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func sseRouter(hub *services.SSEHub) *gin.Engine {
	r := gin.New()
	r.GET("/api/events/role-chain", NewSSEHandler(hub).StreamChainEvents)
	return r
}

func TestStreamChainEvents_RejectsRequests(t *testing.T) {
	utils.SetJWTSecret("sse-test-secret")
	token, _ := utils.GenerateToken(3, "watcher", "user", 1)

	tests := []struct {
		name   string
		query  string
		header string
		status int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bad token", "?token=nope", "", http.StatusUnauthorized},
		{"bad project filter", "?project_id=x", "Bearer " + token, http.StatusBadRequest},
	}

	router := sseRouter(services.NewSSEHub())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/events/role-chain"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, expected %d", w.Code, tt.status)
			}
		})
	}
}

func TestStreamChainEvents_FiltersByProject(t *testing.T) {
	utils.SetJWTSecret("sse-test-secret")
	token, _ := utils.GenerateToken(3, "watcher", "user", 1)

	hub := services.NewSSEHub()
	router := sseRouter(hub)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", "/api/events/role-chain?project_id=1&token="+token, nil)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(services.RoleChainEvent{ProjectID: 2, Action: services.ChainActionRolesAdded})
	hub.Publish(services.RoleChainEvent{ProjectID: 1, Action: services.ChainActionPrioritySet, EmployeeID: 8})
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after the request was cancelled")
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: "+services.ChainActionPrioritySet) {
		t.Errorf("project 1 event missing from stream: %q", body)
	}
	if strings.Contains(body, services.ChainActionRolesAdded) {
		t.Errorf("project 2 event should be filtered out: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client should unsubscribe on disconnect, %d left", hub.ClientCount())
	}
}

package services

import (
	"sync"
	"time"
)

const (
	ChainActionRolesAdded  = "roles_added"
	ChainActionRoleUpdated = "role_updated"
	ChainActionPrioritySet = "priority_set"
	ChainActionRepaired    = "repaired"
)

// RoleChainEvent notifies subscribers that a project's role chain changed
type RoleChainEvent struct {
	ProjectID  uint      `json:"project_id"`
	Action     string    `json:"action"`
	EmployeeID uint      `json:"employee_id,omitempty"`
	Priority   *int      `json:"priority,omitempty"`
	Affected   int       `json:"affected"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan RoleChainEvent
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub instance
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan RoleChainEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string) <-chan RoleChainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan RoleChainEvent, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client from the hub
func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients.
// Slow clients with a full buffer miss the event.
func (h *SSEHub) Publish(event RoleChainEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalSSEHub *SSEHub
var sseHubOnce sync.Once

// GetSSEHub returns the global SSE hub singleton
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}

// PublishChainEvent stamps and broadcasts a chain change
func PublishChainEvent(projectID uint, action string, employeeID uint, priority *int, affected int) {
	GetSSEHub().Publish(RoleChainEvent{
		ProjectID:  projectID,
		Action:     action,
		EmployeeID: employeeID,
		Priority:   priority,
		Affected:   affected,
		OccurredAt: time.Now(),
	})
}

package services

import (
	"testing"
	"time"
)

func TestSSEHub_NewSSEHub(t *testing.T) {
	hub := NewSSEHub()
	if hub == nil {
		t.Fatal("NewSSEHub should not return nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("client1")
	hub.Subscribe("client2")
	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client1")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("unsubscribing nonexistent should not affect count, got %d", hub.ClientCount())
	}
}

func TestSSEHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe("client1")
	hub.Unsubscribe("client1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel should be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for channel close")
	}
}

func TestSSEHub_PublishMultipleClients(t *testing.T) {
	hub := NewSSEHub()

	ch1 := hub.Subscribe("client1")
	ch2 := hub.Subscribe("client2")

	priority := 3
	hub.Publish(RoleChainEvent{ProjectID: 7, Action: ChainActionPrioritySet, EmployeeID: 12, Priority: &priority, Affected: 2})

	for i, ch := range []<-chan RoleChainEvent{ch1, ch2} {
		select {
		case received := <-ch:
			if received.ProjectID != 7 || received.Action != ChainActionPrioritySet {
				t.Errorf("client%d: got %+v", i+1, received)
			}
			if received.Priority == nil || *received.Priority != 3 {
				t.Errorf("client%d: priority = %v, expected 3", i+1, received.Priority)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client%d: timed out waiting for event", i+1)
		}
	}
}

func TestSSEHub_NonBlockingPublish(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe("slow_client")

	for i := 0; i < 200; i++ {
		hub.Publish(RoleChainEvent{ProjectID: uint(i)})
	}

	if len(ch) != cap(ch) {
		t.Errorf("buffer should be full, len=%d cap=%d", len(ch), cap(ch))
	}
}

func TestPublishChainEvent_StampsTime(t *testing.T) {
	hub := GetSSEHub()
	ch := hub.Subscribe("stamp_test")
	defer hub.Unsubscribe("stamp_test")

	before := time.Now()
	PublishChainEvent(1, ChainActionRepaired, 0, nil, 4)

	select {
	case ev := <-ch:
		if ev.OccurredAt.Before(before) {
			t.Errorf("OccurredAt = %v, expected after %v", ev.OccurredAt, before)
		}
		if ev.Affected != 4 {
			t.Errorf("Affected = %d, expected 4", ev.Affected)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}
}

func TestGetSSEHub_Singleton(t *testing.T) {
	if GetSSEHub() != GetSSEHub() {
		t.Error("GetSSEHub should return the same instance")
	}
}

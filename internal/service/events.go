package service

import (
	"sync"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	EventDiscoveryComplete EventType = "discovery-complete"
	EventCompletionAttempt EventType = "completion-attempt"
	EventFallbackAttempt   EventType = "fallback-attempt"
	EventVerification      EventType = "verification"
	EventCompletionReport  EventType = "completion-report"
)

// Event represents an event that occurred during a completion run
type Event struct {
	Type     EventType `json:"type"`
	ReportID string    `json:"report_id,omitempty"`
	Time     time.Time `json:"time"`
	Payload  any       `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events. A nil *EventBus
// drops everything.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes ch. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

package feed

import (
	"encoding/json"
	"time"
)

// Event is a domain event as published by the upstream event store.
type Event struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregateId"`
	AggregateType  string          `json:"aggregateType"`
	EventType      string          `json:"eventType"`
	EventVersion   int64           `json:"eventVersion,omitempty"`
	GlobalSequence int64           `json:"globalSequence,omitempty"`
	Data           json.RawMessage `json:"eventData,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	InsertedAt     time.Time       `json:"insertedAt"`
}

// Saga is the latest known state of one saga instance.
type Saga struct {
	ID            string          `json:"id"`
	SagaType      string          `json:"sagaType"`
	Status        string          `json:"status"`
	State         json.RawMessage `json:"state,omitempty"`
	Commands      json.RawMessage `json:"commandsDispatched,omitempty"`
	EventsHandled json.RawMessage `json:"eventsHandled,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Message is a pub/sub message observed on a topic.
type Message struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	MessageType   string          `json:"messageType,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SourceService string          `json:"sourceService,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SystemEvent is an entry of the system event stream. The upstream does not
// assign ids, so Key derives one from type and timestamp.
type SystemEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Key identifies a system event within its window.
func (e SystemEvent) Key() string {
	if e.Type == "" || e.Timestamp.IsZero() {
		return ""
	}
	return e.Type + "@" + e.Timestamp.UTC().Format(time.RFC3339Nano)
}

// NewEventWindow creates a window keyed by event id.
func NewEventWindow(capacity int) *Window[Event] {
	return NewWindow(capacity,
		func(e Event) string { return e.ID },
		func(e Event) time.Time { return e.InsertedAt })
}

// NewSagaWindow creates a window keyed by saga id; a newer saga state
// replaces the stored one.
func NewSagaWindow(capacity int) *Window[Saga] {
	return NewWindow(capacity,
		func(s Saga) string { return s.ID },
		func(s Saga) time.Time { return s.UpdatedAt })
}

// NewMessageWindow creates a window keyed by message id.
func NewMessageWindow(capacity int) *Window[Message] {
	return NewWindow(capacity,
		func(m Message) string { return m.ID },
		func(m Message) time.Time { return m.Timestamp })
}

// NewSystemEventWindow creates a window keyed by system event id.
func NewSystemEventWindow(capacity int) *Window[SystemEvent] {
	return NewWindow(capacity,
		SystemEvent.Key,
		func(e SystemEvent) time.Time { return e.Timestamp })
}

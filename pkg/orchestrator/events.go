// Package orchestrator implements the cycle/tick driver state machine from
// spec §4.9: it schedules LLM-backed cycles, handles user messages, manages
// rate-limit hibernation, coordinates a periodic governance audit, and
// wakes/sleeps on demand.
package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the taxonomy in spec §6.
type EventType string

const (
	EventStateChanged             EventType = "state_changed"
	EventCycleComplete            EventType = "cycle_complete"
	EventIdle                     EventType = "idle"
	EventError                    EventType = "error"
	EventAuditComplete            EventType = "audit_complete"
	EventIdleHandler              EventType = "idle_handler"
	EventEvaluationRequested      EventType = "evaluation_requested"
	EventProcessOutput            EventType = "process_output"
	EventConversationMessage      EventType = "conversation_message"
	EventConversationResponse     EventType = "conversation_response"
	EventTickStarted              EventType = "tick_started"
	EventTickComplete             EventType = "tick_complete"
	EventMessageInjected          EventType = "message_injected"
	EventRestartRequested         EventType = "restart_requested"
	EventBackupComplete           EventType = "backup_complete"
	EventHealthCheckComplete      EventType = "health_check_complete"
	EventEmailSent                EventType = "email_sent"
	EventMetricsCollected         EventType = "metrics_collected"
	EventReconsiderationComplete  EventType = "reconsideration_complete"
	EventAgoraMessage             EventType = "agora_message"
	EventFileChanged              EventType = "file_changed"
	EventValidationComplete       EventType = "validation_complete"
	EventAutonomyReminderInjected EventType = "autonomy_reminder_injected"
)

// Event is the {type, timestamp, data} envelope fanned out to the sink and
// (via the HTTP edge, outside this package) to WebSocket clients.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Sink receives every event the orchestrator emits, in emission order, per
// spec §5's ordering guarantee.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// MemorySink is an in-memory Sink used by tests to assert on emitted
// events, and a simple default for callers that don't need fan-out.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot of every event recorded so far, in order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfType filters Events() by type.
func (s *MemorySink) OfType(t EventType) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newEvent(t EventType, now time.Time, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: t, Timestamp: now, Data: data}
}

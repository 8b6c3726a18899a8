package events

import (
	"time"

	"github.com/spec-kit/itsm-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketTransitioned EventType = "ticket_transitioned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Workflow     domain.WorkflowType   `json:"workflow"`
	State        domain.WorkflowState  `json:"state"`
	Category     string                `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Severity     string                `json:"severity,omitempty"`
	RequesterID  string                `json:"requester_id"`
	AssigneeID   *string               `json:"assignee_id,omitempty"`
	ManualTriage bool                  `json:"manual_triage"`
	Title        string                `json:"title"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	Workflow    domain.WorkflowType   `json:"workflow"`
	Action      string                `json:"action"`
	OldState    domain.WorkflowState  `json:"old_state"`
	NewState    domain.WorkflowState  `json:"new_state"`
	Priority    domain.TicketPriority `json:"priority"`
	RequesterID string                `json:"requester_id"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Comment     string                `json:"comment,omitempty"`
}

package domain

import "time"

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Valid reports whether the priority is a known value.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketStatus mirrors the state of the ticket's workflow instance. It is
// always derived via StatusForState and never set independently.
type TicketStatus string

// Open reports whether the status counts as open for listing and for the
// duplicate-detection window.
func (s TicketStatus) Open() bool {
	switch WorkflowState(s) {
	case StateResolved, StateClosed, StateCompleted, StateRejected, StateFailed:
		return false
	}
	return true
}

// DuplicateCandidate references an existing ticket scored as textually
// similar. Candidates are never auto-merged.
type DuplicateCandidate struct {
	TicketID string  `json:"ticket_id"`
	Score    float64 `json:"score"`
}

// Ticket is the aggregate for support submissions.
type Ticket struct {
	ID                  string
	Title               string
	Description         string
	Category            string
	Priority            TicketPriority
	RequesterID         string
	AssigneeID          *string
	Status              TicketStatus
	RoutedWorkflow      WorkflowType
	RoutingConfidence   float64
	ManualTriage        bool
	DuplicateCandidates []DuplicateCandidate
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int64
}

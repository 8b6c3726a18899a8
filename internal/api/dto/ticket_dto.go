package dto

import (
	"time"

	"github.com/spec-kit/itsm-core/internal/domain"
)

// SubmitTicketRequest payload.
type SubmitTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    string                `json:"category,omitempty"`
	TypeHint    string                `json:"type_hint,omitempty"`
	Priority    domain.TicketPriority `json:"priority,omitempty"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Action          string `json:"action"`
	ExpectedVersion int64  `json:"expected_version"`
	AssigneeID      string `json:"assignee_id,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	RootCause       string `json:"root_cause,omitempty"`
	Reason          string `json:"reason,omitempty"`
	IncidentID      string `json:"incident_id,omitempty"`
	RiskLevel       string `json:"risk_level,omitempty"`
	RollbackPlan    string `json:"rollback_plan,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                string                `json:"id"`
	Title             string                `json:"title"`
	Category          string                `json:"category"`
	Priority          domain.TicketPriority `json:"priority"`
	Status            domain.TicketStatus   `json:"status"`
	RoutedWorkflow    domain.WorkflowType   `json:"routed_workflow"`
	RoutingConfidence float64               `json:"routing_confidence"`
	ManualTriage      bool                  `json:"manual_triage"`
	AssigneeID        *string               `json:"assignee_id,omitempty"`
	Version           int64                 `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with its workflow instance.
type TicketDetailResponse struct {
	TicketSummary
	Description         string               `json:"description"`
	RequesterID         string               `json:"requester_id"`
	DuplicateCandidates []DuplicateCandidate `json:"duplicate_candidates"`
	Workflow            WorkflowResponse     `json:"workflow"`
}

// DuplicateCandidate response.
type DuplicateCandidate struct {
	TicketID string  `json:"ticket_id"`
	Score    float64 `json:"score"`
}

// WorkflowResponse represents the state-machine attachment.
type WorkflowResponse struct {
	ID      string                 `json:"id"`
	Type    domain.WorkflowType    `json:"type"`
	State   domain.WorkflowState   `json:"state"`
	Details domain.WorkflowDetails `json:"details"`
}

// AuditEntryResponse is one immutable audit record.
type AuditEntryResponse struct {
	ID             string         `json:"id"`
	ActorID        string         `json:"actor_id"`
	Action         string         `json:"action"`
	BeforeSnapshot map[string]any `json:"before_snapshot,omitempty"`
	AfterSnapshot  map[string]any `json:"after_snapshot"`
	Timestamp      time.Time      `json:"timestamp"`
}

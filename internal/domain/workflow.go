package domain

import "time"

// WorkflowType discriminates the state machine attached to a ticket.
type WorkflowType string

const (
	WorkflowServiceDesk WorkflowType = "SERVICE_DESK"
	WorkflowIncident    WorkflowType = "INCIDENT"
	WorkflowProblem     WorkflowType = "PROBLEM"
	WorkflowChange      WorkflowType = "CHANGE"
	WorkflowRequest     WorkflowType = "REQUEST"
)

// WorkflowState is a state drawn from one variant's state set.
type WorkflowState string

const (
	StateOpen            WorkflowState = "OPEN"
	StateInProgress      WorkflowState = "IN_PROGRESS"
	StateTroubleshooting WorkflowState = "TROUBLESHOOTING"
	StateAnalyzing       WorkflowState = "ANALYZING"
	StateResolved        WorkflowState = "RESOLVED"
	StateClosed          WorkflowState = "CLOSED"
	StateDraft           WorkflowState = "DRAFT"
	StatePendingApproval WorkflowState = "PENDING_APPROVAL"
	StateApproved        WorkflowState = "APPROVED"
	StateRejected        WorkflowState = "REJECTED"
	StateImplementing    WorkflowState = "IMPLEMENTING"
	StateCompleted       WorkflowState = "COMPLETED"
	StateFailed          WorkflowState = "FAILED"
)

// StatusForState derives the ticket status for a workflow state. Single owner
// of the mapping so the two fields can never drift.
func StatusForState(state WorkflowState) TicketStatus {
	return TicketStatus(state)
}

// Catalog item types for fulfillment requests.
const (
	CatalogItemTypeAccess   = "ACCESS"
	CatalogItemTypeHardware = "HARDWARE"
	CatalogItemTypeSoftware = "SOFTWARE"
	CatalogItemTypeGeneral  = "GENERAL"
)

// ServiceDeskDetails carries generic workflow fields.
type ServiceDeskDetails struct {
	Resolution string `json:"resolution,omitempty"`
}

// IncidentDetails carries incident workflow fields.
type IncidentDetails struct {
	Severity   string `json:"severity"`
	Impact     string `json:"impact,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// ProblemDetails carries problem workflow fields.
type ProblemDetails struct {
	RootCause          string   `json:"root_cause,omitempty"`
	RelatedIncidentIDs []string `json:"related_incident_ids,omitempty"`
}

// ChangeDetails carries change workflow fields.
type ChangeDetails struct {
	RiskLevel       string  `json:"risk_level,omitempty"`
	RollbackPlan    string  `json:"rollback_plan,omitempty"`
	ApproverID      *string `json:"approver_id,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	FailureReason   string  `json:"failure_reason,omitempty"`
}

// RequestDetails carries fulfillment request workflow fields.
type RequestDetails struct {
	CatalogItem     string  `json:"catalog_item"`
	CatalogItemType string  `json:"catalog_item_type"`
	ApproverID      *string `json:"approver_id,omitempty"`
	ProgressPercent int     `json:"progress_percent"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
}

// WorkflowInstance is the type-specific state-machine record attached to
// exactly one ticket. Exactly one variant detail pointer is non-nil.
type WorkflowInstance struct {
	ID          string
	TicketID    string
	Type        WorkflowType
	State       WorkflowState
	ServiceDesk *ServiceDeskDetails
	Incident    *IncidentDetails
	Problem     *ProblemDetails
	Change      *ChangeDetails
	Request     *RequestDetails
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowDetails is the serialized union of variant payloads.
type WorkflowDetails struct {
	ServiceDesk *ServiceDeskDetails `json:"service_desk,omitempty"`
	Incident    *IncidentDetails    `json:"incident,omitempty"`
	Problem     *ProblemDetails     `json:"problem,omitempty"`
	Change      *ChangeDetails      `json:"change,omitempty"`
	Request     *RequestDetails     `json:"request,omitempty"`
}

// Details collects the variant payload for serialization.
func (w *WorkflowInstance) Details() WorkflowDetails {
	return WorkflowDetails{
		ServiceDesk: w.ServiceDesk,
		Incident:    w.Incident,
		Problem:     w.Problem,
		Change:      w.Change,
		Request:     w.Request,
	}
}

// ApplyDetails restores the variant payload after deserialization.
func (w *WorkflowInstance) ApplyDetails(d WorkflowDetails) {
	w.ServiceDesk = d.ServiceDesk
	w.Incident = d.Incident
	w.Problem = d.Problem
	w.Change = d.Change
	w.Request = d.Request
}

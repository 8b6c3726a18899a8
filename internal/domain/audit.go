package domain

import "time"

// Audited entity types.
const (
	EntityTypeTicket = "TICKET"
)

// AuditEntry records one successful mutation. Immutable once written: no
// update or delete operation exists anywhere in the service.
type AuditEntry struct {
	ID             string
	EntityType     string
	EntityID       string
	ActorID        string
	Action         string
	BeforeSnapshot map[string]any
	AfterSnapshot  map[string]any
	Timestamp      time.Time
}

// NewAuditEntry builds an entry with the timestamp set. The caller assigns
// the identifier at persistence time if left empty.
func NewAuditEntry(entityType, entityID, actorID, action string, before, after map[string]any) *AuditEntry {
	return &AuditEntry{
		EntityType:     entityType,
		EntityID:       entityID,
		ActorID:        actorID,
		Action:         action,
		BeforeSnapshot: before,
		AfterSnapshot:  after,
		Timestamp:      time.Now().UTC(),
	}
}

// TicketSnapshot captures the audit-relevant view of a ticket and its
// workflow instance.
func TicketSnapshot(t *Ticket, wf *WorkflowInstance) map[string]any {
	snap := map[string]any{
		"status":   t.Status,
		"priority": t.Priority,
		"category": t.Category,
		"workflow": t.RoutedWorkflow,
		"version":  t.Version,
	}
	if t.AssigneeID != nil {
		snap["assignee_id"] = *t.AssigneeID
	}
	if wf != nil {
		snap["state"] = wf.State
	}
	return snap
}

package workflow

import (
	"strings"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// Action names a requested state change on a workflow instance.
type Action string

const (
	ActionAssign       Action = "assign"
	ActionResolve      Action = "resolve"
	ActionClose        Action = "close"
	ActionReopen       Action = "reopen"
	ActionTroubleshoot Action = "troubleshoot"
	ActionAnalyze      Action = "analyze"
	ActionLinkIncident Action = "linkIncident"
	ActionSubmit       Action = "submit"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionImplement    Action = "implement"
	ActionComplete     Action = "complete"
	ActionFail         Action = "fail"
	ActionStart        Action = "start"
)

// Payload carries the fields an edge may require. Edges validate only the
// fields they name; everything else is ignored.
type Payload struct {
	ActorID      string
	ActorRoles   []domain.Role
	AssigneeID   string
	Resolution   string
	RootCause    string
	Reason       string
	IncidentID   string
	RiskLevel    string
	RollbackPlan string
	Comment      string
}

type edge struct {
	from     domain.WorkflowState
	to       domain.WorkflowState
	validate func(p Payload, wf *domain.WorkflowInstance) error
	apply    func(p Payload, t *domain.Ticket, wf *domain.WorkflowInstance)
}

// Apply executes the named action against the instance, mutating it and the
// ticket on success. Illegal (state, action) pairs fail with
// INVALID_STATE_TRANSITION and mutate nothing; validation runs before any
// mutation.
func Apply(t *domain.Ticket, wf *domain.WorkflowInstance, action Action, p Payload) (domain.WorkflowState, error) {
	actions, ok := transitionTables[wf.Type]
	if !ok {
		return "", util.NewValidationError("unknown workflow type", map[string]any{"workflow": wf.Type})
	}
	for _, e := range actions[action] {
		if e.from != wf.State {
			continue
		}
		if e.validate != nil {
			if err := e.validate(p, wf); err != nil {
				return "", err
			}
		}
		wf.State = e.to
		if e.apply != nil {
			e.apply(p, t, wf)
		}
		return wf.State, nil
	}
	return "", util.NewInvalidStateTransition(string(wf.Type), string(action), string(wf.State))
}

// InitialState returns the state a new instance starts in. A Request created
// with priority Low for an Access catalog item is auto-approved and skips
// PendingApproval.
func InitialState(wfType domain.WorkflowType, priority domain.TicketPriority, catalogItemType string) domain.WorkflowState {
	switch wfType {
	case domain.WorkflowChange:
		return domain.StateDraft
	case domain.WorkflowRequest:
		if priority == domain.TicketPriorityLow && strings.EqualFold(catalogItemType, domain.CatalogItemTypeAccess) {
			return domain.StateApproved
		}
		return domain.StatePendingApproval
	default:
		return domain.StateOpen
	}
}

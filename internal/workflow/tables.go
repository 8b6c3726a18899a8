package workflow

import (
	"strings"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

var transitionTables = map[domain.WorkflowType]map[Action][]edge{
	domain.WorkflowServiceDesk: {
		ActionAssign: {
			{from: domain.StateOpen, to: domain.StateInProgress, validate: needsAssignee, apply: applyAssignee},
		},
		ActionResolve: {
			{from: domain.StateInProgress, to: domain.StateResolved, validate: needsResolution, apply: applyServiceDeskResolution},
		},
		ActionClose: {
			{from: domain.StateResolved, to: domain.StateClosed},
		},
		ActionReopen: {
			{from: domain.StateResolved, to: domain.StateOpen},
			{from: domain.StateClosed, to: domain.StateOpen},
		},
	},
	domain.WorkflowIncident: {
		ActionAssign: {
			{from: domain.StateOpen, to: domain.StateInProgress, validate: needsAssignee, apply: applyAssignee},
		},
		ActionTroubleshoot: {
			{from: domain.StateInProgress, to: domain.StateTroubleshooting},
		},
		ActionResolve: {
			{from: domain.StateInProgress, to: domain.StateResolved, validate: needsResolution, apply: applyIncidentResolution},
			{from: domain.StateTroubleshooting, to: domain.StateResolved, validate: needsResolution, apply: applyIncidentResolution},
		},
	},
	domain.WorkflowProblem: {
		ActionAnalyze: {
			{from: domain.StateOpen, to: domain.StateAnalyzing},
		},
		ActionLinkIncident: {
			// Self-loops: linking mutates the instance without changing state.
			{from: domain.StateOpen, to: domain.StateOpen, validate: needsIncidentID, apply: applyLinkedIncident},
			{from: domain.StateAnalyzing, to: domain.StateAnalyzing, validate: needsIncidentID, apply: applyLinkedIncident},
		},
		ActionResolve: {
			{from: domain.StateAnalyzing, to: domain.StateResolved, validate: needsRootCause, apply: applyRootCause},
		},
	},
	domain.WorkflowChange: {
		ActionSubmit: {
			{from: domain.StateDraft, to: domain.StatePendingApproval, apply: applyChangePlan},
		},
		ActionApprove: {
			{from: domain.StatePendingApproval, to: domain.StateApproved, validate: validateChangeApproval, apply: applyApprover},
		},
		ActionReject: {
			{from: domain.StatePendingApproval, to: domain.StateRejected, validate: needsReason, apply: applyChangeRejection},
		},
		ActionImplement: {
			{from: domain.StateApproved, to: domain.StateImplementing},
		},
		ActionComplete: {
			{from: domain.StateImplementing, to: domain.StateCompleted},
		},
		ActionFail: {
			{from: domain.StateImplementing, to: domain.StateFailed, apply: applyChangeFailure},
		},
	},
	domain.WorkflowRequest: {
		ActionApprove: {
			{from: domain.StatePendingApproval, to: domain.StateApproved, validate: needsApproverRole, apply: applyApprover},
		},
		ActionReject: {
			{from: domain.StatePendingApproval, to: domain.StateRejected, validate: needsReason, apply: applyRequestRejection},
		},
		ActionStart: {
			{from: domain.StateApproved, to: domain.StateInProgress},
		},
		ActionComplete: {
			{from: domain.StateInProgress, to: domain.StateCompleted, apply: applyRequestCompletion},
		},
	},
}

func needsAssignee(p Payload, _ *domain.WorkflowInstance) error {
	if strings.TrimSpace(p.AssigneeID) == "" {
		return util.NewValidationError("assignee is required", map[string]any{"field": "assigneeId"})
	}
	return nil
}

func needsResolution(p Payload, _ *domain.WorkflowInstance) error {
	if strings.TrimSpace(p.Resolution) == "" {
		return util.NewValidationError("resolution note is required", map[string]any{"field": "resolution"})
	}
	return nil
}

func needsRootCause(p Payload, _ *domain.WorkflowInstance) error {
	if strings.TrimSpace(p.RootCause) == "" {
		return util.NewValidationError("root cause is required", map[string]any{"field": "rootCause"})
	}
	return nil
}

func needsReason(p Payload, _ *domain.WorkflowInstance) error {
	if strings.TrimSpace(p.Reason) == "" {
		return util.NewValidationError("reason is required", map[string]any{"field": "reason"})
	}
	return nil
}

func needsIncidentID(p Payload, _ *domain.WorkflowInstance) error {
	if strings.TrimSpace(p.IncidentID) == "" {
		return util.NewValidationError("incident id is required", map[string]any{"field": "incidentId"})
	}
	return nil
}

func needsApproverRole(p Payload, _ *domain.WorkflowInstance) error {
	for _, role := range p.ActorRoles {
		if role == domain.RoleApprover || role == domain.RoleAdmin {
			return nil
		}
	}
	return util.NewForbidden("approver role required")
}

// validateChangeApproval refuses approval of a change without a rollback
// plan regardless of the caller's role; the role check comes second.
func validateChangeApproval(p Payload, wf *domain.WorkflowInstance) error {
	if wf.Change == nil || strings.TrimSpace(wf.Change.RollbackPlan) == "" {
		return util.NewValidationError("rollback plan must be set before approval", map[string]any{"field": "rollbackPlan"})
	}
	return needsApproverRole(p, wf)
}

func applyAssignee(p Payload, t *domain.Ticket, _ *domain.WorkflowInstance) {
	assignee := strings.TrimSpace(p.AssigneeID)
	t.AssigneeID = &assignee
}

func applyServiceDeskResolution(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.ServiceDesk == nil {
		wf.ServiceDesk = &domain.ServiceDeskDetails{}
	}
	wf.ServiceDesk.Resolution = strings.TrimSpace(p.Resolution)
}

func applyIncidentResolution(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Incident != nil {
		wf.Incident.Resolution = strings.TrimSpace(p.Resolution)
	}
}

func applyLinkedIncident(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Problem == nil {
		wf.Problem = &domain.ProblemDetails{}
	}
	incidentID := strings.TrimSpace(p.IncidentID)
	for _, existing := range wf.Problem.RelatedIncidentIDs {
		if existing == incidentID {
			return
		}
	}
	wf.Problem.RelatedIncidentIDs = append(wf.Problem.RelatedIncidentIDs, incidentID)
}

func applyRootCause(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Problem == nil {
		wf.Problem = &domain.ProblemDetails{}
	}
	wf.Problem.RootCause = strings.TrimSpace(p.RootCause)
}

func applyChangePlan(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Change == nil {
		wf.Change = &domain.ChangeDetails{}
	}
	if risk := strings.TrimSpace(p.RiskLevel); risk != "" {
		wf.Change.RiskLevel = risk
	}
	if plan := strings.TrimSpace(p.RollbackPlan); plan != "" {
		wf.Change.RollbackPlan = plan
	}
}

func applyApprover(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	actor := p.ActorID
	switch {
	case wf.Change != nil:
		wf.Change.ApproverID = &actor
	case wf.Request != nil:
		wf.Request.ApproverID = &actor
	}
}

func applyChangeRejection(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Change != nil {
		wf.Change.RejectionReason = strings.TrimSpace(p.Reason)
	}
}

func applyChangeFailure(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Change != nil {
		wf.Change.FailureReason = strings.TrimSpace(p.Reason)
	}
}

func applyRequestRejection(p Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Request != nil {
		wf.Request.RejectionReason = strings.TrimSpace(p.Reason)
	}
}

func applyRequestCompletion(_ Payload, _ *domain.Ticket, wf *domain.WorkflowInstance) {
	if wf.Request != nil {
		wf.Request.ProgressPercent = 100
	}
}

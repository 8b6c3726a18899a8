package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

func newInstance(wfType domain.WorkflowType, state domain.WorkflowState) (*domain.Ticket, *domain.WorkflowInstance) {
	ticket := &domain.Ticket{ID: "TKT-1-AAAA", Priority: domain.TicketPriorityMedium, Version: 1}
	wf := &domain.WorkflowInstance{ID: "wf-1", TicketID: ticket.ID, Type: wfType, State: state}
	switch wfType {
	case domain.WorkflowServiceDesk:
		wf.ServiceDesk = &domain.ServiceDeskDetails{}
	case domain.WorkflowIncident:
		wf.Incident = &domain.IncidentDetails{Severity: "HIGH"}
	case domain.WorkflowProblem:
		wf.Problem = &domain.ProblemDetails{}
	case domain.WorkflowChange:
		wf.Change = &domain.ChangeDetails{}
	case domain.WorkflowRequest:
		wf.Request = &domain.RequestDetails{CatalogItem: "Laptop", CatalogItemType: domain.CatalogItemTypeHardware}
	}
	return ticket, wf
}

func TestServiceDeskLifecycle(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowServiceDesk, domain.StateOpen)

	state, err := Apply(ticket, wf, ActionAssign, Payload{AssigneeID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, state)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-1", *ticket.AssigneeID)

	state, err = Apply(ticket, wf, ActionResolve, Payload{Resolution: "rebooted the workstation"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, state)
	assert.Equal(t, "rebooted the workstation", wf.ServiceDesk.Resolution)

	state, err = Apply(ticket, wf, ActionClose, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, state)

	state, err = Apply(ticket, wf, ActionReopen, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state)
}

func TestServiceDeskIllegalTransitions(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := Apply(ticket, wf, ActionResolve, Payload{Resolution: "done"})
	require.Error(t, err)
	assert.Equal(t, util.CodeInvalidStateTransition, util.CodeOf(err))
	assert.Equal(t, domain.StateOpen, wf.State)

	_, err = Apply(ticket, wf, ActionClose, Payload{})
	require.Error(t, err)
	assert.Equal(t, util.CodeInvalidStateTransition, util.CodeOf(err))
}

func TestAssignRequiresAssignee(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := Apply(ticket, wf, ActionAssign, Payload{})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))
	assert.Equal(t, domain.StateOpen, wf.State, "failed validation must not move the state")
	assert.Nil(t, ticket.AssigneeID)
}

func TestResolveRequiresResolution(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowServiceDesk, domain.StateInProgress)

	_, err := Apply(ticket, wf, ActionResolve, Payload{})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))
	assert.Equal(t, domain.StateInProgress, wf.State)
}

func TestIncidentResolveFromTroubleshooting(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowIncident, domain.StateInProgress)

	state, err := Apply(ticket, wf, ActionTroubleshoot, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateTroubleshooting, state)

	state, err = Apply(ticket, wf, ActionResolve, Payload{Resolution: "failed switch replaced"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, state)
	assert.Equal(t, "failed switch replaced", wf.Incident.Resolution)
}

func TestIncidentResolveDirectlyFromInProgress(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowIncident, domain.StateInProgress)

	state, err := Apply(ticket, wf, ActionResolve, Payload{Resolution: "transient outage"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, state)
}

func TestProblemLinkIncidentSelfLoop(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowProblem, domain.StateOpen)

	state, err := Apply(ticket, wf, ActionLinkIncident, Payload{IncidentID: "TKT-9-ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, state, "linking must not change state")
	assert.Equal(t, []string{"TKT-9-ZZZZ"}, wf.Problem.RelatedIncidentIDs)

	// Linking the same incident again is a no-op on the list.
	_, err = Apply(ticket, wf, ActionLinkIncident, Payload{IncidentID: "TKT-9-ZZZZ"})
	require.NoError(t, err)
	assert.Len(t, wf.Problem.RelatedIncidentIDs, 1)

	state, err = Apply(ticket, wf, ActionAnalyze, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAnalyzing, state)

	_, err = Apply(ticket, wf, ActionLinkIncident, Payload{IncidentID: "TKT-10-YYYY"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAnalyzing, wf.State)
	assert.Len(t, wf.Problem.RelatedIncidentIDs, 2)
}

func TestProblemResolveRequiresRootCause(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowProblem, domain.StateAnalyzing)

	_, err := Apply(ticket, wf, ActionResolve, Payload{})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))

	state, err := Apply(ticket, wf, ActionResolve, Payload{RootCause: "expired certificate on the proxy"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, state)
	assert.Equal(t, "expired certificate on the proxy", wf.Problem.RootCause)
}

func TestChangeApprovalRequiresRollbackPlan(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowChange, domain.StateDraft)

	state, err := Apply(ticket, wf, ActionSubmit, Payload{RiskLevel: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingApproval, state)

	// No rollback plan yet: approval fails even for an approver.
	_, err = Apply(ticket, wf, ActionApprove, Payload{
		ActorID:    "boss-1",
		ActorRoles: []domain.Role{domain.RoleApprover},
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))
	assert.Equal(t, domain.StatePendingApproval, wf.State)

	var domainErr *util.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "rollbackPlan", domainErr.Details["field"])
}

func TestChangeApprovalRequiresApproverRole(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowChange, domain.StatePendingApproval)
	wf.Change.RollbackPlan = "restore previous image"

	_, err := Apply(ticket, wf, ActionApprove, Payload{
		ActorID:    "agent-1",
		ActorRoles: []domain.Role{domain.RoleAgent},
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeForbidden, util.CodeOf(err))
	assert.Equal(t, domain.StatePendingApproval, wf.State)

	state, err := Apply(ticket, wf, ActionApprove, Payload{
		ActorID:    "boss-1",
		ActorRoles: []domain.Role{domain.RoleApprover},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, state)
	require.NotNil(t, wf.Change.ApproverID)
	assert.Equal(t, "boss-1", *wf.Change.ApproverID)
}

func TestChangeFailureRecordsReason(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowChange, domain.StateImplementing)

	state, err := Apply(ticket, wf, ActionFail, Payload{Reason: "migration script crashed"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, state)
	assert.Equal(t, "migration script crashed", wf.Change.FailureReason)
}

func TestChangeRejectRequiresReason(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowChange, domain.StatePendingApproval)

	_, err := Apply(ticket, wf, ActionReject, Payload{ActorID: "boss-1"})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))

	state, err := Apply(ticket, wf, ActionReject, Payload{ActorID: "boss-1", Reason: "risk too high"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, state)
	assert.Equal(t, "risk too high", wf.Change.RejectionReason)
}

func TestRequestLifecycle(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowRequest, domain.StatePendingApproval)

	state, err := Apply(ticket, wf, ActionApprove, Payload{
		ActorID:    "boss-1",
		ActorRoles: []domain.Role{domain.RoleApprover},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, state)

	state, err = Apply(ticket, wf, ActionStart, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, state)

	state, err = Apply(ticket, wf, ActionComplete, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, state)
	assert.Equal(t, 100, wf.Request.ProgressPercent)
}

func TestRequestApprovalRequiresRole(t *testing.T) {
	ticket, wf := newInstance(domain.WorkflowRequest, domain.StatePendingApproval)

	_, err := Apply(ticket, wf, ActionApprove, Payload{ActorID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, util.CodeForbidden, util.CodeOf(err))
}

func TestInitialState(t *testing.T) {
	assert.Equal(t, domain.StateOpen, InitialState(domain.WorkflowServiceDesk, domain.TicketPriorityMedium, ""))
	assert.Equal(t, domain.StateOpen, InitialState(domain.WorkflowIncident, domain.TicketPriorityCritical, ""))
	assert.Equal(t, domain.StateOpen, InitialState(domain.WorkflowProblem, domain.TicketPriorityHigh, ""))
	assert.Equal(t, domain.StateDraft, InitialState(domain.WorkflowChange, domain.TicketPriorityLow, ""))

	assert.Equal(t, domain.StatePendingApproval,
		InitialState(domain.WorkflowRequest, domain.TicketPriorityMedium, domain.CatalogItemTypeAccess))
	assert.Equal(t, domain.StatePendingApproval,
		InitialState(domain.WorkflowRequest, domain.TicketPriorityLow, domain.CatalogItemTypeHardware))
	assert.Equal(t, domain.StateApproved,
		InitialState(domain.WorkflowRequest, domain.TicketPriorityLow, domain.CatalogItemTypeAccess),
		"low-priority access requests are auto-approved")
}

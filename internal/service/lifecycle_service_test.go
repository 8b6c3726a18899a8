package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/events"
	"github.com/spec-kit/itsm-core/internal/repository"
	"github.com/spec-kit/itsm-core/internal/workflow"
	"github.com/spec-kit/itsm-core/pkg/util"
)

type lifecycleFixture struct {
	store      *repository.MemoryStore
	lifecycle  *LifecycleService
	dispatcher events.Dispatcher
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()

	lifecycle := NewLifecycleService(LifecycleDependencies{
		TicketRepo: store.Tickets(),
		UserRepo:   store.Users(),
		AuditRepo:  store.Audit(),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})

	ctx := context.Background()
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		ID: "agent-1", Email: "agent@example.com", DisplayName: "Agent",
		Roles: []domain.Role{domain.RoleAgent}, IsActive: true,
	}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		ID: "boss-1", Email: "boss@example.com", DisplayName: "Boss",
		Roles: []domain.Role{domain.RoleApprover}, IsActive: true,
	}))
	return &lifecycleFixture{store: store, lifecycle: lifecycle, dispatcher: dispatcher}
}

// seedTicket writes a ticket/workflow pair directly through the repository.
func (f *lifecycleFixture) seedTicket(t *testing.T, wfType domain.WorkflowType, state domain.WorkflowState) *domain.Ticket {
	t.Helper()
	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID:             "TKT-" + uuid.NewString()[:8],
		Title:          "seeded ticket",
		Description:    "seeded ticket description",
		Category:       CategoryOther,
		Priority:       domain.TicketPriorityMedium,
		RequesterID:    "agent-1",
		Status:         domain.StatusForState(state),
		RoutedWorkflow: wfType,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	wf := &domain.WorkflowInstance{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Type:      wfType,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch wfType {
	case domain.WorkflowServiceDesk:
		wf.ServiceDesk = &domain.ServiceDeskDetails{}
	case domain.WorkflowIncident:
		wf.Incident = &domain.IncidentDetails{Severity: "MEDIUM"}
	case domain.WorkflowProblem:
		wf.Problem = &domain.ProblemDetails{}
	case domain.WorkflowChange:
		wf.Change = &domain.ChangeDetails{}
	case domain.WorkflowRequest:
		wf.Request = &domain.RequestDetails{CatalogItem: "thing", CatalogItemType: domain.CatalogItemTypeGeneral}
	}
	entry := domain.NewAuditEntry(domain.EntityTypeTicket, ticket.ID, "agent-1", "create",
		nil, domain.TicketSnapshot(ticket, wf))
	require.NoError(t, f.store.Tickets().CreateBundle(context.Background(), ticket, wf, entry))
	return ticket
}

func TestTransitionAdvancesStateAndVersion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	result, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionAssign,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, result.Workflow.State)
	assert.Equal(t, int64(2), result.Ticket.Version)
	assert.Equal(t, domain.StatusForState(domain.StateInProgress), result.Ticket.Status)

	result, err = f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionResolve,
		ActorID:         "agent-1",
		ExpectedVersion: 2,
		Resolution:      "cleared the print spool",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, result.Workflow.State)
	assert.Equal(t, int64(3), result.Ticket.Version)
}

func TestTransitionRejectsIllegalAction(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionClose,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeInvalidStateTransition, util.CodeOf(err))

	stored, wf, getErr := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StateOpen, wf.State, "failed transition must not mutate anything")
	assert.Equal(t, int64(1), stored.Version)
}

func TestTransitionRejectsStaleVersion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionAssign,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.NoError(t, err)

	// Re-submitting with the old version must lose.
	_, err = f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionResolve,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		Resolution:      "done",
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeStaleWriteConflict, util.CodeOf(err))
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateInProgress)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lifecycle.Transition(ctx, TransitionInput{
				TicketID:        ticket.ID,
				Action:          workflow.ActionResolve,
				ActorID:         "agent-1",
				ExpectedVersion: 1,
				Resolution:      "concurrent fix",
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if util.CodeOf(err) == util.CodeStaleWriteConflict {
			conflicts++
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer must win")
	assert.Equal(t, 1, conflicts, "the loser must see a stale-write conflict")

	stored, _, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestTransitionAppendsAuditEntry(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionAssign,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.NoError(t, err)

	trail, err := f.lifecycle.GetAuditTrail(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2, "create plus one transition")

	entry := trail[1]
	assert.Equal(t, "assign", entry.Action)
	assert.Equal(t, "agent-1", entry.ActorID)
	assert.Equal(t, domain.StateOpen, entry.BeforeSnapshot["state"])
	assert.Equal(t, domain.StateInProgress, entry.AfterSnapshot["state"])
	assert.Equal(t, int64(2), entry.AfterSnapshot["version"])
}

func TestTransitionPublishesEvent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	var received []events.Event
	f.dispatcher.Subscribe(events.EventTicketTransitioned, func(_ context.Context, e events.Event) error {
		received = append(received, e)
		return nil
	})

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionAssign,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.NoError(t, err)

	require.Len(t, received, 1)
	payload, ok := received[0].Payload.(events.TicketTransitionedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.StateOpen, payload.OldState)
	assert.Equal(t, domain.StateInProgress, payload.NewState)
	assert.Equal(t, "assign", payload.Action)
}

func TestChangeApproveWithoutRollbackPlanStaysPending(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowChange, domain.StateDraft)

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionSubmit,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)

	_, err = f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionApprove,
		ActorID:         "boss-1",
		ExpectedVersion: 2,
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))

	_, wf, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingApproval, wf.State)
}

func TestChangeApproveChecksActorRoles(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, domain.WorkflowChange, domain.StateDraft)

	_, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionSubmit,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		RiskLevel:       "LOW",
		RollbackPlan:    "restore previous image",
	})
	require.NoError(t, err)

	_, err = f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionApprove,
		ActorID:         "agent-1",
		ExpectedVersion: 2,
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeForbidden, util.CodeOf(err))

	result, err := f.lifecycle.Transition(ctx, TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionApprove,
		ActorID:         "boss-1",
		ExpectedVersion: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, result.Workflow.State)
	require.NotNil(t, result.Workflow.Change.ApproverID)
	assert.Equal(t, "boss-1", *result.Workflow.Change.ApproverID)
}

func TestTransitionUnknownTicket(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.lifecycle.Transition(context.Background(), TransitionInput{
		TicketID:        "TKT-404-XXXX",
		Action:          workflow.ActionAssign,
		ActorID:         "agent-1",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeNotFound, util.CodeOf(err))
}

func TestTransitionUnknownActor(t *testing.T) {
	f := newLifecycleFixture(t)
	ticket := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)

	_, err := f.lifecycle.Transition(context.Background(), TransitionInput{
		TicketID:        ticket.ID,
		Action:          workflow.ActionAssign,
		ActorID:         "ghost",
		ExpectedVersion: 1,
		AssigneeID:      "agent-1",
	})
	require.Error(t, err)
	assert.Equal(t, util.CodeValidation, util.CodeOf(err))
}

func TestGetDuplicateCandidatesUnknownTicket(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.lifecycle.GetDuplicateCandidates(context.Background(), "TKT-404-XXXX")
	require.Error(t, err)
	assert.Equal(t, util.CodeNotFound, util.CodeOf(err))
}

func TestListTicketsFilters(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	open := f.seedTicket(t, domain.WorkflowServiceDesk, domain.StateOpen)
	f.seedTicket(t, domain.WorkflowIncident, domain.StateResolved)

	status := domain.StatusForState(domain.StateOpen)
	tickets, err := f.lifecycle.ListTickets(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{status},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, open.ID, tickets[0].ID)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/events"
	"github.com/spec-kit/itsm-core/internal/observability"
	"github.com/spec-kit/itsm-core/internal/repository"
	"github.com/spec-kit/itsm-core/internal/workflow"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// LifecycleService drives tickets through their workflow state machines and
// serves ticket reads.
type LifecycleService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	audit      repository.AuditRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	AuditRepo  repository.AuditRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// TransitionInput carries one requested workflow action.
type TransitionInput struct {
	TicketID        string
	Action          workflow.Action
	ActorID         string
	ExpectedVersion int64
	AssigneeID      string
	Resolution      string
	RootCause       string
	Reason          string
	IncidentID      string
	RiskLevel       string
	RollbackPlan    string
	Comment         string
}

// TransitionResult reports the post-transition state and version.
type TransitionResult struct {
	Ticket   *domain.Ticket
	Workflow *domain.WorkflowInstance
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Transition applies an action to the ticket's workflow instance under
// optimistic concurrency. The caller's expected version must match the
// stored one both at read time and at write time; a losing writer gets a
// stale-write conflict and must re-read.
func (s *LifecycleService) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.ExpectedVersion <= 0 {
		return nil, util.NewValidationError("expectedVersion is required", map[string]any{"field": "expectedVersion"})
	}
	if input.Action == "" {
		return nil, util.NewValidationError("action is required", map[string]any{"field": "action"})
	}
	if input.ActorID == "" {
		return nil, util.NewValidationError("actor is required", map[string]any{"field": "actorId"})
	}

	ticket, instance, err := s.tickets.GetWithWorkflow(ctx, input.TicketID)
	if err != nil {
		return nil, util.ToDomainError(err)
	}
	if ticket.Version != input.ExpectedVersion {
		s.metrics.ObserveConflict()
		return nil, util.NewStaleWriteConflict(input.ExpectedVersion)
	}

	actor, err := s.users.GetByID(ctx, input.ActorID)
	if err != nil {
		if util.CodeOf(err) == util.CodeNotFound {
			return nil, util.NewValidationError("actor is not a known identity", map[string]any{"field": "actorId"})
		}
		return nil, err
	}

	oldState := instance.State
	before := domain.TicketSnapshot(ticket, instance)

	payload := workflow.Payload{
		ActorID:      actor.ID,
		ActorRoles:   actor.Roles,
		AssigneeID:   input.AssigneeID,
		Resolution:   input.Resolution,
		RootCause:    input.RootCause,
		Reason:       input.Reason,
		IncidentID:   input.IncidentID,
		RiskLevel:    input.RiskLevel,
		RollbackPlan: input.RollbackPlan,
		Comment:      input.Comment,
	}
	newState, err := workflow.Apply(ticket, instance, input.Action, payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	instance.State = newState
	instance.UpdatedAt = now
	ticket.Status = domain.StatusForState(newState)
	ticket.UpdatedAt = now
	ticket.Version = input.ExpectedVersion + 1

	entry := domain.NewAuditEntry(domain.EntityTypeTicket, ticket.ID, actor.ID,
		string(input.Action), before, domain.TicketSnapshot(ticket, instance))

	if err := s.tickets.ApplyTransition(ctx, ticket, instance, entry, input.ExpectedVersion); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			s.metrics.ObserveConflict()
			return nil, util.NewStaleWriteConflict(input.ExpectedVersion)
		}
		return nil, util.ToDomainError(err)
	}

	s.metrics.ObserveTransition(string(instance.Type), string(input.Action))
	s.publishTransitioned(ctx, ticket, instance, input, oldState)
	return &TransitionResult{Ticket: ticket, Workflow: instance}, nil
}

// GetTicket returns a ticket with its workflow instance.
func (s *LifecycleService) GetTicket(ctx context.Context, id string) (*domain.Ticket, *domain.WorkflowInstance, error) {
	ticket, instance, err := s.tickets.GetWithWorkflow(ctx, id)
	if err != nil {
		return nil, nil, util.ToDomainError(err)
	}
	return ticket, instance, nil
}

// ListTickets returns tickets matching the filter.
func (s *LifecycleService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, util.NewPersistenceError(err)
	}
	return tickets, nil
}

// GetDuplicateCandidates returns the candidates recorded at intake.
func (s *LifecycleService) GetDuplicateCandidates(ctx context.Context, id string) ([]domain.DuplicateCandidate, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, util.ToDomainError(err)
	}
	return ticket.DuplicateCandidates, nil
}

// GetAuditTrail returns the ticket's audit entries in chronological order.
func (s *LifecycleService) GetAuditTrail(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, util.ToDomainError(err)
	}
	entries, err := s.audit.ListByEntity(ctx, domain.EntityTypeTicket, ticketID)
	if err != nil {
		return nil, util.NewPersistenceError(err)
	}
	return entries, nil
}

func (s *LifecycleService) publishTransitioned(ctx context.Context, t *domain.Ticket, wf *domain.WorkflowInstance, input TransitionInput, oldState domain.WorkflowState) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketTransitioned,
		TicketID:  t.ID,
		ActorID:   input.ActorID,
		Timestamp: time.Now().UTC(),
		Payload: events.TicketTransitionedPayload{
			Workflow:    wf.Type,
			Action:      string(input.Action),
			OldState:    oldState,
			NewState:    wf.State,
			Priority:    t.Priority,
			RequesterID: t.RequesterID,
			AssigneeID:  t.AssigneeID,
			Comment:     input.Comment,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to enqueue transition event",
			zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
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

const (
	titleMinLen       = 3
	titleMaxLen       = 200
	descriptionMinLen = 3
	descriptionMaxLen = 5000
	idMaxAttempts     = 5
)

// IntakeService validates raw submissions and turns them into a
// ticket/workflow-instance pair, created atomically with the first audit
// entry.
type IntakeService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	counter    repository.CounterStore
	classifier *Classifier
	detector   *DuplicateDetector
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// IntakeDependencies bundles collaborators for the intake service.
type IntakeDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Counter    repository.CounterStore
	Classifier *Classifier
	Detector   *DuplicateDetector
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// SubmitInput describes a raw submission.
type SubmitInput struct {
	Title       string
	Description string
	Category    string
	TypeHint    string
	Priority    domain.TicketPriority
	RequesterID string
}

// SubmitResult is the fully formed pair returned on success.
type SubmitResult struct {
	Ticket   *domain.Ticket
	Workflow *domain.WorkflowInstance
}

// NewIntakeService constructs the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	return &IntakeService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		counter:    deps.Counter,
		classifier: deps.Classifier,
		detector:   deps.Detector,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Submit normalizes, classifies and persists a submission. No partial ticket
// is ever created: validation failures happen before any write, and ticket,
// workflow instance and audit entry are persisted in one unit.
func (s *IntakeService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if l := len(title); l < titleMinLen || l > titleMaxLen {
		return nil, util.NewValidationError(
			fmt.Sprintf("title must be %d-%d characters", titleMinLen, titleMaxLen),
			map[string]any{"field": "title"})
	}
	if l := len(description); l < descriptionMinLen || l > descriptionMaxLen {
		return nil, util.NewValidationError(
			fmt.Sprintf("description must be %d-%d characters", descriptionMinLen, descriptionMaxLen),
			map[string]any{"field": "description"})
	}
	if strings.TrimSpace(input.RequesterID) == "" {
		return nil, util.NewValidationError("requester is required", map[string]any{"field": "requesterId"})
	}

	requester, err := s.users.GetByID(ctx, input.RequesterID)
	if err != nil {
		if util.CodeOf(err) == util.CodeNotFound {
			return nil, util.NewValidationError("requester is not a known identity", map[string]any{"field": "requesterId"})
		}
		return nil, err
	}
	if !requester.IsActive {
		return nil, util.NewValidationError("requester is deactivated", map[string]any{"field": "requesterId"})
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, util.NewValidationError("unknown priority", map[string]any{"field": "priority"})
	}

	classification := s.classifier.Classify(ClassifierInput{
		Title:        title,
		Description:  description,
		CategoryHint: input.Category,
		TypeHint:     input.TypeHint,
		Priority:     priority,
	})

	id, err := s.generateTicketID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID:                id,
		Title:             title,
		Description:       description,
		Category:          classification.Category,
		Priority:          priority,
		RequesterID:       requester.ID,
		RoutedWorkflow:    classification.Workflow,
		RoutingConfidence: classification.Confidence,
		ManualTriage:      classification.ManualTriage,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	// Duplicate detection populates candidates but never blocks creation.
	recent, err := s.tickets.ListOpenByCategory(ctx, classification.Category, s.detector.WindowSize())
	if err != nil {
		s.logger.Warn("recent-ticket window unavailable, skipping duplicate scan",
			zap.String("ticket_id", id), zap.Error(err))
		recent = nil
	}
	candidates, err := s.detector.FindCandidates(ctx, ticket, recent)
	if err != nil {
		s.logger.Warn("duplicate detection degraded",
			zap.String("ticket_id", id), zap.Error(err))
		candidates = nil
	}
	ticket.DuplicateCandidates = candidates

	instance := s.newWorkflowInstance(ticket, now)
	ticket.Status = domain.StatusForState(instance.State)

	entry := domain.NewAuditEntry(domain.EntityTypeTicket, ticket.ID, requester.ID, "create",
		nil, domain.TicketSnapshot(ticket, instance))
	if err := s.tickets.CreateBundle(ctx, ticket, instance, entry); err != nil {
		return nil, util.NewPersistenceError(err)
	}

	s.metrics.ObserveSubmission(string(ticket.RoutedWorkflow))
	s.publishCreated(ctx, ticket, instance)
	return &SubmitResult{Ticket: ticket, Workflow: instance}, nil
}

// generateTicketID combines a monotonically increasing counter with a random
// suffix, existence-checked and retried on collision.
func (s *IntakeService) generateTicketID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		seq, err := s.counter.Next(ctx)
		if err != nil {
			return "", util.NewPersistenceError(err)
		}
		id := fmt.Sprintf("TKT-%d-%s", seq, randomSuffix())
		exists, err := s.tickets.Exists(ctx, id)
		if err != nil {
			return "", util.NewPersistenceError(err)
		}
		if !exists {
			return id, nil
		}
		s.logger.Warn("ticket id collision, retrying", zap.String("id", id))
	}
	return "", util.NewPersistenceError(fmt.Errorf("could not allocate ticket id after %d attempts", idMaxAttempts))
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
}

func (s *IntakeService) newWorkflowInstance(t *domain.Ticket, now time.Time) *domain.WorkflowInstance {
	instance := &domain.WorkflowInstance{
		ID:        uuid.NewString(),
		TicketID:  t.ID,
		Type:      t.RoutedWorkflow,
		CreatedAt: now,
		UpdatedAt: now,
	}
	catalogItemType := ""
	switch t.RoutedWorkflow {
	case domain.WorkflowIncident:
		instance.Incident = &domain.IncidentDetails{Severity: severityForPriority(t.Priority)}
	case domain.WorkflowProblem:
		instance.Problem = &domain.ProblemDetails{}
	case domain.WorkflowChange:
		instance.Change = &domain.ChangeDetails{}
	case domain.WorkflowRequest:
		catalogItemType = catalogTypeForCategory(t.Category)
		instance.Request = &domain.RequestDetails{
			CatalogItem:     t.Title,
			CatalogItemType: catalogItemType,
		}
	default:
		instance.ServiceDesk = &domain.ServiceDeskDetails{}
	}
	instance.State = workflow.InitialState(t.RoutedWorkflow, t.Priority, catalogItemType)
	return instance
}

func severityForPriority(p domain.TicketPriority) string {
	return string(p)
}

func catalogTypeForCategory(category string) string {
	switch category {
	case CategoryAccess:
		return domain.CatalogItemTypeAccess
	case CategoryHardware:
		return domain.CatalogItemTypeHardware
	case CategorySoftware:
		return domain.CatalogItemTypeSoftware
	default:
		return domain.CatalogItemTypeGeneral
	}
}

func (s *IntakeService) publishCreated(ctx context.Context, t *domain.Ticket, wf *domain.WorkflowInstance) {
	if s.dispatcher == nil {
		return
	}
	severity := ""
	if wf.Incident != nil {
		severity = wf.Incident.Severity
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketCreated,
		TicketID:  t.ID,
		ActorID:   t.RequesterID,
		Timestamp: time.Now().UTC(),
		Payload: events.TicketCreatedPayload{
			Workflow:     t.RoutedWorkflow,
			State:        wf.State,
			Category:     t.Category,
			Priority:     t.Priority,
			Severity:     severity,
			RequesterID:  t.RequesterID,
			AssigneeID:   t.AssigneeID,
			ManualTriage: t.ManualTriage,
			Title:        t.Title,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to enqueue creation event",
			zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/events"
	"github.com/spec-kit/itsm-core/internal/observability"
	"github.com/spec-kit/itsm-core/internal/repository"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// eventView is the flattened shape of a ticket event, uniform across the
// created and transitioned payloads, for recipient-rule evaluation.
type eventView struct {
	eventID     string
	eventType   events.EventType
	ticketID    string
	workflow    domain.WorkflowType
	state       domain.WorkflowState
	priority    domain.TicketPriority
	requesterID string
	assigneeID  *string
	title       string
	action      string
}

// recipientRule maps an event shape onto recipients and a notification type.
// Rules are evaluated in order; every matching rule contributes recipients,
// and the first rule to claim a recipient decides their notification type.
type recipientRule struct {
	match     func(eventView) bool
	notify    domain.NotificationType
	recipient func(context.Context, *NotificationService, eventView) ([]string, error)
}

var recipientRules = []recipientRule{
	{
		// High-severity incidents alert the on-call rotation and the assignee.
		match: func(v eventView) bool {
			return v.eventType == events.EventTicketCreated &&
				v.workflow == domain.WorkflowIncident &&
				(v.priority == domain.TicketPriorityHigh || v.priority == domain.TicketPriorityCritical)
		},
		notify: domain.NotificationStakeholderAlert,
		recipient: func(ctx context.Context, s *NotificationService, v eventView) ([]string, error) {
			onCall, err := s.users.ListByRole(ctx, domain.RoleOnCall)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(onCall)+1)
			for _, u := range onCall {
				ids = append(ids, u.ID)
			}
			if v.assigneeID != nil {
				ids = append(ids, *v.assigneeID)
			}
			return ids, nil
		},
	},
	{
		// Anything landing in pending-approval pings the approvers.
		match: func(v eventView) bool {
			return v.state == domain.StatePendingApproval
		},
		notify: domain.NotificationApprovalRequested,
		recipient: func(ctx context.Context, s *NotificationService, _ eventView) ([]string, error) {
			approvers, err := s.users.ListByRole(ctx, domain.RoleApprover)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(approvers))
			for _, u := range approvers {
				ids = append(ids, u.ID)
			}
			return ids, nil
		},
	},
	{
		match: func(v eventView) bool {
			return v.eventType == events.EventTicketCreated
		},
		notify: domain.NotificationTicketReceived,
		recipient: func(_ context.Context, _ *NotificationService, v eventView) ([]string, error) {
			return []string{v.requesterID}, nil
		},
	},
	{
		match: func(v eventView) bool {
			return v.eventType == events.EventTicketTransitioned
		},
		notify: domain.NotificationTicketUpdated,
		recipient: func(_ context.Context, _ *NotificationService, v eventView) ([]string, error) {
			return []string{v.requesterID}, nil
		},
	},
}

// NotificationService turns ticket events into per-recipient notifications
// and serves the consumer surface.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	idempotency   repository.IdempotencyStore
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Idempotency      repository.IdempotencyStore
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		idempotency:   deps.Idempotency,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

// RegisterHandlers subscribes the service to ticket events.
func (s *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, s.HandleEvent)
	dispatcher.Subscribe(events.EventTicketTransitioned, s.HandleEvent)
}

// HandleEvent fans an event out to its recipients. Delivery is idempotent per
// (event, recipient): redelivery of the same event produces no duplicate
// notifications.
func (s *NotificationService) HandleEvent(ctx context.Context, event events.Event) error {
	view, ok := flatten(event)
	if !ok {
		s.logger.Warn("ignoring event with unknown payload shape",
			zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
		return nil
	}

	claimed := make(map[string]domain.NotificationType)
	for _, rule := range recipientRules {
		if !rule.match(view) {
			continue
		}
		recipients, err := rule.recipient(ctx, s, view)
		if err != nil {
			return err
		}
		for _, id := range recipients {
			if id == "" {
				continue
			}
			if _, seen := claimed[id]; !seen {
				claimed[id] = rule.notify
			}
		}
	}

	for recipientID, notifyType := range claimed {
		if err := s.dispatch(ctx, view, recipientID, notifyType); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) dispatch(ctx context.Context, view eventView, recipientID string, notifyType domain.NotificationType) error {
	key := fmt.Sprintf("notify:%s:%s", view.eventID, recipientID)
	acquired, err := s.idempotency.Acquire(ctx, key)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}

	notification := &domain.Notification{
		ID:              uuid.NewString(),
		RecipientUserID: recipientID,
		SourceEventID:   view.eventID,
		Type:            notifyType,
		Priority:        view.priority,
		Message:         messageFor(view, notifyType),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		// Free the key so a redelivery can try again.
		if relErr := s.idempotency.Release(ctx, key); relErr != nil {
			s.logger.Error("failed to release idempotency key",
				zap.String("key", key), zap.Error(relErr))
		}
		return err
	}
	s.metrics.ObserveDispatch()
	return nil
}

func messageFor(view eventView, notifyType domain.NotificationType) string {
	switch notifyType {
	case domain.NotificationStakeholderAlert:
		return fmt.Sprintf("%s priority incident %s reported: %s", view.priority, view.ticketID, view.title)
	case domain.NotificationApprovalRequested:
		return fmt.Sprintf("Ticket %s is awaiting approval", view.ticketID)
	case domain.NotificationTicketUpdated:
		return fmt.Sprintf("Ticket %s moved to %s", view.ticketID, view.state)
	default:
		return fmt.Sprintf("Ticket %s has been received", view.ticketID)
	}
}

func flatten(event events.Event) (eventView, bool) {
	view := eventView{
		eventID:   event.ID,
		eventType: event.Type,
		ticketID:  event.TicketID,
	}
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		view.workflow = payload.Workflow
		view.state = payload.State
		view.priority = payload.Priority
		view.requesterID = payload.RequesterID
		view.assigneeID = payload.AssigneeID
		view.title = payload.Title
	case events.TicketTransitionedPayload:
		view.workflow = payload.Workflow
		view.state = payload.NewState
		view.priority = payload.Priority
		view.requesterID = payload.RequesterID
		view.assigneeID = payload.AssigneeID
		view.action = payload.Action
	default:
		return eventView{}, false
	}
	return view, true
}

// List returns a recipient's notifications, optionally unread only.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	result, err := s.notifications.ListByRecipient(ctx, userID, unreadOnly)
	if err != nil {
		return nil, util.NewPersistenceError(err)
	}
	return result, nil
}

// MarkRead marks a single notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	return s.notifications.MarkRead(ctx, id)
}

// MarkAllRead marks all of a recipient's notifications as read and returns
// the number affected.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, util.NewPersistenceError(err)
	}
	return count, nil
}

// Delete removes a notification.
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	return s.notifications.Delete(ctx, id)
}

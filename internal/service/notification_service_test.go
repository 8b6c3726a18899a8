package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/internal/events"
	"github.com/spec-kit/itsm-core/internal/repository"
)

type notificationFixture struct {
	store         *repository.MemoryStore
	notifications *NotificationService
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Users().Create(ctx, &domain.User{
		ID: "user-1", Email: "sam@example.com", DisplayName: "Sam", IsActive: true,
	}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		ID: "oncall-1", Email: "oncall@example.com", DisplayName: "On Call",
		Roles: []domain.Role{domain.RoleOnCall}, IsActive: true,
	}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{
		ID: "boss-1", Email: "boss@example.com", DisplayName: "Boss",
		Roles: []domain.Role{domain.RoleApprover}, IsActive: true,
	}))

	notifications := NewNotificationService(NotificationDependencies{
		NotificationRepo: store.Notifications(),
		UserRepo:         store.Users(),
		Idempotency:      store.Idempotency(),
		Logger:           zap.NewNop(),
	})
	return &notificationFixture{store: store, notifications: notifications}
}

func createdEvent(id, ticketID string, payload events.TicketCreatedPayload) events.Event {
	return events.Event{
		ID:        id,
		Type:      events.EventTicketCreated,
		TicketID:  ticketID,
		ActorID:   payload.RequesterID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

func TestCreatedEventNotifiesRequester(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	event := createdEvent("evt-1", "TKT-1-AAAA", events.TicketCreatedPayload{
		Workflow:    domain.WorkflowServiceDesk,
		State:       domain.StateOpen,
		Priority:    domain.TicketPriorityMedium,
		RequesterID: "user-1",
		Title:       "printer jamming",
	})
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	items, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.NotificationTicketReceived, items[0].Type)
	assert.Equal(t, "evt-1", items[0].SourceEventID)
	assert.False(t, items[0].Read)
}

func TestRedeliveryProducesNoDuplicates(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	event := createdEvent("evt-1", "TKT-1-AAAA", events.TicketCreatedPayload{
		Workflow:    domain.WorkflowServiceDesk,
		State:       domain.StateOpen,
		Priority:    domain.TicketPriorityMedium,
		RequesterID: "user-1",
	})
	require.NoError(t, f.notifications.HandleEvent(ctx, event))
	require.NoError(t, f.notifications.HandleEvent(ctx, event))
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	items, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, items, 1, "redelivery of the same event must not fan out again")
}

func TestCriticalIncidentAlertsOnCallAndAssignee(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	assignee := "agent-1"
	require.NoError(t, f.store.Users().Create(ctx, &domain.User{
		ID: assignee, Email: "agent@example.com", DisplayName: "Agent",
		Roles: []domain.Role{domain.RoleAgent}, IsActive: true,
	}))

	event := createdEvent("evt-2", "TKT-2-BBBB", events.TicketCreatedPayload{
		Workflow:    domain.WorkflowIncident,
		State:       domain.StateOpen,
		Priority:    domain.TicketPriorityCritical,
		Severity:    "CRITICAL",
		RequesterID: "user-1",
		AssigneeID:  &assignee,
		Title:       "core switch offline",
	})
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	onCallItems, err := f.notifications.List(ctx, "oncall-1", false)
	require.NoError(t, err)
	require.Len(t, onCallItems, 1)
	assert.Equal(t, domain.NotificationStakeholderAlert, onCallItems[0].Type)

	assigneeItems, err := f.notifications.List(ctx, assignee, false)
	require.NoError(t, err)
	require.Len(t, assigneeItems, 1)
	assert.Equal(t, domain.NotificationStakeholderAlert, assigneeItems[0].Type)

	requesterItems, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, requesterItems, 1)
	assert.Equal(t, domain.NotificationTicketReceived, requesterItems[0].Type)
}

func TestPendingApprovalNotifiesApprovers(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	event := createdEvent("evt-3", "TKT-3-CCCC", events.TicketCreatedPayload{
		Workflow:    domain.WorkflowRequest,
		State:       domain.StatePendingApproval,
		Priority:    domain.TicketPriorityMedium,
		RequesterID: "user-1",
		Title:       "new laptop",
	})
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	approverItems, err := f.notifications.List(ctx, "boss-1", false)
	require.NoError(t, err)
	require.Len(t, approverItems, 1)
	assert.Equal(t, domain.NotificationApprovalRequested, approverItems[0].Type)
}

func TestTransitionedEventNotifiesRequester(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	event := events.Event{
		ID:        "evt-4",
		Type:      events.EventTicketTransitioned,
		TicketID:  "TKT-4-DDDD",
		ActorID:   "agent-1",
		Timestamp: time.Now().UTC(),
		Payload: events.TicketTransitionedPayload{
			Workflow:    domain.WorkflowServiceDesk,
			Action:      "resolve",
			OldState:    domain.StateInProgress,
			NewState:    domain.StateResolved,
			Priority:    domain.TicketPriorityMedium,
			RequesterID: "user-1",
		},
	}
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	items, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.NotificationTicketUpdated, items[0].Type)
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	for i, eventID := range []string{"evt-a", "evt-b"} {
		event := createdEvent(eventID, "TKT-1-AAAA", events.TicketCreatedPayload{
			Workflow:    domain.WorkflowServiceDesk,
			State:       domain.StateOpen,
			Priority:    domain.TicketPriorityMedium,
			RequesterID: "user-1",
		})
		require.NoError(t, f.notifications.HandleEvent(ctx, event), "event %d", i)
	}

	unread, err := f.notifications.List(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	require.NoError(t, f.notifications.MarkRead(ctx, unread[0].ID))
	unread, err = f.notifications.List(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	count, err := f.notifications.MarkAllRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	unread, err = f.notifications.List(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "read notifications are kept, not deleted")
}

func TestDeleteNotification(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	event := createdEvent("evt-1", "TKT-1-AAAA", events.TicketCreatedPayload{
		Workflow:    domain.WorkflowServiceDesk,
		State:       domain.StateOpen,
		Priority:    domain.TicketPriorityMedium,
		RequesterID: "user-1",
	})
	require.NoError(t, f.notifications.HandleEvent(ctx, event))

	items, err := f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, f.notifications.Delete(ctx, items[0].ID))

	items, err = f.notifications.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, items)

	err = f.notifications.Delete(ctx, "missing")
	require.Error(t, err)
}

package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// MemoryStore holds in-memory implementations of every repository interface.
// Used by tests and local runs; the mutex gives the same atomicity the
// postgres transactions provide.
type MemoryStore struct {
	mu            sync.RWMutex
	tickets       map[string]*domain.Ticket
	workflows     map[string]*domain.WorkflowInstance // keyed by ticket id
	users         map[string]*domain.User
	notifications map[string]*domain.Notification
	auditEntries  []domain.AuditEntry
	counter       atomic.Int64
	idemKeys      map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:       make(map[string]*domain.Ticket),
		workflows:     make(map[string]*domain.WorkflowInstance),
		users:         make(map[string]*domain.User),
		notifications: make(map[string]*domain.Notification),
		idemKeys:      make(map[string]struct{}),
	}
}

// Tickets returns the ticket repository view.
func (m *MemoryStore) Tickets() TicketRepository { return &memoryTickets{store: m} }

// Users returns the identity directory view.
func (m *MemoryStore) Users() UserRepository { return &memoryUsers{store: m} }

// Notifications returns the notification repository view.
func (m *MemoryStore) Notifications() NotificationRepository { return &memoryNotifications{store: m} }

// Audit returns the audit log view.
func (m *MemoryStore) Audit() AuditRepository { return &memoryAudit{store: m} }

// Counter returns the identifier counter view.
func (m *MemoryStore) Counter() CounterStore { return &memoryCounter{store: m} }

// Idempotency returns the idempotency key view.
func (m *MemoryStore) Idempotency() IdempotencyStore { return &memoryIdempotency{store: m} }

type memoryTickets struct {
	store *MemoryStore
}

func (t *memoryTickets) CreateBundle(_ context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tickets[ticket.ID]; exists {
		return util.NewPersistenceError(util.NewValidationError("duplicate ticket id", map[string]any{"id": ticket.ID}))
	}
	m.tickets[ticket.ID] = copyTicket(ticket)
	m.workflows[ticket.ID] = copyWorkflow(wf)
	m.appendAuditLocked(entry)
	return nil
}

func (t *memoryTickets) ApplyTransition(_ context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry, expectedVersion int64) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[ticket.ID]
	if !ok {
		return util.NewNotFound("ticket", map[string]any{"id": ticket.ID})
	}
	if stored.Version != expectedVersion {
		return ErrStaleVersion
	}
	updated := copyTicket(ticket)
	updated.Version = expectedVersion + 1
	m.tickets[ticket.ID] = updated
	m.workflows[ticket.ID] = copyWorkflow(wf)
	m.appendAuditLocked(entry)
	return nil
}

func (t *memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m := t.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	return copyTicket(stored), nil
}

func (t *memoryTickets) GetWithWorkflow(_ context.Context, id string) (*domain.Ticket, *domain.WorkflowInstance, error) {
	m := t.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.tickets[id]
	if !ok {
		return nil, nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	wf, ok := m.workflows[id]
	if !ok {
		return nil, nil, util.NewNotFound("workflow instance", map[string]any{"ticket_id": id})
	}
	return copyTicket(stored), copyWorkflow(wf), nil
}

func (t *memoryTickets) Exists(_ context.Context, id string) (bool, error) {
	m := t.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tickets[id]
	return ok, nil
}

func (t *memoryTickets) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m := t.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range m.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.Category != nil && ticket.Category != *filter.Category {
			continue
		}
		if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(ticket.Status, filter.Statuses) {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (t *memoryTickets) ListOpenByCategory(_ context.Context, category string, limit int) ([]domain.Ticket, error) {
	m := t.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range m.tickets {
		if ticket.Category != category || !ticket.Status.Open() {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memoryUsers struct {
	store *MemoryStore
}

func (u *memoryUsers) Create(_ context.Context, user *domain.User) error {
	m := u.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = copyUser(user)
	return nil
}

func (u *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m := u.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, util.NewNotFound("user", map[string]any{"id": id})
	}
	return copyUser(user), nil
}

func (u *memoryUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	m := u.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.User
	for _, user := range m.users {
		if user.IsActive && user.HasRole(role) {
			result = append(result, *copyUser(user))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memoryNotifications struct {
	store *MemoryStore
}

func (n *memoryNotifications) Create(_ context.Context, notification *domain.Notification) error {
	m := n.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.notifications {
		if existing.SourceEventID == notification.SourceEventID && existing.RecipientUserID == notification.RecipientUserID {
			return nil
		}
	}
	stored := *notification
	m.notifications[notification.ID] = &stored
	return nil
}

func (n *memoryNotifications) ListByRecipient(_ context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	m := n.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Notification
	for _, notification := range m.notifications {
		if notification.RecipientUserID != userID {
			continue
		}
		if unreadOnly && notification.Read {
			continue
		}
		result = append(result, *notification)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (n *memoryNotifications) MarkRead(_ context.Context, id string) error {
	m := n.store
	m.mu.Lock()
	defer m.mu.Unlock()
	notification, ok := m.notifications[id]
	if !ok {
		return util.NewNotFound("notification", map[string]any{"id": id})
	}
	if !notification.Read {
		now := nowUTC()
		notification.Read = true
		notification.ReadAt = &now
	}
	return nil
}

func (n *memoryNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m := n.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, notification := range m.notifications {
		if notification.RecipientUserID == userID && !notification.Read {
			now := nowUTC()
			notification.Read = true
			notification.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (n *memoryNotifications) Delete(_ context.Context, id string) error {
	m := n.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[id]; !ok {
		return util.NewNotFound("notification", map[string]any{"id": id})
	}
	delete(m.notifications, id)
	return nil
}

type memoryAudit struct {
	store *MemoryStore
}

func (a *memoryAudit) Append(_ context.Context, entry *domain.AuditEntry) error {
	m := a.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(entry)
	return nil
}

func (a *memoryAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	m := a.store
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.AuditEntry
	for _, entry := range m.auditEntries {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

type memoryCounter struct {
	store *MemoryStore
}

func (c *memoryCounter) Next(_ context.Context) (int64, error) {
	return c.store.counter.Add(1), nil
}

type memoryIdempotency struct {
	store *MemoryStore
}

func (i *memoryIdempotency) Acquire(_ context.Context, key string) (bool, error) {
	m := i.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.idemKeys[key]; taken {
		return false, nil
	}
	m.idemKeys[key] = struct{}{}
	return true, nil
}

func (i *memoryIdempotency) Release(_ context.Context, key string) error {
	m := i.store
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idemKeys, key)
	return nil
}

func (m *MemoryStore) appendAuditLocked(entry *domain.AuditEntry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.auditEntries = append(m.auditEntries, *entry)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	if t.AssigneeID != nil {
		assignee := *t.AssigneeID
		clone.AssigneeID = &assignee
	}
	clone.DuplicateCandidates = append([]domain.DuplicateCandidate(nil), t.DuplicateCandidates...)
	return &clone
}

func copyWorkflow(wf *domain.WorkflowInstance) *domain.WorkflowInstance {
	clone := *wf
	if wf.ServiceDesk != nil {
		details := *wf.ServiceDesk
		clone.ServiceDesk = &details
	}
	if wf.Incident != nil {
		details := *wf.Incident
		clone.Incident = &details
	}
	if wf.Problem != nil {
		details := *wf.Problem
		details.RelatedIncidentIDs = append([]string(nil), wf.Problem.RelatedIncidentIDs...)
		clone.Problem = &details
	}
	if wf.Change != nil {
		details := *wf.Change
		if wf.Change.ApproverID != nil {
			approver := *wf.Change.ApproverID
			details.ApproverID = &approver
		}
		clone.Change = &details
	}
	if wf.Request != nil {
		details := *wf.Request
		if wf.Request.ApproverID != nil {
			approver := *wf.Request.ApproverID
			details.ApproverID = &approver
		}
		clone.Request = &details
	}
	return &clone
}

func copyUser(u *domain.User) *domain.User {
	clone := *u
	clone.Roles = append([]domain.Role(nil), u.Roles...)
	return &clone
}

func statusIn(status domain.TicketStatus, set []domain.TicketStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func paginate(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return []domain.Ticket{}
	}
	tickets = tickets[offset:]
	if limit > 0 && len(tickets) > limit {
		tickets = tickets[:limit]
	}
	return tickets
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// ErrStaleVersion signals that a guarded update matched no row because the
// stored version moved on.
var ErrStaleVersion = errors.New("stale version")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Statuses    []domain.TicketStatus
	Category    *string
	AssigneeID  *string
	RequesterID *string
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket and workflow-instance persistence.
// Creation and transitions are transactional units: ticket, workflow
// instance and audit entry are written together or not at all.
type TicketRepository interface {
	CreateBundle(ctx context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry) error
	ApplyTransition(ctx context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetWithWorkflow(ctx context.Context, id string) (*domain.Ticket, *domain.WorkflowInstance, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListOpenByCategory(ctx context.Context, category string, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, category, priority, requester_user_id, assignee_user_id,
       status, routed_workflow, routing_confidence, manual_triage, duplicate_candidates,
       version, created_at, updated_at`

func (r *ticketRepository) CreateBundle(ctx context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	candidates, err := json.Marshal(ticket.DuplicateCandidates)
	if err != nil {
		return err
	}
	const insertTicket = `
        INSERT INTO tickets (id, title, description, category, priority, requester_user_id, assignee_user_id,
                             status, routed_workflow, routing_confidence, manual_triage, duplicate_candidates,
                             version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	if _, err := tx.Exec(ctx, insertTicket,
		ticket.ID, ticket.Title, ticket.Description, ticket.Category, ticket.Priority,
		ticket.RequesterID, ticket.AssigneeID, ticket.Status, ticket.RoutedWorkflow,
		ticket.RoutingConfidence, ticket.ManualTriage, candidates,
		ticket.Version, ticket.CreatedAt, ticket.UpdatedAt,
	); err != nil {
		return err
	}

	if err := insertWorkflow(ctx, tx, wf); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) ApplyTransition(ctx context.Context, ticket *domain.Ticket, wf *domain.WorkflowInstance, entry *domain.AuditEntry, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	candidates, err := json.Marshal(ticket.DuplicateCandidates)
	if err != nil {
		return err
	}
	const updateTicket = `
        UPDATE tickets SET status=$1, priority=$2, assignee_user_id=$3, duplicate_candidates=$4,
               manual_triage=$5, version=version+1, updated_at=$6
        WHERE id=$7 AND version=$8`
	cmd, err := tx.Exec(ctx, updateTicket,
		ticket.Status, ticket.Priority, ticket.AssigneeID, candidates,
		ticket.ManualTriage, ticket.UpdatedAt, ticket.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		exists, err := existsInTx(ctx, tx, ticket.ID)
		if err != nil {
			return err
		}
		if !exists {
			return util.NewNotFound("ticket", map[string]any{"id": ticket.ID})
		}
		return ErrStaleVersion
	}

	details, err := json.Marshal(wf.Details())
	if err != nil {
		return err
	}
	const updateWorkflow = `
        UPDATE workflow_instances SET state=$1, details=$2, updated_at=$3 WHERE ticket_id=$4`
	if _, err := tx.Exec(ctx, updateWorkflow, wf.State, details, wf.UpdatedAt, wf.TicketID); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetWithWorkflow(ctx context.Context, id string) (*domain.Ticket, *domain.WorkflowInstance, error) {
	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	const query = `
        SELECT id, ticket_id, workflow_type, state, details, created_at, updated_at
        FROM workflow_instances WHERE ticket_id=$1`
	var wf domain.WorkflowInstance
	var details []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID, &wf.TicketID, &wf.Type, &wf.State, &details, &wf.CreatedAt, &wf.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, util.NewNotFound("workflow instance", map[string]any{"ticket_id": id})
		}
		return nil, nil, err
	}
	var parsed domain.WorkflowDetails
	if err := json.Unmarshal(details, &parsed); err != nil {
		return nil, nil, err
	}
	wf.ApplyDetails(parsed)
	return ticket, &wf, nil
}

func (r *ticketRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpenByCategory(ctx context.Context, category string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE category=$1 AND status NOT IN ('RESOLVED','CLOSED','COMPLETED','REJECTED','FAILED')
        ORDER BY created_at DESC LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var candidates []byte
	if err := row.Scan(
		&ticket.ID, &ticket.Title, &ticket.Description, &ticket.Category, &ticket.Priority,
		&ticket.RequesterID, &ticket.AssigneeID, &ticket.Status, &ticket.RoutedWorkflow,
		&ticket.RoutingConfidence, &ticket.ManualTriage, &candidates,
		&ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &ticket.DuplicateCandidates); err != nil {
			return nil, err
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func insertWorkflow(ctx context.Context, tx pgx.Tx, wf *domain.WorkflowInstance) error {
	details, err := json.Marshal(wf.Details())
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO workflow_instances (id, ticket_id, workflow_type, state, details, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = tx.Exec(ctx, query, wf.ID, wf.TicketID, wf.Type, wf.State, details, wf.CreatedAt, wf.UpdatedAt)
	return err
}

func insertAuditEntry(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	before, err := json.Marshal(entry.BeforeSnapshot)
	if err != nil {
		return err
	}
	after, err := json.Marshal(entry.AfterSnapshot)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO audit_entries (id, entity_type, entity_id, actor_id, action, before_snapshot, after_snapshot, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = tx.Exec(ctx, query, entry.ID, entry.EntityType, entry.EntityID, entry.ActorID, entry.Action, before, after, entry.Timestamp)
	return err
}

func existsInTx(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

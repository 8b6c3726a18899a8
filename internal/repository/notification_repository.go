package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-core/internal/domain"
	"github.com/spec-kit/itsm-core/pkg/util"
)

// NotificationRepository persists per-recipient notifications. Notifications
// are independent of ticket lifecycle and are never cascaded on resolution.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByRecipient(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository instantiates the postgres-backed repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	// The unique (source_event_id, recipient_user_id) index backstops the
	// idempotency store: redelivery never produces a duplicate row.
	const query = `
        INSERT INTO notifications (id, recipient_user_id, source_event_id, type, priority, message, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (source_event_id, recipient_user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		notification.ID, notification.RecipientUserID, notification.SourceEventID,
		notification.Type, notification.Priority, notification.Message,
		notification.Read, notification.CreatedAt,
	)
	return err
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `
        SELECT id, recipient_user_id, source_event_id, type, priority, message, read, read_at, created_at
        FROM notifications WHERE recipient_user_id=$1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientUserID, &n.SourceEventID, &n.Type, &n.Priority, &n.Message, &n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET read=TRUE, read_at=NOW() WHERE id=$1 AND NOT read`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		exists := false
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return util.NewNotFound("notification", map[string]any{"id": id})
		}
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET read=TRUE, read_at=NOW() WHERE recipient_user_id=$1 AND NOT read`
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return util.NewNotFound("notification", map[string]any{"id": id})
	}
	return nil
}

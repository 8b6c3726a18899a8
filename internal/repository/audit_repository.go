package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-core/internal/domain"
)

// AuditRepository is the append-only audit log. No update or delete
// operation is exposed.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository instantiates the postgres-backed log.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
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
	_, err = r.pool.Exec(ctx, query, entry.ID, entry.EntityType, entry.EntityID, entry.ActorID, entry.Action, before, after, entry.Timestamp)
	return err
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, entity_type, entity_id, actor_id, action, before_snapshot, after_snapshot, created_at
        FROM audit_entries WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var before, after []byte
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.ActorID, &entry.Action, &before, &after, &entry.Timestamp); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &entry.BeforeSnapshot); err != nil {
				return nil, err
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &entry.AfterSnapshot); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

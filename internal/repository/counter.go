package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterStore hands out the monotonically increasing component of ticket
// identifiers. Next must be atomic across concurrent submissions.
type CounterStore interface {
	Next(ctx context.Context) (int64, error)
}

type sequenceCounter struct {
	pool *pgxpool.Pool
}

// NewSequenceCounter backs the counter with a postgres sequence.
func NewSequenceCounter(pool *pgxpool.Pool) CounterStore {
	return &sequenceCounter{pool: pool}
}

func (c *sequenceCounter) Next(ctx context.Context) (int64, error) {
	var value int64
	err := c.pool.QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&value)
	return value, err
}

package repository

import "context"

// IdempotencyStore guards at-least-once delivery paths from producing
// duplicates. Acquire claims a key exactly once; Release frees it so a
// failed delivery can be retried.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

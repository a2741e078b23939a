package outbox

import (
	"context"
	"time"
)

// Repository defines outbox persistence
type Repository interface {
	// SaveAll stores records. Pass a session context to join the caller's transaction.
	SaveAll(ctx context.Context, records []*Record) error

	// FindUnpublished returns unpublished records below their retry limit, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*Record, error)

	MarkPublished(ctx context.Context, recordID string) error

	// IncrementRetry bumps the retry count and stores the last error
	IncrementRetry(ctx context.Context, recordID string, errorMsg string) error

	// DeletePublished removes records published before now minus olderThan
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

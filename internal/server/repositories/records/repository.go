// Package records persists the documents the server stores on behalf of
// clients. A document belongs to one user and one collection; creates are
// deduplicated on the client supplied idempotency key.
package records

import (
	"context"
	"time"
)

type Record struct {
	ID             string
	UserID         string
	Collection     string
	IdempotencyKey string
	Payload        map[string]any
	Deleted        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Repository interface {
	// Create inserts r, or refreshes the payload of the record created
	// earlier with the same (UserID, Collection, IdempotencyKey), and returns
	// the id of the stored record.
	Create(ctx context.Context, r *Record) (string, error)
	// Get returns common.ErrorNotFound for missing or deleted records.
	Get(ctx context.Context, userID, collection, id string) (*Record, error)
	// Update returns common.ErrorNotFound when no live record matches.
	Update(ctx context.Context, userID, collection, id string, payload map[string]any) error
	// Delete marks the record deleted. It returns common.ErrorNotFound when
	// no live record matches.
	Delete(ctx context.Context, userID, collection, id string) error
}

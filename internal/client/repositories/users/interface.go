// Package users persists locally created user accounts. Users are keyed by
// normalized email; usernames are unique among non-tombstoned users.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

type Repository interface {
	// Put inserts or replaces u by email. When another active user holds the
	// same username, the one with the older last activity loses: an older
	// existing user is tombstoned, an older incoming user is rejected with
	// common.ErrConflict.
	Put(ctx context.Context, u *models.User) error
	// Save writes a local edit of an existing user if its stored revision
	// still equals expected, and bumps the revision. The remote id is never
	// written. A taken username is reported as common.ErrAlreadyExists.
	Save(ctx context.Context, u *models.User, expected int64) (bool, error)
	Get(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*models.User, error)
	GetAllPending(ctx context.Context) ([]*models.User, error)
	GetAllActive(ctx context.Context) ([]*models.User, error)
	GetSyncedTombstones(ctx context.Context) ([]*models.User, error)
	DeletePhysically(ctx context.Context, email string) error
	// Touch records a login without changing the sync state.
	Touch(ctx context.Context, email string, at time.Time) error
	MarkSynced(ctx context.Context, email string, revision int64, remoteID string) (bool, error)
	MarkFailed(ctx context.Context, email string, message string) error
}

// Package records is the local persistence layer for synchronizable records.
//
// Every record collection lives in its own SQLite table with the same column
// layout, keyed by the client generated local id and indexed on parent
// references, remote id and sync state. Tombstones share the table with active
// records; read paths use GetAllActive, the sync path uses GetAllPending.
//
// Storage failures are wrapped in common.ErrLocalStore. Each method is a
// single statement and therefore transactional on its own.
package records

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// ParentField names a parent reference column usable with ListByParent.
type ParentField string

const (
	FieldTripRef    ParentField = "trip_ref"
	FieldVehicleRef ParentField = "vehicle_ref"
	FieldUserRef    ParentField = "user_ref"
)

// AttachmentWrite says what Save does with the attachment columns owned by
// the user side.
type AttachmentWrite int

const (
	// KeepAttachment leaves attachment data and the removal flag alone.
	KeepAttachment AttachmentWrite = iota
	// SetAttachment stores new bytes for upload and clears the removal flag.
	SetAttachment
	// ClearAttachment drops pending bytes and flags the current blob, if
	// any, for deletion.
	ClearAttachment
	// DropAttachmentData drops pending bytes only. Used for tombstones.
	DropAttachmentData
)

// Repository describes the local store contract for record collections.
type Repository interface {
	// Put inserts or replaces rec by local id.
	Put(ctx context.Context, c models.Collection, rec *models.Record) error
	// Save writes a user edit of an existing record if its stored revision
	// still equals expected, and bumps the revision. Remote id, attachment
	// url and attachment path are never written; they belong to MarkSynced.
	// A synced row goes back to pending, a tombstone is always pending. The
	// bool is false when the revision did not match or the row is gone.
	Save(ctx context.Context, c models.Collection, rec *models.Record, expected int64, att AttachmentWrite) (bool, error)
	// Get returns common.ErrorNotFound when there is no such record.
	Get(ctx context.Context, c models.Collection, localID string) (*models.Record, error)
	// GetAllPending returns pending and error records, tombstones included.
	GetAllPending(ctx context.Context, c models.Collection) ([]*models.Record, error)
	// GetAllActive returns non-tombstoned records.
	GetAllActive(ctx context.Context, c models.Collection) ([]*models.Record, error)
	// DeletePhysically removes the row. Absent rows are ignored.
	DeletePhysically(ctx context.Context, c models.Collection, localID string) error
	// ListByParent returns every record, tombstoned or not, whose field equals ref.
	ListByParent(ctx context.Context, c models.Collection, field ParentField, ref string) ([]*models.Record, error)
	// FindByRemoteID returns common.ErrorNotFound when no record carries remoteID.
	FindByRemoteID(ctx context.Context, c models.Collection, remoteID string) (*models.Record, error)
	// FindActiveByName looks up a non-tombstoned taxonomy entry.
	FindActiveByName(ctx context.Context, kind, name string) (*models.Record, error)
	// GetSyncedTombstones returns records eligible for garbage collection.
	GetSyncedTombstones(ctx context.Context, c models.Collection) ([]*models.Record, error)
	// MarkSynced writes a successful remote outcome. The record becomes
	// synced only if its revision still equals out.Revision; otherwise it is
	// left pending. The returned bool reports which of the two happened.
	MarkSynced(ctx context.Context, c models.Collection, out models.SyncOutcome) (bool, error)
	// MarkFailed sets the error state and counts the attempt.
	MarkFailed(ctx context.Context, c models.Collection, localID string, message string) error
}

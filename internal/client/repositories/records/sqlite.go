package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
)

const columns = `local_id, remote_id, sync_state, tombstoned, trip_ref, vehicle_ref, user_ref,
	name, kind, attachment_url, attachment_path, attachment_data, attachment_removed,
	payload, revision, last_error, attempts, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func table(c models.Collection) (string, error) {
	if !c.IsRecord() {
		return "", fmt.Errorf("%w: unknown record collection %q", common.ErrValidation, c)
	}
	return string(c), nil
}

func storeErr(op string, c models.Collection, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrLocalStore, op, c, err)
}

// Put upserts rec by local id. A duplicate active taxonomy name is reported
// as common.ErrAlreadyExists.
func (r *SQLiteRepository) Put(ctx context.Context, c models.Collection, rec *models.Record) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	payload, err := encodePayload(rec.Payload)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + t + ` (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			sync_state = excluded.sync_state,
			tombstoned = excluded.tombstoned,
			trip_ref = excluded.trip_ref,
			vehicle_ref = excluded.vehicle_ref,
			user_ref = excluded.user_ref,
			name = excluded.name,
			kind = excluded.kind,
			attachment_url = excluded.attachment_url,
			attachment_path = excluded.attachment_path,
			attachment_data = excluded.attachment_data,
			attachment_removed = excluded.attachment_removed,
			payload = excluded.payload,
			revision = excluded.revision,
			last_error = excluded.last_error,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		rec.LocalID, rec.RemoteID, string(rec.State), rec.Tombstoned,
		rec.TripRef, rec.VehicleRef, rec.UserRef, rec.Name, rec.Kind,
		rec.AttachmentURL, rec.AttachmentPath, rec.AttachmentData, rec.AttachmentRemoved,
		payload, rec.Revision, rec.LastError, rec.Attempts, unixNano(rec.UpdatedAt))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", rec.Kind, rec.Name, common.ErrAlreadyExists)
		}
		return storeErr("upsert", c, err)
	}
	return nil
}

func (r *SQLiteRepository) Save(ctx context.Context, c models.Collection, rec *models.Record, expected int64, att AttachmentWrite) (bool, error) {
	t, err := table(c)
	if err != nil {
		return false, err
	}
	payload, err := encodePayload(rec.Payload)
	if err != nil {
		return false, err
	}
	var data []byte
	if att == SetAttachment {
		data = rec.AttachmentData
	}

	query := `UPDATE ` + t + ` SET
			tombstoned = ?,
			trip_ref = ?,
			vehicle_ref = ?,
			user_ref = ?,
			name = ?,
			kind = ?,
			payload = ?,
			attachment_data = CASE ? WHEN 0 THEN attachment_data WHEN 1 THEN ? ELSE NULL END,
			attachment_removed = CASE ? WHEN 1 THEN 0 WHEN 2 THEN attachment_path <> '' ELSE attachment_removed END,
			sync_state = CASE WHEN ? OR sync_state = 'synced' THEN 'pending' ELSE sync_state END,
			revision = revision + 1,
			updated_at = ?
		WHERE local_id = ? AND revision = ?`

	res, err := r.db.ExecContext(ctx, query,
		rec.Tombstoned, rec.TripRef, rec.VehicleRef, rec.UserRef, rec.Name, rec.Kind, payload,
		int(att), data, int(att), rec.Tombstoned, unixNano(rec.UpdatedAt),
		rec.LocalID, expected)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return false, fmt.Errorf("%s %q: %w", rec.Kind, rec.Name, common.ErrAlreadyExists)
		}
		return false, storeErr("save", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("save", c, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, c models.Collection, localID string) (*models.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+t+` WHERE local_id = ?`, localID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, storeErr("get", c, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAllPending(ctx context.Context, c models.Collection) ([]*models.Record, error) {
	return r.list(ctx, c, "list pending", `sync_state IN ('pending', 'error') ORDER BY updated_at, local_id`)
}

func (r *SQLiteRepository) GetAllActive(ctx context.Context, c models.Collection) ([]*models.Record, error) {
	return r.list(ctx, c, "list active", `tombstoned = 0 ORDER BY updated_at, local_id`)
}

func (r *SQLiteRepository) GetSyncedTombstones(ctx context.Context, c models.Collection) ([]*models.Record, error) {
	return r.list(ctx, c, "list synced tombstones", `tombstoned = 1 AND sync_state = 'synced'`)
}

func (r *SQLiteRepository) ListByParent(ctx context.Context, c models.Collection, field ParentField, ref string) ([]*models.Record, error) {
	switch field {
	case FieldTripRef, FieldVehicleRef, FieldUserRef:
	default:
		return nil, fmt.Errorf("%w: unknown parent field %q", common.ErrValidation, field)
	}
	return r.list(ctx, c, "list by parent", string(field)+` = ? ORDER BY local_id`, ref)
}

func (r *SQLiteRepository) FindByRemoteID(ctx context.Context, c models.Collection, remoteID string) (*models.Record, error) {
	if remoteID == "" {
		return nil, common.ErrorNotFound
	}
	recs, err := r.list(ctx, c, "find by remote id", `remote_id = ? LIMIT 1`, remoteID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrorNotFound
	}
	return recs[0], nil
}

func (r *SQLiteRepository) FindActiveByName(ctx context.Context, kind, name string) (*models.Record, error) {
	recs, err := r.list(ctx, models.CollectionTaxonomy, "find by name",
		`tombstoned = 0 AND kind = ? AND name = ? LIMIT 1`, kind, name)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.ErrorNotFound
	}
	return recs[0], nil
}

func (r *SQLiteRepository) DeletePhysically(ctx context.Context, c models.Collection, localID string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+t+` WHERE local_id = ?`, localID); err != nil {
		return storeErr("delete", c, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, c models.Collection, out models.SyncOutcome) (bool, error) {
	t, err := table(c)
	if err != nil {
		return false, err
	}
	query := `UPDATE ` + t + ` SET
			remote_id = ?,
			attachment_url = ?,
			attachment_path = ?,
			attachment_data = CASE WHEN revision = ? THEN NULL ELSE attachment_data END,
			attachment_removed = CASE WHEN revision = ? THEN 0 ELSE attachment_removed END,
			sync_state = CASE WHEN revision = ? THEN 'synced' ELSE 'pending' END,
			last_error = '',
			attempts = 0
		WHERE local_id = ?
		RETURNING sync_state`

	var state string
	err = r.db.QueryRowContext(ctx, query,
		out.RemoteID, out.AttachmentURL, out.AttachmentPath,
		out.Revision, out.Revision, out.Revision, out.LocalID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, common.ErrorNotFound
	}
	if err != nil {
		return false, storeErr("mark synced", c, err)
	}
	return models.SyncState(state) == models.StateSynced, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, c models.Collection, localID string, message string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE `+t+` SET sync_state = 'error', last_error = ?, attempts = attempts + 1 WHERE local_id = ?`,
		message, localID)
	if err != nil {
		return storeErr("mark failed", c, err)
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, c models.Collection, op string, where string, args ...any) ([]*models.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM `+t+` WHERE `+where, args...)
	if err != nil {
		return nil, storeErr(op, c, err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr(op, c, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, c, err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec       models.Record
		state     string
		payload   string
		updatedAt int64
	)
	err := s.Scan(&rec.LocalID, &rec.RemoteID, &state, &rec.Tombstoned,
		&rec.TripRef, &rec.VehicleRef, &rec.UserRef, &rec.Name, &rec.Kind,
		&rec.AttachmentURL, &rec.AttachmentPath, &rec.AttachmentData, &rec.AttachmentRemoved,
		&payload, &rec.Revision, &rec.LastError, &rec.Attempts, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.State = models.SyncState(state)
	rec.UpdatedAt = fromUnixNano(updatedAt)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", rec.LocalID, err)
		}
	}
	return &rec, nil
}

func encodePayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: payload: %v", common.ErrValidation, err)
	}
	return string(b), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

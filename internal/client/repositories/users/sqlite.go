package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
)

const columns = `email, remote_id, username, password_hash, role, sync_state, tombstoned,
	revision, last_error, attempts, last_login_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s users: %w", common.ErrLocalStore, op, err)
}

// inTx runs fn in a transaction when the repository is bound to a *sql.DB.
// A repository bound to a *sql.Tx is already inside one.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, fn)
	}
	return fn(ctx, r.db)
}

func (r *SQLiteRepository) Put(ctx context.Context, u *models.User) error {
	err := r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		other, err := getOne(ctx, tx, `tombstoned = 0 AND username = ? AND email <> ?`, u.Username, u.Email)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if other != nil {
			if other.LastActivity().After(u.LastActivity()) {
				return fmt.Errorf("username %q is held by a more recently active user: %w", u.Username, common.ErrConflict)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET tombstoned = 1, sync_state = 'pending', revision = revision + 1 WHERE email = ?`,
				other.Email); err != nil {
				return storeErr("discard", err)
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO users (`+columns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				remote_id = excluded.remote_id,
				username = excluded.username,
				password_hash = excluded.password_hash,
				role = excluded.role,
				sync_state = excluded.sync_state,
				tombstoned = excluded.tombstoned,
				revision = excluded.revision,
				last_error = excluded.last_error,
				attempts = excluded.attempts,
				last_login_at = excluded.last_login_at,
				updated_at = excluded.updated_at`,
			u.Email, u.RemoteID, u.Username, u.PasswordHash, u.Role, string(u.State), u.Tombstoned,
			u.Revision, u.LastError, u.Attempts, unixNano(u.LastLoginAt), unixNano(u.UpdatedAt))
		if err != nil {
			if dbx.IsUniqueViolation(err) {
				return fmt.Errorf("username %q: %w", u.Username, common.ErrConflict)
			}
			return storeErr("upsert", err)
		}
		return nil
	})
	return err
}

func (r *SQLiteRepository) Save(ctx context.Context, u *models.User, expected int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET
			username = ?,
			password_hash = ?,
			role = ?,
			tombstoned = ?,
			sync_state = CASE WHEN ? OR sync_state = 'synced' THEN 'pending' ELSE sync_state END,
			revision = revision + 1,
			updated_at = ?
		WHERE email = ? AND revision = ?`,
		u.Username, u.PasswordHash, u.Role, u.Tombstoned, u.Tombstoned, unixNano(u.UpdatedAt),
		u.Email, expected)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return false, fmt.Errorf("username %q: %w", u.Username, common.ErrAlreadyExists)
		}
		return false, storeErr("save", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("save", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, email string) (*models.User, error) {
	return getOne(ctx, r.db, `email = ?`, email)
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return getOne(ctx, r.db, `tombstoned = 0 AND username = ?`, username)
}

func (r *SQLiteRepository) FindByRemoteID(ctx context.Context, remoteID string) (*models.User, error) {
	if remoteID == "" {
		return nil, common.ErrorNotFound
	}
	return getOne(ctx, r.db, `remote_id = ?`, remoteID)
}

func (r *SQLiteRepository) GetAllPending(ctx context.Context) ([]*models.User, error) {
	return list(ctx, r.db, `sync_state IN ('pending', 'error') ORDER BY updated_at, email`)
}

func (r *SQLiteRepository) GetAllActive(ctx context.Context) ([]*models.User, error) {
	return list(ctx, r.db, `tombstoned = 0 ORDER BY username`)
}

func (r *SQLiteRepository) GetSyncedTombstones(ctx context.Context) ([]*models.User, error) {
	return list(ctx, r.db, `tombstoned = 1 AND sync_state = 'synced'`)
}

func (r *SQLiteRepository) DeletePhysically(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, email string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE email = ? AND tombstoned = 0`,
		unixNano(at), email)
	if err != nil {
		return storeErr("touch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("touch", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, email string, revision int64, remoteID string) (bool, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `UPDATE users SET
			remote_id = ?,
			sync_state = CASE WHEN revision = ? THEN 'synced' ELSE 'pending' END,
			last_error = '',
			attempts = 0
		WHERE email = ?
		RETURNING sync_state`, remoteID, revision, email).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, common.ErrorNotFound
	}
	if err != nil {
		return false, storeErr("mark synced", err)
	}
	return models.SyncState(state) == models.StateSynced, nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, email string, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET sync_state = 'error', last_error = ?, attempts = attempts + 1 WHERE email = ?`,
		message, email)
	if err != nil {
		return storeErr("mark failed", err)
	}
	return nil
}

func getOne(ctx context.Context, db dbx.DBTX, where string, args ...any) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+columns+` FROM users WHERE `+where+` LIMIT 1`, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return u, nil
}

func list(ctx context.Context, db dbx.DBTX, where string, args ...any) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+columns+` FROM users WHERE `+where, args...)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		u                    models.User
		state                string
		lastLogin, updatedAt int64
	)
	if err := s.Scan(&u.Email, &u.RemoteID, &u.Username, &u.PasswordHash, &u.Role, &state, &u.Tombstoned,
		&u.Revision, &u.LastError, &u.Attempts, &lastLogin, &updatedAt); err != nil {
		return nil, err
	}
	u.State = models.SyncState(state)
	u.LastLoginAt = fromUnixNano(lastLogin)
	u.UpdatedAt = fromUnixNano(updatedAt)
	return &u, nil
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

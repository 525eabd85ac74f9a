package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTrips(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE trips (local_id TEXT PRIMARY KEY, vehicle_ref TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func tripCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trips`).Scan(&n))
	return n
}

func insertTrip(ctx context.Context, tx DBTX, id string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO trips(local_id, vehicle_ref) VALUES (?, 'v1')`, id)
	return err
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		db := openTrips(t)
		err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			if err := insertTrip(ctx, tx, "t1"); err != nil {
				return err
			}
			return insertTrip(ctx, tx, "t2")
		})
		require.NoError(t, err)
		assert.Equal(t, 2, tripCount(t, db))
	})

	t.Run("rolls back a cascade that fails halfway", func(t *testing.T) {
		db := openTrips(t)
		err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertTrip(ctx, tx, "t1"))
			return insertTrip(ctx, tx, "t1")
		})
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
		assert.Equal(t, 0, tripCount(t, db))
	})

	t.Run("rolls back and rethrows a panic", func(t *testing.T) {
		db := openTrips(t)
		assert.PanicsWithValue(t, "store corrupted", func() {
			_ = WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
				require.NoError(t, insertTrip(ctx, tx, "t1"))
				panic("store corrupted")
			})
		})
		assert.Equal(t, 0, tripCount(t, db))
	})

	t.Run("begin fails on a closed handle", func(t *testing.T) {
		db := openTrips(t)
		require.NoError(t, db.Close())
		called := false
		err := WithTx(ctx, db, nil, func(context.Context, DBTX) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTrips(t)
	_, err := db.Exec(`CREATE TABLE users (email TEXT PRIMARY KEY, username TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE UNIQUE INDEX users_username ON users(username)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO users VALUES ('a@x.io', 'ann')`)
	require.NoError(t, err)

	_, pkErr := db.Exec(`INSERT INTO users VALUES ('a@x.io', 'bob')`)
	_, idxErr := db.Exec(`INSERT INTO users VALUES ('b@x.io', 'ann')`)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sqlite primary key", pkErr, true},
		{"sqlite unique index", idxErr, true},
		{"wrapped sqlite", fmt.Errorf("put user: %w", idxErr), true},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("other"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

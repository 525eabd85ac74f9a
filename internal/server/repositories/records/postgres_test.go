package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestCreate_UpsertsOnIdempotencyKey(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	q := regexp.QuoteMeta(`INSERT INTO records`) + `.*` +
		regexp.QuoteMeta(`ON CONFLICT (user_id, collection, idempotency_key)`) + `.*RETURNING id`

	mock.ExpectQuery(q).
		WithArgs("new-id", "u1", "trips", "t1", []byte(`{"vehicleRef":"V-100"}`), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-id"))

	rec := &Record{ID: "new-id", UserID: "u1", Collection: "trips", IdempotencyKey: "t1",
		Payload: map[string]any{"vehicleRef": "V-100"}}
	id, err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
	assert.Equal(t, "existing-id", rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_GeneratesIDAndWrapsErrors(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO records`).
		WithArgs(sqlmock.AnyArg(), "u1", "vehicles", "v1", []byte(`{}`), fixedNow).
		WillReturnError(errors.New("boom"))

	rec := &Record{UserID: "u1", Collection: "vehicles", IdempotencyKey: "v1"}
	_, err := repo.Create(context.Background(), rec)
	require.ErrorContains(t, err, "boom")
	assert.NotEmpty(t, rec.ID)
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cols := []string{"id", "user_id", "collection", "idempotency_key", "payload", "deleted", "created_at", "updated_at"}

	mock.ExpectQuery(`SELECT .* FROM records\s+WHERE id = \$1 AND user_id = \$2 AND collection = \$3 AND NOT deleted`).
		WithArgs("r1", "u1", "visits").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "u1", "visits", "x1", []byte(`{"place":"Depot"}`), false, fixedNow, fixedNow))

	got, err := repo.Get(context.Background(), "u1", "visits", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Depot", got.Payload["place"])
	assert.Equal(t, "x1", got.IdempotencyKey)

	mock.ExpectQuery(`SELECT .* FROM records`).
		WithArgs("r2", "u1", "visits").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "u1", "visits", "r2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `UPDATE records SET payload = \$1, updated_at = \$2\s+WHERE id = \$3 AND user_id = \$4 AND collection = \$5 AND NOT deleted`

	mock.ExpectExec(q).
		WithArgs([]byte(`{"amount":3}`), fixedNow, "r1", "u1", "expenses").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), "u1", "expenses", "r1", map[string]any{"amount": 3}))

	mock.ExpectExec(q).
		WithArgs([]byte(`{}`), fixedNow, "r9", "u1", "expenses").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Update(context.Background(), "u1", "expenses", "r9", nil), common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `UPDATE records SET deleted = TRUE`

	mock.ExpectExec(q).
		WithArgs(fixedNow, "r1", "u1", "fuelings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "u1", "fuelings", "r1"))

	mock.ExpectExec(q).
		WithArgs(fixedNow, "r1", "u1", "fuelings").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "u1", "fuelings", "r1"), common.ErrorNotFound)

	mock.ExpectExec(q).WillReturnError(errors.New("conn reset"))
	require.ErrorContains(t, repo.Delete(context.Background(), "u1", "fuelings", "r1"), "conn reset")
}

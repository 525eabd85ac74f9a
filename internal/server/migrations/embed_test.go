package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := fs.ReadFile(Migrations, names[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "records_idempotency_idx")
}

func TestUp_UsesGoose(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var dir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, d string, _ ...goose.OptionsFunc) error {
		dir = d
		return errors.New("stop")
	}

	err := Up(context.Background(), nil)
	require.EqualError(t, err, "stop")
	assert.Equal(t, ".", dir)
}

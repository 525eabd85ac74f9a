package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/dbx"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *Record) (string, error) {
	payload, err := json.Marshal(payloadOrEmpty(rec.Payload))
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := r.now()

	query := `INSERT INTO records (id, user_id, collection, idempotency_key, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, collection, idempotency_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		RETURNING id`

	var id string
	err = r.db.QueryRowContext(ctx, query, rec.ID, rec.UserID, rec.Collection, rec.IdempotencyKey, payload, now).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("error performing sql request: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, collection, id string) (*Record, error) {
	query := `SELECT id, user_id, collection, idempotency_key, payload, deleted, created_at, updated_at
		FROM records
		WHERE id = $1 AND user_id = $2 AND collection = $3 AND NOT deleted`

	var (
		rec     Record
		payload []byte
	)
	err := r.db.QueryRowContext(ctx, query, id, userID, collection).Scan(
		&rec.ID, &rec.UserID, &rec.Collection, &rec.IdempotencyKey,
		&payload, &rec.Deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID, collection, id string, payload map[string]any) error {
	b, err := json.Marshal(payloadOrEmpty(payload))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	query := `UPDATE records SET payload = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4 AND collection = $5 AND NOT deleted`

	res, err := r.db.ExecContext(ctx, query, b, r.now(), id, userID, collection)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, collection, id string) error {
	query := `UPDATE records SET deleted = TRUE, updated_at = $1
		WHERE id = $2 AND user_id = $3 AND collection = $4 AND NOT deleted`

	res, err := r.db.ExecContext(ctx, query, r.now(), id, userID, collection)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func payloadOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

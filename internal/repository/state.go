package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

// StateRepository is the durable backing store for conversation state.
// Callers treat every operation as best-effort: the in-process cache keeps
// serving when Postgres is down.
type StateRepository interface {
	Upsert(ctx context.Context, identity string, state model.ConversationState, updatedAt time.Time) error
	Find(ctx context.Context, identity string, since time.Time) (*model.StateRecord, error)
	Delete(ctx context.Context, identity string) error
	BulkLoadSince(ctx context.Context, since time.Time) ([]model.StateRecord, error)
}

type stateRepo struct {
	db *sqlx.DB
}

func NewStateRepository(db *sqlx.DB) StateRepository {
	return &stateRepo{db: db}
}

func (r *stateRepo) Upsert(ctx context.Context, identity string, state model.ConversationState, updatedAt time.Time) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversation_state (identity, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, identity, raw, updatedAt)
	return err
}

func (r *stateRepo) Find(ctx context.Context, identity string, since time.Time) (*model.StateRecord, error) {
	var rec model.StateRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT identity, state, updated_at FROM conversation_state
		WHERE identity = $1 AND updated_at >= $2
	`, identity, since)
	return HandleNotFound(&rec, err)
}

func (r *stateRepo) Delete(ctx context.Context, identity string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE identity = $1`, identity)
	return err
}

func (r *stateRepo) BulkLoadSince(ctx context.Context, since time.Time) ([]model.StateRecord, error) {
	var recs []model.StateRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT identity, state, updated_at FROM conversation_state
		WHERE updated_at >= $1
	`, since)
	return recs, err
}

package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

const maxContentLength = 5000

// truncateUTF8 cuts s to at most max bytes without splitting a rune;
// Postgres rejects text columns that carry invalid UTF-8.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

type MessageLogRepository interface {
	Create(ctx context.Context, params model.CreateMessageLogParams) (*model.MessageLogEntry, error)
	FindByIdentity(ctx context.Context, identity string, limit int) ([]model.MessageLogEntry, error)
	DeleteByIdentity(ctx context.Context, identity string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageLogRepo struct {
	db *sqlx.DB
}

func NewMessageLogRepository(db *sqlx.DB) MessageLogRepository {
	return &messageLogRepo{db: db}
}

func (r *messageLogRepo) Create(ctx context.Context, params model.CreateMessageLogParams) (*model.MessageLogEntry, error) {
	content := truncateUTF8(params.Content, maxContentLength)

	var entry model.MessageLogEntry
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO conversation_history (id, identity, role, content, intent, service)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, identity, role, content, intent, service, created_at
	`, uuid.NewString(), params.Identity, params.Role, content, params.Intent, params.Service)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByIdentity returns the most recent messages in chronological order.
func (r *messageLogRepo) FindByIdentity(ctx context.Context, identity string, limit int) ([]model.MessageLogEntry, error) {
	var entries []model.MessageLogEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, identity, role, content, intent, service, created_at
		FROM conversation_history
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, identity, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (r *messageLogRepo) DeleteByIdentity(ctx context.Context, identity string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversation_history WHERE identity = $1`, identity)
	return err
}

func (r *messageLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversation_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

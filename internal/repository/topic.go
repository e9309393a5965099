package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

type TopicMappingRepository interface {
	FindByIdentity(ctx context.Context, identity string) (*model.TopicMapping, error)
	FindByTopicID(ctx context.Context, topicID int64) (*model.TopicMapping, error)
	Upsert(ctx context.Context, identity string, topicID int64) error
	Delete(ctx context.Context, identity string) error
}

type topicRepo struct {
	db *sqlx.DB
}

func NewTopicMappingRepository(db *sqlx.DB) TopicMappingRepository {
	return &topicRepo{db: db}
}

func (r *topicRepo) FindByIdentity(ctx context.Context, identity string) (*model.TopicMapping, error) {
	var m model.TopicMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT identity, topic_id, created_at FROM topic_mappings WHERE identity = $1
	`, identity)
	return HandleNotFound(&m, err)
}

func (r *topicRepo) FindByTopicID(ctx context.Context, topicID int64) (*model.TopicMapping, error) {
	var m model.TopicMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT identity, topic_id, created_at FROM topic_mappings WHERE topic_id = $1
	`, topicID)
	return HandleNotFound(&m, err)
}

func (r *topicRepo) Upsert(ctx context.Context, identity string, topicID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO topic_mappings (identity, topic_id)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET topic_id = EXCLUDED.topic_id
	`, identity, topicID)
	return err
}

func (r *topicRepo) Delete(ctx context.Context, identity string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM topic_mappings WHERE identity = $1`, identity)
	return err
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

type LearnedResponseRepository interface {
	Create(ctx context.Context, params model.CreateLearnedResponseParams) (*model.LearnedResponse, error)
	FindByKeywords(ctx context.Context, keywords []string) (*model.LearnedResponse, error)
	MarkUsed(ctx context.Context, id string) error
	ListActive(ctx context.Context, limit int) ([]model.LearnedResponse, error)
	Deactivate(ctx context.Context, id string) error
}

type learnedRepo struct {
	db *sqlx.DB
}

func NewLearnedResponseRepository(db *sqlx.DB) LearnedResponseRepository {
	return &learnedRepo{db: db}
}

func (r *learnedRepo) Create(ctx context.Context, params model.CreateLearnedResponseParams) (*model.LearnedResponse, error) {
	question := truncateUTF8(params.QuestionPattern, 500)
	answer := truncateUTF8(params.HumanResponse, 2000)

	var resp model.LearnedResponse
	err := r.db.GetContext(ctx, &resp, `
		INSERT INTO learned_responses
			(id, question_pattern, human_response, keywords, category, identity, confidence_score, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, 0.9, TRUE)
		RETURNING id, question_pattern, human_response, keywords, category, identity,
			confidence_score, times_used, is_active, created_at
	`, uuid.NewString(), question, answer, pq.StringArray(params.Keywords), params.Category, params.Identity)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindByKeywords returns the most relevant active answer whose keyword set
// overlaps the given keywords, preferring confidence then usage.
func (r *learnedRepo) FindByKeywords(ctx context.Context, keywords []string) (*model.LearnedResponse, error) {
	var resp model.LearnedResponse
	err := r.db.GetContext(ctx, &resp, `
		SELECT id, question_pattern, human_response, keywords, category, identity,
			confidence_score, times_used, is_active, created_at
		FROM learned_responses
		WHERE is_active = TRUE AND keywords && $1
		ORDER BY confidence_score DESC, times_used DESC
		LIMIT 1
	`, pq.StringArray(keywords))
	return HandleNotFound(&resp, err)
}

func (r *learnedRepo) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE learned_responses SET times_used = times_used + 1 WHERE id = $1
	`, id)
	return err
}

func (r *learnedRepo) ListActive(ctx context.Context, limit int) ([]model.LearnedResponse, error) {
	var resps []model.LearnedResponse
	err := r.db.SelectContext(ctx, &resps, `
		SELECT id, question_pattern, human_response, keywords, category, identity,
			confidence_score, times_used, is_active, created_at
		FROM learned_responses
		WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	return resps, err
}

func (r *learnedRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE learned_responses SET is_active = FALSE WHERE id = $1
	`, id)
	return err
}

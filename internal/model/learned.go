package model

import (
	"time"

	"github.com/lib/pq"
)

// LearnedResponse is an operator-verified answer harvested from past human
// replies, matched against inbound messages by keyword overlap.
type LearnedResponse struct {
	ID              string         `db:"id" json:"id"`
	QuestionPattern string         `db:"question_pattern" json:"questionPattern"`
	HumanResponse   string         `db:"human_response" json:"humanResponse"`
	Keywords        pq.StringArray `db:"keywords" json:"keywords"`
	Category        string         `db:"category" json:"category"`
	Identity        string         `db:"identity" json:"identity"`
	ConfidenceScore float64        `db:"confidence_score" json:"confidenceScore"`
	TimesUsed       int            `db:"times_used" json:"timesUsed"`
	IsActive        bool           `db:"is_active" json:"isActive"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

type CreateLearnedResponseParams struct {
	QuestionPattern string
	HumanResponse   string
	Keywords        []string
	Category        string
	Identity        string
}

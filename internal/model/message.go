package model

import "time"

// MessageLogEntry is one row of the per-phone conversation history.
type MessageLogEntry struct {
	ID        string      `db:"id" json:"id"`
	Identity  string      `db:"identity" json:"identity"`
	Role      MessageRole `db:"role" json:"role"`
	Content   string      `db:"content" json:"content"`
	Intent    *string     `db:"intent" json:"intent,omitempty"`
	Service   *string     `db:"service" json:"service,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

type CreateMessageLogParams struct {
	Identity string
	Role     MessageRole
	Content  string
	Intent   *string
	Service  *string
}

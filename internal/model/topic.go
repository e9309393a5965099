package model

import "time"

// TopicMapping links a customer phone to its Telegram forum topic on the
// operator panel. One topic per phone; replies typed in the topic are
// relayed back to the phone.
type TopicMapping struct {
	Identity  string    `db:"identity" json:"identity"`
	TopicID   int64     `db:"topic_id" json:"topicId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

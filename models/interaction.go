package models

import "time"

// InteractionLog is a single logged event linking a learner to an item.
// Values are treated as immutable once read from storage.
type InteractionLog struct {
	ID        int64     `ch:"id" json:"id"`
	LearnerID int64     `ch:"learner_id" json:"learner_id"`
	ItemID    int64     `ch:"item_id" json:"item_id"`
	Kind      string    `ch:"kind" json:"kind"`
	CreatedAt time.Time `ch:"created_at" json:"created_at"`
}

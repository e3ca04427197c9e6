package models

import "time"

// Timestamps holds the bookkeeping columns shared by stored records.
// Records are keyed by string ids issued elsewhere, so there is no
// auto-increment id here.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

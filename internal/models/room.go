package models

import (
	"time"

	"github.com/google/uuid"
)

// Room represents a live Q&A room. Code is the public join code participants type in.
type Room struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	Title      string     `json:"title"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ArchiveURL *string    `json:"archive_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Ended reports whether the room is closed to new joins.
func (r *Room) Ended() bool {
	return r.EndedAt != nil
}

// RoomSnapshot is the full room state pushed to subscribers on every change.
// Questions are in insertion order; consumers replace previous state wholesale.
type RoomSnapshot struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Questions []Question `json:"questions"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Author is the identity snapshot captured when a question is submitted.
// Later profile changes do not update questions already asked.
type Author struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Question represents a participant question in a room. The answered and
// highlighted flags are independent; neither is ever cleared once set.
type Question struct {
	ID            uuid.UUID `json:"id"`
	RoomID        uuid.UUID `json:"room_id"`
	Author        Author    `json:"author"`
	Content       string    `json:"content"`
	IsAnswered    bool      `json:"is_answered"`
	IsHighlighted bool      `json:"is_highlighted"`
	CreatedAt     time.Time `json:"created_at"`
}

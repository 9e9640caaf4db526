package models

import "time"

// ChatRoom is immutable after creation except for membership additions.
type ChatRoom struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ImagePath *string   `db:"image_path" json:"image_path,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage is an append-only transcript row. UserID is nullable so
// transcripts survive account deletion.
type ChatMessage struct {
	ID        int64     `db:"id" json:"id"`
	RoomID    int64     `db:"room_id" json:"room_id"`
	UserID    *int64    `db:"user_id" json:"user_id,omitempty"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

// MessageRepository abstracts the append-only message transcript.
type MessageRepository interface {
	AppendMessage(ctx context.Context, roomID, userID int64, body string) (models.ChatMessage, error)
	ListRoomMessages(ctx context.Context, roomID int64) ([]models.ChatMessage, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage durably inserts a message and returns the stored row. Callers
// that broadcast must do so only after this returns.
func (r *MessageRepo) AppendMessage(ctx context.Context, roomID, userID int64, body string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, user_id, body) VALUES ($1, $2, $3)
         RETURNING id, room_id, user_id, body, created_at`,
		roomID, userID, body).
		Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Body, &msg.CreatedAt)
	return msg, err
}

// ListRoomMessages returns the room transcript oldest-first. The id tiebreak
// makes the order total when timestamps collide.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID int64) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, room_id, user_id, body, created_at FROM messages
         WHERE room_id=$1 ORDER BY created_at ASC, id ASC`, roomID)
	return msgs, err
}

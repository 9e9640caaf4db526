package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, name string, imagePath *string, creatorID int64) (models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error)
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	AddMember(ctx context.Context, roomID, userID int64) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom creates the room and the creator's membership atomically. A room
// without its creator membership is never observable.
func (r *RoomRepo) CreateRoom(ctx context.Context, name string, imagePath *string, creatorID int64) (models.ChatRoom, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatRoom{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.ChatRoom
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chat_rooms (name, image_path) VALUES ($1, $2) RETURNING id, name, image_path, created_at`,
		name, imagePath).
		Scan(&room.ID, &room.Name, &room.ImagePath, &room.CreatedAt); err != nil {
		return models.ChatRoom{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, creatorID); err != nil {
		return models.ChatRoom{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

// ListRoomsForUser returns rooms the user is a member of.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int64) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT cr.id, cr.name, cr.image_path, cr.created_at FROM chat_rooms cr
         INNER JOIN room_members rm ON rm.room_id = cr.id
         WHERE rm.user_id=$1 ORDER BY cr.created_at DESC`, userID)
	return rooms, err
}

// GetRoom fetches a single room.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room,
		`SELECT id, name, image_path, created_at FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return room, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// AddMember invites a user into a room. Re-inviting is a no-op.
func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, userID)
	return err
}

package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"course-chat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository looks up rooms and records membership.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	// EnsureMember enrolls userID in roomID if not already a member.
	EnsureMember(ctx context.Context, roomID, userID string) error
}

// RoomRepo is a sqlx-backed repository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, r.db.Rebind(`SELECT id, name, created_at FROM rooms WHERE id = ?`), roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

func (r *RoomRepo) EnsureMember(ctx context.Context, roomID, userID string) error {
	ctx, span := tracer.Start(ctx, "rooms.ensure_member", trace.WithAttributes(attribute.String("room.id", roomID)))
	defer span.End()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO room_members (room_id, user_id) VALUES (?, ?)
        ON CONFLICT (room_id, user_id) DO NOTHING`), roomID, userID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

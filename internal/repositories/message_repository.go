package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"course-chat/internal/models"
	"course-chat/pkg/chatapi"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrCursorNotFound  = errors.New("cursor not found")
)

var tracer = otel.Tracer("course-chat/repositories")

// MessageRepository stores and pages room messages.
type MessageRepository interface {
	// ListPage returns up to limit messages older than cursor (or the newest
	// when cursor is empty), oldest to newest.
	ListPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error)
	GetMessage(ctx context.Context, messageID string) (chatapi.Message, error)
	// Create stores msg. When msg.ClientKey repeats an earlier send by the
	// same sender in the same room, that message is returned with created
	// set to false.
	Create(ctx context.Context, msg models.NewMessage) (stored chatapi.Message, created bool, err error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

const messageColumns = `id, room_id, sender_id, sender_name, content, created_at`

// ListPage reads limit+1 rows newest first; the extra row only tells
// whether older history remains.
func (r *MessageRepo) ListPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	ctx, span := tracer.Start(ctx, "messages.list_page", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.Bool("page.cursor", cursor != ""),
		attribute.Int("page.limit", limit),
	))
	defer span.End()

	var rows []chatapi.Message
	if cursor == "" {
		query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
            WHERE room_id = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?`)
		if err := r.db.SelectContext(ctx, &rows, query, roomID, limit+1); err != nil {
			span.RecordError(err)
			return chatapi.Page{}, err
		}
		return pageOf(rows, limit), nil
	}

	anchor, err := r.GetMessage(ctx, cursor)
	if errors.Is(err, ErrMessageNotFound) || (err == nil && anchor.RoomID != roomID) {
		return chatapi.Page{}, ErrCursorNotFound
	}
	if err != nil {
		span.RecordError(err)
		return chatapi.Page{}, err
	}

	query := r.db.Rebind(`SELECT ` + messageColumns + ` FROM messages
        WHERE room_id = ?
        AND (created_at < ? OR (created_at = ? AND id < ?))
        ORDER BY created_at DESC, id DESC
        LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, roomID, anchor.CreatedAt, anchor.CreatedAt, anchor.ID, limit+1); err != nil {
		span.RecordError(err)
		return chatapi.Page{}, err
	}
	return pageOf(rows, limit), nil
}

func pageOf(rows []chatapi.Message, limit int) chatapi.Page {
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC()
	}
	return chatapi.PageFromNewest(rows, limit)
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (chatapi.Message, error) {
	var msg chatapi.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return chatapi.Message{}, ErrMessageNotFound
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, err
}

// Create stores a message with a ULID id and a microsecond UTC timestamp,
// the precision both supported databases keep.
func (r *MessageRepo) Create(ctx context.Context, in models.NewMessage) (chatapi.Message, bool, error) {
	ctx, span := tracer.Start(ctx, "messages.create", trace.WithAttributes(
		attribute.String("room.id", in.RoomID),
		attribute.Bool("message.idempotent", in.ClientKey != ""),
	))
	defer span.End()

	if in.ClientKey != "" {
		existing, err := r.findByClientKey(ctx, in)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrMessageNotFound) {
			span.RecordError(err)
			return chatapi.Message{}, false, err
		}
	}

	msg := chatapi.Message{
		ID:         ulid.Make().String(),
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Content:    in.Content,
		CreatedAt:  r.now().UTC().Truncate(time.Microsecond),
	}

	var clientKey sql.NullString
	if in.ClientKey != "" {
		clientKey = sql.NullString{String: in.ClientKey, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO messages (id, room_id, sender_id, sender_name, content, client_key, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, clientKey, msg.CreatedAt)
	if err != nil {
		if in.ClientKey != "" && isUniqueViolation(err) {
			// a concurrent retry of the same draft won the insert
			existing, findErr := r.findByClientKey(ctx, in)
			if findErr == nil {
				return existing, false, nil
			}
		}
		span.RecordError(err)
		return chatapi.Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	return msg, true, nil
}

func (r *MessageRepo) findByClientKey(ctx context.Context, in models.NewMessage) (chatapi.Message, error) {
	var msg chatapi.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE room_id = ? AND sender_id = ? AND client_key = ?`), in.RoomID, in.SenderID, in.ClientKey)
	if errors.Is(err, sql.ErrNoRows) {
		return chatapi.Message{}, ErrMessageNotFound
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

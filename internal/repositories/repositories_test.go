package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-chat/internal/db"
	"course-chat/internal/models"
	"course-chat/pkg/chatapi"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	at := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(step)
		return at
	}
}

func seed(t *testing.T, repo *MessageRepo, room string, n int) []chatapi.Message {
	t.Helper()
	out := make([]chatapi.Message, 0, n)
	for i := 1; i <= n; i++ {
		msg, created, err := repo.Create(context.Background(), models.NewMessage{
			RoomID: room, SenderID: "u1", SenderName: "Ada", Content: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		require.True(t, created)
		out = append(out, msg)
	}
	return out
}

func ids(msgs []chatapi.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestListPageEmptyRoom(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))

	page, err := repo.ListPage(context.Background(), db.GlobalRoomID, "", 30)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Nil(t, page.NextCursor)
}

func TestListPageWalksHistory(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	repo.now = steppingClock(time.Second)
	all := seed(t, repo, db.GlobalRoomID, 30)
	ctx := context.Background()

	latest, err := repo.ListPage(ctx, db.GlobalRoomID, "", 20)
	require.NoError(t, err)
	assert.Equal(t, ids(all[10:]), ids(latest.Messages))
	require.NotNil(t, latest.NextCursor)
	assert.Equal(t, all[10].ID, *latest.NextCursor)

	older, err := repo.ListPage(ctx, db.GlobalRoomID, *latest.NextCursor, 20)
	require.NoError(t, err)
	assert.Equal(t, ids(all[:10]), ids(older.Messages))
	assert.Nil(t, older.NextCursor)
	assert.Equal(t, all[0].Content, older.Messages[0].Content)
	assert.True(t, older.Messages[0].CreatedAt.Equal(all[0].CreatedAt))
}

func TestListPageEqualTimestamps(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	repo.now = steppingClock(0)
	all := seed(t, repo, db.GlobalRoomID, 7)
	ctx := context.Background()

	var seen []string
	page, err := repo.ListPage(ctx, db.GlobalRoomID, "", 3)
	require.NoError(t, err)
	seen = append(ids(page.Messages), seen...)
	for page.NextCursor != nil {
		cursor := *page.NextCursor
		page, err = repo.ListPage(ctx, db.GlobalRoomID, cursor, 3)
		require.NoError(t, err)
		assert.NotContains(t, ids(page.Messages), cursor)
		assert.LessOrEqual(t, len(page.Messages), 3)
		seen = append(ids(page.Messages), seen...)
	}

	assert.Equal(t, ids(all), seen)
}

func TestListPageUnknownCursor(t *testing.T) {
	conn := newTestDB(t)
	_, err := conn.Exec(`INSERT INTO rooms (id, name) VALUES ('cs101', 'Intro to CS')`)
	require.NoError(t, err)
	repo := NewMessageRepo(conn)
	other := seed(t, repo, "cs101", 1)

	_, err = repo.ListPage(context.Background(), db.GlobalRoomID, "missing", 10)
	assert.ErrorIs(t, err, ErrCursorNotFound)

	_, err = repo.ListPage(context.Background(), db.GlobalRoomID, other[0].ID, 10)
	assert.ErrorIs(t, err, ErrCursorNotFound)
}

func TestCreateIsIdempotentPerSender(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	ctx := context.Background()
	in := models.NewMessage{RoomID: db.GlobalRoomID, SenderID: "u1", SenderName: "Ada", Content: "hi", ClientKey: "draft-1"}

	first, created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	in.SenderID = "u2"
	other, created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	page, err := repo.ListPage(ctx, db.GlobalRoomID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
}

func TestCreateRejectsUnknownRoom(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	_, _, err := repo.Create(context.Background(), models.NewMessage{RoomID: "ghost", SenderID: "u1", SenderName: "Ada", Content: "x"})
	assert.Error(t, err)
}

func TestGetMessage(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	stored := seed(t, repo, db.GlobalRoomID, 1)[0]

	got, err := repo.GetMessage(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "Ada", got.SenderName)

	_, err = repo.GetMessage(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestRoomRepo(t *testing.T) {
	repo := NewRoomRepo(newTestDB(t))
	ctx := context.Background()

	room, err := repo.GetRoom(ctx, db.GlobalRoomID)
	require.NoError(t, err)
	assert.Equal(t, db.GlobalRoomName, room.Name)

	_, err = repo.GetRoom(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.NoError(t, repo.EnsureMember(ctx, db.GlobalRoomID, "u1"))
	require.NoError(t, repo.EnsureMember(ctx, db.GlobalRoomID, "u1"))

	var members int
	require.NoError(t, repo.db.GetContext(ctx, &members, `SELECT COUNT(*) FROM room_members WHERE room_id = ? AND user_id = ?`, db.GlobalRoomID, "u1"))
	assert.Equal(t, 1, members)
}

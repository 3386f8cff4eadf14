package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"course-chat/internal/auth"
	"course-chat/internal/models"
	"course-chat/pkg/chatapi"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, roomID, cursor string, limit int) (chatapi.Page, error) {
	args := m.Called(ctx, roomID, cursor, limit)
	var page chatapi.Page
	if val := args.Get(0); val != nil {
		page = val.(chatapi.Page)
	}
	return page, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (chatapi.Message, error) {
	args := m.Called(ctx, messageID)
	var msg chatapi.Message
	if val := args.Get(0); val != nil {
		msg = val.(chatapi.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.NewMessage) (chatapi.Message, bool, error) {
	args := m.Called(ctx, msg)
	var stored chatapi.Message
	if val := args.Get(0); val != nil {
		stored = val.(chatapi.Message)
	}
	return stored, args.Bool(1), args.Error(2)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) EnsureMember(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Publish(ctx context.Context, msg chatapi.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) Validate(token string) (auth.Identity, error) {
	args := m.Called(token)
	var id auth.Identity
	if val := args.Get(0); val != nil {
		id = val.(auth.Identity)
	}
	return id, args.Error(1)
}

// PublisherMock satisfies both the event bus and audit publisher interfaces.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

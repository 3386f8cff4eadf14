// Package fanout delivers newly stored messages to push subscribers.
package fanout

import (
	"context"

	"course-chat/pkg/chatapi"
)

// Notifier announces a stored message to the subscribers of its room.
type Notifier interface {
	Publish(ctx context.Context, msg chatapi.Message) error
}

// Broadcaster is the local subscriber registry.
type Broadcaster interface {
	BroadcastMessage(roomID string, msg chatapi.Message)
}

// HubNotifier delivers to the subscribers connected to this instance only.
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Publish(ctx context.Context, msg chatapi.Message) error {
	n.hub.BroadcastMessage(msg.RoomID, msg)
	return nil
}

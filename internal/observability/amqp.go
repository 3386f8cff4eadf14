package observability

import (
	"context"
	"sync"
)

// Publisher sends events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var bus struct {
	mu        sync.RWMutex
	publisher Publisher
}

// SetPublisher installs the process-wide event publisher. nil disables publishing.
func SetPublisher(publisher Publisher) {
	bus.mu.Lock()
	bus.publisher = publisher
	bus.mu.Unlock()
}

// PublishEvent sends event through the installed publisher. Without one it
// is a no-op.
func PublishEvent(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	bus.mu.RLock()
	publisher := bus.publisher
	bus.mu.RUnlock()
	if publisher == nil {
		return nil
	}

	if err := publisher.Publish(ctx, routingKey, event, headers); err != nil {
		IncAMQPPublishError()
		return err
	}
	return nil
}

package syncengine

import (
	"context"
	"sync/atomic"
	"time"

	"course-chat/pkg/chatapi"
)

// Delivery feeds new messages of one room to a callback, through the push
// channel while it is connected and through a poll ticker otherwise. The
// two are never active at the same time.
type Delivery struct {
	roomID string
	cancel context.CancelFunc
	done   chan struct{}
	push   atomic.Bool
}

// StartDelivery begins delivering messages of roomID. onMessages receives
// pushed rows one at a time and every successful poll page, even an empty
// one; callers merge them.
// onErr receives poll failures and push disconnects. Both are called from
// the delivery goroutine.
func (e *Engine) StartDelivery(ctx context.Context, roomID string, limit int, onMessages func([]chatapi.Message), onErr func(error)) *Delivery {
	ctx, cancel := context.WithCancel(ctx)
	d := &Delivery{
		roomID: roomID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if onErr == nil {
		onErr = func(error) {}
	}

	go func() {
		defer close(d.done)
		if e.push != nil && !e.runPush(ctx, d, limit, onMessages, onErr) {
			return
		}
		e.runPoll(ctx, roomID, limit, onMessages, onErr)
	}()
	return d
}

// runPush holds the push subscription until it drops or ctx ends. Once
// connected it reads the latest page once and hands it to onMessages. It
// reports whether delivery should continue by polling.
func (e *Engine) runPush(ctx context.Context, d *Delivery, limit int, onMessages func([]chatapi.Message), onErr func(error)) bool {
	log := e.logger.With().Str("room_id", d.roomID).Logger()

	sub, err := e.Subscribe(ctx, d.roomID, func(m chatapi.Message) {
		onMessages([]chatapi.Message{m})
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn().Err(err).Msg("push unavailable, polling")
		return true
	}

	d.push.Store(true)
	log.Debug().Msg("push connected")
	defer d.push.Store(false)

	// Rows stored between the caller's first read and the subscription
	// becoming live are only reachable by reading again.
	page, err := e.RefreshLatest(ctx, d.roomID, limit)
	switch {
	case ctx.Err() != nil:
		_ = sub.Close()
		return false
	case err != nil:
		log.Warn().Err(err).Msg("push catch-up read failed")
		onErr(err)
	default:
		onMessages(page.Messages)
	}

	select {
	case <-ctx.Done():
		_ = sub.Close()
		return false
	case <-sub.Done():
		_ = sub.Close()
		if ctx.Err() != nil {
			return false
		}
		if err := sub.Err(); err != nil {
			onErr(err)
		}
		log.Warn().Err(sub.Err()).Msg("push dropped, polling")
		return true
	}
}

func (e *Engine) runPoll(ctx context.Context, roomID string, limit int, onMessages func([]chatapi.Message), onErr func(error)) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			page, err := e.RefreshLatest(ctx, roomID, limit)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				e.logger.Debug().Err(err).Str("room_id", roomID).Msg("poll refresh failed")
				onErr(err)
				continue
			}
			onMessages(page.Messages)
		}
	}
}

// PushActive reports whether the push channel is currently delivering.
func (d *Delivery) PushActive() bool {
	return d.push.Load()
}

// RoomID returns the room being delivered.
func (d *Delivery) RoomID() string {
	return d.roomID
}

// Done is closed when the delivery goroutine has exited.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Cancel asks delivery to end without waiting for the goroutine to exit.
func (d *Delivery) Cancel() {
	d.cancel()
}

// Stop cancels delivery and waits for the goroutine and any subscription
// to shut down. Calling it from onMessages or onErr blocks forever; use
// Cancel there.
func (d *Delivery) Stop() {
	d.cancel()
	<-d.done
}

package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/logger"
)

// Channel is the pub/sub channel carrying limit changes for one event
func Channel(eventID string) string {
	return "number_limits_changes:" + eventID
}

// Notifier broadcasts "limits of this event changed" over redis pub/sub.
// The payload is informational only, subscribers always re-read the store.
type Notifier struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewNotifier(client *redis.Client, log *logger.Logger) *Notifier {
	return &Notifier{Client: client, Logger: log}
}

// Publish is best effort, failures are logged and dropped
func (n *Notifier) Publish(ctx context.Context, eventID, reason string) {
	if n == nil || n.Client == nil {
		return
	}
	if err := n.Client.Publish(ctx, Channel(eventID), reason).Err(); err != nil {
		n.Logger.Warn("REDIS", fmt.Sprintf("failed to publish limit change for event %s: %v", eventID, err))
	}
}

// Subscribe calls onChange for every change published for eventID until the
// returned unsubscribe func is called or ctx ends. The subscription is
// confirmed before Subscribe returns.
func (n *Notifier) Subscribe(ctx context.Context, eventID string, onChange func(reason string)) (func(), error) {
	if n == nil || n.Client == nil {
		return func() {}, fmt.Errorf("notifier has no redis client")
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := n.Client.Subscribe(subCtx, Channel(eventID))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return func() {}, fmt.Errorf("subscribe to %s: %w", Channel(eventID), err)
	}
	n.Logger.Info("REDIS", fmt.Sprintf("Subscribed to limit changes for event %s", eventID))

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			pubsub.Close()
			n.Logger.Info("REDIS", fmt.Sprintf("Unsubscribed from limit changes for event %s", eventID))
		})
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				unsubscribe()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.deliver(eventID, msg.Payload, onChange)
			}
		}
	}()

	return unsubscribe, nil
}

func (n *Notifier) deliver(eventID, payload string, onChange func(string)) {
	defer func() {
		if r := recover(); r != nil {
			n.Logger.Error("LIMITS", fmt.Sprintf("limit change handler for event %s panicked: %v", eventID, r))
		}
	}()
	onChange(payload)
}

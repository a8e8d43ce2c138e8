package redis

import (
	"context"
	"strings"
	"sync"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const changeChannelPrefix = "gymkana:changes:"

// Notifier implements app.Notifier on Redis pub/sub so that change
// signals reach viewers connected to other instances of the service.
// Redis pub/sub is fire-and-forget; an instance that is momentarily
// disconnected misses signals, which the re-fetch protocol tolerates and
// the next signal repairs.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Publish(ctx context.Context, change domain.Change) error {
	return n.client.Publish(ctx, changeChannelPrefix+string(change.Kind), change.Scope).Err()
}

func (n *Notifier) Subscribe(kinds ...domain.RecordKind) (app.Subscription, error) {
	channels := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		channels = append(channels, changeChannelPrefix+string(kind))
	}

	// Subscription lifetime is governed by Close, not by a caller context.
	pubsub := n.client.Subscribe(context.Background(), channels...)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan domain.Change, 8),
	}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan domain.Change
	once   sync.Once
}

// pump forwards pub/sub messages as Change signals, coalescing for slow
// consumers. The loop ends when Close shuts the PubSub down.
func (s *subscription) pump() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		change := domain.Change{
			Kind:  domain.RecordKind(strings.TrimPrefix(msg.Channel, changeChannelPrefix)),
			Scope: msg.Payload,
		}
		select {
		case s.ch <- change:
		default:
			select {
			case <-s.ch:
			default:
			}
			s.ch <- change
		}
	}
}

func (s *subscription) C() <-chan domain.Change { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

package memory

import (
	"context"
	"sync"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/domain"
)

// Notifier is an in-process change-notification hub implementing
// app.Notifier. Signals are fanned out to every subscriber interested in
// the record kind; a slow subscriber loses stale signals, never blocks
// the publisher.
type Notifier struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[*subscription]struct{})}
}

func (n *Notifier) Publish(_ context.Context, change domain.Change) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for sub := range n.subs {
		if _, ok := sub.kinds[change.Kind]; !ok {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			// Coalesce: drop the oldest pending signal so the consumer
			// still gets a re-fetch trigger for the latest state.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- change
		}
	}
	return nil
}

func (n *Notifier) Subscribe(kinds ...domain.RecordKind) (app.Subscription, error) {
	kindSet := make(map[domain.RecordKind]struct{}, len(kinds))
	for _, kind := range kinds {
		kindSet[kind] = struct{}{}
	}
	sub := &subscription{
		hub:   n,
		kinds: kindSet,
		ch:    make(chan domain.Change, 8),
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub, nil
}

type subscription struct {
	hub   *Notifier
	kinds map[domain.RecordKind]struct{}
	ch    chan domain.Change
	once  sync.Once
}

func (s *subscription) C() <-chan domain.Change { return s.ch }

// Close detaches the subscription and closes its channel. Holding the
// hub's write lock here excludes in-flight Publish sends, so closing the
// channel is safe.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

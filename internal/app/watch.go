package app

import (
	"context"
	"sync"

	"gymkana-live-service/internal/domain"
)

// WatchRanking returns a channel of ranking snapshots for an event. The
// first snapshot is sent immediately; afterwards every response or vote
// change triggers a full recomputation from the store. Duplicate or
// out-of-order notifications are harmless because each one is only a
// re-fetch trigger.
//
// The caller must invoke the returned cancel function to release the
// subscription; cancel is idempotent.
func (s *LiveService) WatchRanking(ctx context.Context, eventID string) (<-chan domain.RankingSnapshot, func(), error) {
	sub, err := s.notifier.Subscribe(domain.KindResponse, domain.KindVote)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.RankingSnapshot, 1)
	refresh := func(prev domain.RankingSnapshot) domain.RankingSnapshot {
		scores, err := s.ComputeRankings(ctx, eventID)
		if err != nil {
			// Keep the last good scores and mark the snapshot degraded
			// instead of showing an empty board on a failed read.
			prev.Degraded = true
			prev.UpdatedAt = s.now()
			return prev
		}
		return domain.RankingSnapshot{EventID: eventID, Scores: scores, UpdatedAt: s.now()}
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.Close()
			close(done)
		})
	}

	go func() {
		defer close(out)
		snapshot := refresh(domain.RankingSnapshot{EventID: eventID})
		sendLatest(out, snapshot)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				snapshot = refresh(snapshot)
				sendLatest(out, snapshot)
			}
		}
	}()

	return out, cancel, nil
}

// WatchFeed is WatchRanking's counterpart for one challenge's response
// feed. Response changes scoped to other challenges are ignored; vote
// changes always trigger a re-fetch since a vote signal does not say
// which feed it lands in.
func (s *LiveService) WatchFeed(ctx context.Context, challengeID string) (<-chan domain.FeedSnapshot, func(), error) {
	sub, err := s.notifier.Subscribe(domain.KindResponse, domain.KindVote)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.FeedSnapshot, 1)
	refresh := func(prev domain.FeedSnapshot) domain.FeedSnapshot {
		views, err := s.ProjectFeed(ctx, challengeID)
		if err != nil {
			prev.Degraded = true
			prev.UpdatedAt = s.now()
			return prev
		}
		return domain.FeedSnapshot{ChallengeID: challengeID, Responses: views, UpdatedAt: s.now()}
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.Close()
			close(done)
		})
	}

	go func() {
		defer close(out)
		snapshot := refresh(domain.FeedSnapshot{ChallengeID: challengeID})
		sendLatest(out, snapshot)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case change, ok := <-sub.C():
				if !ok {
					return
				}
				if change.Kind == domain.KindResponse && change.Scope != "" && change.Scope != challengeID {
					continue
				}
				snapshot = refresh(snapshot)
				sendLatest(out, snapshot)
			}
		}
	}()

	return out, cancel, nil
}

// sendLatest delivers v without blocking on a slow consumer: if the
// buffer is full the stale snapshot is dropped first. Observers only
// ever need the newest state.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

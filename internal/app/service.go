package app

import (
	"context"
	"time"

	"gymkana-live-service/internal/domain"
)

// Store abstracts the shared data store holding teams, challenges,
// responses and votes. It is the single source of truth; every displayed
// number is derived from a fresh read, never from a local mutation.
type Store interface {
	InsertResponse(ctx context.Context, response domain.Response) (domain.Response, error)
	// InsertVote must enforce uniqueness of (response_id, voter_name) and
	// return domain.ErrDuplicateVote on a violation. It keeps the
	// response's votes_count in step with the insert.
	InsertVote(ctx context.Context, vote domain.Vote) (domain.Vote, error)
	TeamsByEvent(ctx context.Context, eventID string) ([]domain.Team, error)
	TeamsByIDs(ctx context.Context, ids []string) (map[string]domain.Team, error)
	ResponsesByEvent(ctx context.Context, eventID string) ([]domain.Response, error)
	ResponsesByChallenge(ctx context.Context, challengeID string) ([]domain.Response, error)
	ResponseByID(ctx context.Context, id string) (domain.Response, error)
	ChallengeByID(ctx context.Context, id string) (domain.Challenge, error)
}

// ChallengeCatalog serves an event's challenge list (from cache/backing store).
type ChallengeCatalog interface {
	ChallengesByEvent(ctx context.Context, eventID string) ([]domain.Challenge, error)
}

// Notifier fans out change notifications to interested subscribers.
// Delivery is at-least-once and unordered across kinds; consumers treat
// every signal as "re-fetch now".
type Notifier interface {
	Publish(ctx context.Context, change domain.Change) error
	Subscribe(kinds ...domain.RecordKind) (Subscription, error)
}

// Subscription delivers change signals until closed. Close is idempotent
// and must be called on every scope transition to avoid leaks.
type Subscription interface {
	C() <-chan domain.Change
	Close()
}

// LiveService contains the live scoring use cases: vote recording,
// ranking aggregation, feed projection and the watch loops that keep
// connected viewers in step with the store.
type LiveService struct {
	store    Store
	catalog  ChallengeCatalog
	notifier Notifier
	policy   domain.CompletionPolicy
	now      func() time.Time
}

func NewLiveService(store Store, catalog ChallengeCatalog, notifier Notifier) *LiveService {
	return NewLiveServiceWithPolicy(store, catalog, notifier, domain.DefaultCompletionPolicy)
}

// NewLiveServiceWithPolicy selects how repeat responses to one challenge
// are credited; useful for events that forbid re-submission.
func NewLiveServiceWithPolicy(store Store, catalog ChallengeCatalog, notifier Notifier, policy domain.CompletionPolicy) *LiveService {
	return &LiveService{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// Challenges lists an event's challenges in display order.
func (s *LiveService) Challenges(ctx context.Context, eventID string) ([]domain.Challenge, error) {
	return s.catalog.ChallengesByEvent(ctx, eventID)
}

// publish is best-effort: a dropped signal only delays convergence until
// the next one, since observers always re-read true state.
func (s *LiveService) publish(ctx context.Context, change domain.Change) {
	_ = s.notifier.Publish(ctx, change)
}

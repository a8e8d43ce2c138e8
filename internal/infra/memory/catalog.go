package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gymkana-live-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches an event's challenges from a backing store.
type CatalogLoader interface {
	LoadChallenges(ctx context.Context, eventID string) ([]domain.Challenge, error)
}

// Catalog caches challenge lists with TTL to avoid re-reading immutable
// data on every ranking recomputation.
type Catalog struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedChallenges
}

type cachedChallenges struct {
	challenges []domain.Challenge
	expiresAt  time.Time
}

func NewCatalog(loader CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedChallenges),
	}
}

func (c *Catalog) ChallengesByEvent(ctx context.Context, eventID string) ([]domain.Challenge, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[eventID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.challenges, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(eventID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[eventID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.challenges, nil
		}
		c.mu.RUnlock()

		challenges, err := c.loader.LoadChallenges(ctx, eventID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[eventID] = cachedChallenges{
			challenges: challenges,
			expiresAt:  now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return challenges, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Challenge), nil
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"gymkana-live-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches an event's challenges from a backing store.
type CatalogLoader interface {
	LoadChallenges(ctx context.Context, eventID string) ([]domain.Challenge, error)
}

// Catalog caches challenge lists in Redis (hash per event, one field per
// challenge) and falls back to a loader on cache miss. Challenges are
// immutable for this service, so a TTL-bounded cache cannot serve wrong
// point values, only slightly stale additions.
// Layout: HSET gymkana:catalog:{eventID} {challengeID} {challenge JSON}
type Catalog struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalog(client *redis.Client, loader CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Catalog) ChallengesByEvent(ctx context.Context, eventID string) ([]domain.Challenge, error) {
	key := c.key(eventID)

	cached, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return decodeChallenges(cached)
	}

	result, err, _ := c.sf.Do(eventID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return decodeChallengesAny(cached)
		}

		challenges, err := c.loader.LoadChallenges(ctx, eventID)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, challenge := range challenges {
			data, err := json.Marshal(challenge)
			if err != nil {
				continue
			}
			pipe.HSet(ctx, key, challenge.ID, string(data))
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return challenges, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Challenge), nil
}

func (c *Catalog) key(eventID string) string {
	return "gymkana:catalog:" + eventID
}

func decodeChallenges(cached map[string]string) ([]domain.Challenge, error) {
	challenges := make([]domain.Challenge, 0, len(cached))
	for _, raw := range cached {
		var challenge domain.Challenge
		if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
			continue
		}
		challenges = append(challenges, challenge)
	}
	sort.Slice(challenges, func(i, j int) bool {
		if challenges[i].Order != challenges[j].Order {
			return challenges[i].Order < challenges[j].Order
		}
		return challenges[i].ID < challenges[j].ID
	})
	return challenges, nil
}

func decodeChallengesAny(cached map[string]string) (interface{}, error) {
	challenges, err := decodeChallenges(cached)
	if err != nil {
		return nil, err
	}
	return challenges, nil
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

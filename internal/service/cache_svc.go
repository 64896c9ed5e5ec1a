package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
)

// TallyCacheTTL bounds how stale a cached result can get even without an
// explicit recompute trigger.
const TallyCacheTTL = 15 * time.Minute

// CacheService provides a Redis cache-aside layer for computed tally
// results. The ballot table stays the source of truth.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService creates a new CacheService. If redisURL is empty or the
// connection fails, caching degrades to a no-op rather than failing startup.
func NewCacheService(redisURL string) *CacheService {
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, caching disabled")
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		return &CacheService{}
	}

	log.Info().Msg("redis: connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

// GetTally retrieves a cached tally result. Returns nil when not cached or
// caching is disabled.
func (c *CacheService) GetTally(ctx context.Context, electionID uuid.UUID) (*model.TallyResult, error) {
	if c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, tallyKey(electionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result model.TallyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetTally stores a computed tally result.
func (c *CacheService) SetTally(ctx context.Context, electionID uuid.UUID, result *model.TallyResult) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, tallyKey(electionID), b, TallyCacheTTL).Err()
}

// InvalidateTally drops a cached result (explicit recompute trigger).
func (c *CacheService) InvalidateTally(ctx context.Context, electionID uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, tallyKey(electionID)).Err()
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func tallyKey(electionID uuid.UUID) string {
	return fmt.Sprintf("tally:%s", electionID)
}

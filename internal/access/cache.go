package access

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

const decisionKeyPrefix = "medisecure:decision:"

// DecisionCache memoizes the latest grant kind per (resource, grantee) pair.
// Cache failures degrade to store lookups, never to wrong answers.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewDecisionCache creates the cache, or returns nil when caching is
// disabled in configuration.
func NewDecisionCache(cfg *config.RedisConfig, log *logger.Logger) *DecisionCache {
	if !cfg.Enabled {
		return nil
	}

	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	log.WithField("addr", cfg.Addr).Info("Decision cache enabled")
	return &DecisionCache{client: client, ttl: ttl, logger: log}
}

func decisionKey(resourceID, grantee string) string {
	return decisionKeyPrefix + resourceID + ":" + grantee
}

// GetKind returns the cached latest kind for the pair, if present.
func (c *DecisionCache) GetKind(ctx context.Context, resourceID, grantee string) (types.GrantKind, bool) {
	if c == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, decisionKey(resourceID, grantee)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("Decision cache read failed")
		}
		return "", false
	}
	return types.GrantKind(val), true
}

// SetKind caches the latest kind for the pair.
func (c *DecisionCache) SetKind(ctx context.Context, resourceID, grantee string, kind types.GrantKind) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, decisionKey(resourceID, grantee), string(kind), c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Decision cache write failed")
	}
}

// Invalidate drops the cached kind for the pair.
func (c *DecisionCache) Invalidate(ctx context.Context, resourceID, grantee string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, decisionKey(resourceID, grantee)).Err(); err != nil {
		c.logger.WithError(err).Debug("Decision cache invalidation failed")
	}
}

// Close releases the redis connection.
func (c *DecisionCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

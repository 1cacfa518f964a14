package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"

	"hookrelay/internal/logger"
	"hookrelay/pkg/metrics"
)

const customerCachePrefix = "processor:customer:"

// CachedClient keeps customer lookups in Redis for a short TTL. Bursts of
// events for one customer then cost a single API call, which keeps the
// service under the processor's rate limit. Cache failures fall through
// to the wrapped client.
type CachedClient struct {
	Client
	redis  redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedClient(inner Client, rdb redis.UniversalClient, ttl time.Duration, log logger.Logger) *CachedClient {
	return &CachedClient{Client: inner, redis: rdb, ttl: ttl, logger: log}
}

func (c *CachedClient) Customer(ctx context.Context, id string) (*stripe.Customer, error) {
	key := customerCachePrefix + id

	val, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cust stripe.Customer
		if jsonErr := json.Unmarshal(val, &cust); jsonErr == nil {
			metrics.IncProcessorRequest("customer.get", "cache_hit")
			return &cust, nil
		}
		c.logger.WarnwCtx(ctx, "Discarding undecodable cached customer", "customer_id", id)
	case err != redis.Nil:
		c.logger.WarnwCtx(ctx, "Customer cache read failed", "customer_id", id, "error", err)
	}

	cust, err := c.Client.Customer(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, cust); err != nil {
		c.logger.WarnwCtx(ctx, "Customer cache write failed", "customer_id", id, "error", err)
	}
	return cust, nil
}

func (c *CachedClient) store(ctx context.Context, key string, cust *stripe.Customer) error {
	data, err := json.Marshal(cust)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}

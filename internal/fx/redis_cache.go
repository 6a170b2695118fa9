package fx

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "fx:rate:"

// CachedRates decorates a RateSource with a Redis cache. Cache failures
// degrade to the upstream source; they are logged, never surfaced.
type CachedRates struct {
	client *redis.Client
	source RateSource
	ttl    time.Duration
}

func NewCachedRates(addr string, source RateSource, ttl time.Duration) *CachedRates {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &CachedRates{
		client: rdb,
		source: source,
		ttl:    ttl,
	}
}

func (c *CachedRates) RateToBase(ctx context.Context, currency string) (float64, error) {
	key := rateKeyPrefix + strings.ToUpper(strings.TrimSpace(currency))

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		if rate, perr := strconv.ParseFloat(val, 64); perr == nil {
			return rate, nil
		}
		slog.WarnContext(ctx, "Discarding unparsable cached rate", "key", key, "value", val)
	}

	rate, err := c.source.RateToBase(ctx, currency)
	if err != nil {
		return 0, err
	}

	val := strconv.FormatFloat(rate, 'f', -1, 64)
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to cache fx rate", "key", key, "error", err)
	}

	return rate, nil
}

func (c *CachedRates) Close() error {
	return c.client.Close()
}

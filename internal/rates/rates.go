// Package rates supplies CLP exchange rates, optionally fronted by a
// shared Redis cache so several processes reuse the same lookups.
package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"finansheet/internal/core"
	"finansheet/internal/log"
)

// CachedProvider caches another provider's rates in Redis. A cache miss
// falls through to the source and the result is stored with a TTL; cache
// failures are logged and never surface to the caller.
type CachedProvider struct {
	client *redis.Client
	source core.RateProvider
	ttl    time.Duration
	logger *log.Logger
}

func NewCachedProvider(addr, password string, db int, source core.RateProvider, ttl time.Duration, logger *log.Logger) *CachedProvider {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &CachedProvider{
		client: rdb,
		source: source,
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentRates),
	}
}

func (p *CachedProvider) Rate(currency core.Currency, date time.Time) (float64, error) {
	ctx := context.Background()
	key := rateKey(currency, date)

	if val, err := p.client.Get(ctx, key).Result(); err == nil {
		if rate, err := strconv.ParseFloat(val, 64); err == nil && rate > 0 {
			return rate, nil
		}
	} else if err != redis.Nil {
		p.logger.Warn("Rate cache read failed", log.FieldError, err.Error(), "key", key)
	}

	rate, err := p.source.Rate(currency, date)
	if err != nil {
		return 0, err
	}

	if err := p.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), p.ttl).Err(); err != nil {
		p.logger.Warn("Rate cache write failed", log.FieldError, err.Error(), "key", key)
	}
	return rate, nil
}

func (p *CachedProvider) Close() error {
	return p.client.Close()
}

func rateKey(currency core.Currency, date time.Time) string {
	return fmt.Sprintf("fx:%s:%s", currency, date.Format("2006-01-02"))
}

package fx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
)

const rateKeyPrefix = "fx:rate:v2:"

// Cache holds recently looked-up rates. Implementations must be safe for
// concurrent use. A miss is reported as ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, from, to string) (r ledger.FxRate, ok bool, err error)
	// Set stores r unless the cached entry carries a newer UpdatedAt.
	Set(ctx context.Context, r ledger.FxRate) error
	Delete(ctx context.Context, from, to string) error
}

// setIfNotOlder writes the hash only when the incoming version is at least
// the cached one, so a lookup that read a superseded row cannot overwrite
// the entry written by the upsert that superseded it.
//
// KEYS[1] rate key
// ARGV[1] rate, ARGV[2] version (unix micros), ARGV[3] ttl in ms (0 keeps no expiry)
const setIfNotOlder = `
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'rate', ARGV[1], 'version', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`

// RedisCache stores each pair as a hash {rate, version} under
// fx:rate:v2:FROM:TO, where version is the row's updated_at in unix micros.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	set    *redis.Script
}

// NewRedisCache returns a cache whose entries expire after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, set: redis.NewScript(setIfNotOlder)}
}

func rateKey(from, to string) string {
	return rateKeyPrefix + from + ":" + to
}

func (c *RedisCache) Get(ctx context.Context, from, to string) (ledger.FxRate, bool, error) {
	vals, err := c.client.HMGet(ctx, rateKey(from, to), "rate", "version").Result()
	if err != nil {
		return ledger.FxRate{}, false, err
	}
	rawRate, ok := vals[0].(string)
	if !ok {
		return ledger.FxRate{}, false, nil
	}
	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return ledger.FxRate{}, false, fmt.Errorf("decode cached rate %s/%s: %w", from, to, err)
	}
	r := ledger.FxRate{From: from, To: to, Rate: rate}
	if rawVersion, ok := vals[1].(string); ok {
		micros, err := strconv.ParseInt(rawVersion, 10, 64)
		if err != nil {
			return ledger.FxRate{}, false, fmt.Errorf("decode cached version %s/%s: %w", from, to, err)
		}
		r.UpdatedAt = time.UnixMicro(micros).UTC()
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, r ledger.FxRate) error {
	return c.set.Run(ctx, c.client, []string{rateKey(r.From, r.To)},
		r.Rate.String(), r.UpdatedAt.UnixMicro(), c.ttl.Milliseconds()).Err()
}

func (c *RedisCache) Delete(ctx context.Context, from, to string) error {
	return c.client.Del(ctx, rateKey(from, to)).Err()
}

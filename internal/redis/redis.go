package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DropsChannel carries settled drops between server instances.
	DropsChannel = "plinko_drops"
	// StatsKeyPrefix prefixes the global drop counters.
	StatsKeyPrefix = "plinko:stats:"
)

// Connect establishes a connection to Redis. An empty URL disables redis:
// the client is nil and every helper below becomes a no-op.
func Connect(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Publish JSON-encodes v onto channel.
func Publish(ctx context.Context, rdb *redis.Client, channel string, v interface{}) error {
	if rdb == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	return rdb.Publish(ctx, channel, data).Err()
}

// IncrStats bumps each named counter by one in a single round trip.
func IncrStats(ctx context.Context, rdb *redis.Client, names ...string) error {
	if rdb == nil || len(names) == 0 {
		return nil
	}
	pipe := rdb.TxPipeline()
	for _, n := range names {
		pipe.Incr(ctx, StatsKeyPrefix+n)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ReadStats returns the named counters, zero for missing keys.
func ReadStats(ctx context.Context, rdb *redis.Client, names ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for _, n := range names {
		out[n] = 0
	}
	if rdb == nil || len(names) == 0 {
		return out, nil
	}

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = StatsKeyPrefix + n
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscan(s, &n); err == nil {
			out[names[i]] = n
		}
	}
	return out, nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/redis/go-redis/v9"
)

// WallChannel carries live wall events between server instances.
const WallChannel = "wall:events"

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping reports whether Redis is reachable.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Pub/Sub

// PublishWallEvent fans a wall event out to every subscribed instance.
func (r *RedisClient) PublishWallEvent(ctx context.Context, event models.WSMessage) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, WallChannel, data).Err()
}

// SubscribeToWall subscribes to the wall event channel
func (r *RedisClient) SubscribeToWall(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, WallChannel)
}

// Rate limiting

const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(vals[1])
local last = tonumber(vals[2])
if tokens == nil then tokens = burst end
if last == nil then last = now end
local delta = math.max(0, now - last)
local new_tokens = math.min(burst, tokens + (delta * rate / 1000))
local allowed = 0
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	allowed = 1
end
redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
redis.call('PEXPIRE', key, math.ceil(burst / rate * 1000) + 1000)
return allowed
`

var tokenBucket = redis.NewScript(tokenBucketScript)

// AllowAction implements a Redis-backed token bucket per (action, subject).
// ratePerSec may be fractional; burst is the bucket size.
func (r *RedisClient) AllowAction(ctx context.Context, action, subject string, ratePerSec float64, burst int) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", action, subject)
	now := time.Now().UnixNano() / int64(time.Millisecond)

	res, err := tokenBucket.Run(ctx, r.client, []string{key}, ratePerSec, burst, now).Result()
	if err != nil {
		return false, err
	}
	// Eval returns int64 (1 or 0)
	switch v := res.(type) {
	case int64:
		return v == 1, nil
	default:
		return false, fmt.Errorf("unexpected result from rate limiter: %T %v", res, res)
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket lives in one hash: "tokens" (fractional) and "ts" (ms, Redis
// clock). Refill, take and write-back happen in one script call so concurrent
// API replicas see a single bucket. Tokens come back as a string because
// Redis truncates Lua numbers to integers.
const tokenBucketScript = `
local rate, burst, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

var (
	errBucketNotConfigured = errors.New("token bucket not configured")
	errBucketKeyEmpty      = errors.New("token bucket key is empty")
	errBucketReply         = errors.New("unexpected token bucket reply")
)

type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket at key, refilled at rate tokens per
// second up to burst. A denied call still refreshes the bucket's expiry.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	switch {
	case t == nil || t.client == nil:
		return nil, errBucketNotConfigured
	case key == "":
		return nil, errBucketKeyEmpty
	case rate <= 0 || burst <= 0:
		return nil, fmt.Errorf("token bucket %s: rate %v and burst %d must be positive", key, rate, burst)
	}

	ttl := defaultBucketTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(reply) != 3 {
		return nil, errBucketReply
	}

	return bucketResult(replyInt(reply[0]) == 1, replyFloat(reply[1]), replyInt(reply[2]), rate, burst), nil
}

func bucketResult(allowed bool, remaining float64, tsMillis int64, rate float64, burst int) *RateLimitResult {
	var retryAfter time.Duration
	if !allowed && remaining < 1 {
		retryAfter = time.Duration((1 - remaining) / rate * float64(time.Second))
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      burst,
		Remaining:  int(remaining),
		ResetTime:  time.UnixMilli(tsMillis).Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

// defaultBucketTTL keeps an idle bucket around for twice the time it takes to
// refill from empty.
func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}

func replyInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

func replyFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case string:
		parsed, _ := strconv.ParseFloat(val, 64)
		return parsed
	default:
		return 0
	}
}

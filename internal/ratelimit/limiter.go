package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"media-webhook-processor/internal/telemetry"
)

// keyPrefix namespaces limiter state in Redis so submission buckets never
// collide with other keys sharing the instance.
const keyPrefix = "submit_rl:"

// SubmissionLimiter throttles webhook submissions per API key with a
// Redis-backed token bucket, so a single caller cannot monopolize admission
// slots when several instances sit behind one Redis. Each submission costs
// one token regardless of how many posts it carries.
type SubmissionLimiter struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// Decision is the outcome of one submission attempt. RetryAfter is only set
// on rejection and estimates how long until a token accrues.
type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// NewSubmissionLimiter constructs a limiter with the provided capacity and
// refill rate.
func NewSubmissionLimiter(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *SubmissionLimiter {
	return &SubmissionLimiter{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// AllowSubmission consumes one token from the caller's bucket. The limiter
// owns key derivation and the rejection counter so callers only act on the
// decision.
func (l *SubmissionLimiter) AllowSubmission(ctx context.Context, apiKey string) (Decision, error) {
	key := keyPrefix + apiKey
	now := time.Now().UnixMilli()
	res, err := submissionBucket.Run(ctx, l.client, []string{key}, l.capacity, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{}, fmt.Errorf("unexpected limiter reply %T", res)
	}

	d := Decision{Allowed: arr[0].(int64) == 1}
	switch v := arr[1].(type) {
	case string:
		d.Remaining, _ = strconv.ParseFloat(v, 64)
	case int64:
		d.Remaining = float64(v)
	case float64:
		d.Remaining = v
	}

	if !d.Allowed {
		telemetry.RateLimitRejects.Inc()
		if l.refill > 0 {
			deficit := 1 - d.Remaining
			if deficit < 0 {
				deficit = 0
			}
			d.RetryAfter = time.Duration(deficit / l.refill * float64(time.Second))
		}
	}
	return d, nil
}

// The bucket returns its token count as a string because Redis truncates
// Lua numbers to integers on reply, and the fractional part feeds the
// retry-after estimate.
var submissionBucket = redis.NewScript(`
local bucket = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_sec = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', bucket, 'tokens', 'refreshed_ms')
local tokens = tonumber(state[1])
local refreshed_ms = tonumber(state[2])
if tokens == nil then tokens = capacity end
if refreshed_ms == nil then refreshed_ms = now_ms end

local elapsed_ms = math.max(0, now_ms - refreshed_ms)
tokens = math.min(capacity, tokens + elapsed_ms / 1000 * refill_per_sec)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', bucket, 'tokens', tokens, 'refreshed_ms', now_ms)
if ttl_ms > 0 then redis.call('PEXPIRE', bucket, ttl_ms) end
return {allowed, tostring(tokens)}
`)

package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const registerAttemptScript = `
local start = redis.call("HGET", KEYS[1], "start")
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if (not start) or (now - tonumber(start) > window) then
  redis.call("HSET", KEYS[1], "start", ARGV[1], "count", 1)
  redis.call("PEXPIRE", KEYS[1], window + 1000)
  return 1
end
return redis.call("HINCRBY", KEYS[1], "count", 1)
`

var registerAttemptLua = redis.NewScript(registerAttemptScript)

// RedisAttemptLimiter shares windows across instances. Window start and count live
// in one hash per key and are updated by a single Lua script.
type RedisAttemptLimiter struct {
	redis  redis.UniversalClient
	prefix string
	cfg    AttemptConfig
}

func NewRedisAttemptLimiter(client redis.UniversalClient, prefix string, cfg AttemptConfig) *RedisAttemptLimiter {
	if prefix == "" {
		prefix = "idt:2fa"
	}
	return &RedisAttemptLimiter{redis: client, prefix: prefix, cfg: cfg.normalized()}
}

func (l *RedisAttemptLimiter) key(flow Flow, userID string) string {
	return l.prefix + ":" + string(flow) + ":" + userID
}

func (l *RedisAttemptLimiter) IsLimited(ctx context.Context, flow Flow, userID string) (bool, time.Duration, error) {
	vals, err := l.redis.HMGet(ctx, l.key(flow, userID), "start", "count").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ErrAttemptLimiterUnavailable, err)
	}

	w, ok := parseWindow(vals)
	if !ok {
		return false, 0, nil
	}
	now := l.cfg.Now()
	if w.expired(now, l.cfg.Window) || w.Count < l.cfg.MaxAttempts {
		return false, 0, nil
	}
	return true, w.retryAfter(now, l.cfg.Window), nil
}

func (l *RedisAttemptLimiter) RegisterFailure(ctx context.Context, flow Flow, userID string) error {
	err := registerAttemptLua.Run(
		ctx,
		l.redis,
		[]string{l.key(flow, userID)},
		l.cfg.Now().UnixMilli(),
		l.cfg.Window.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptLimiterUnavailable, err)
	}
	return nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, flow Flow, userID string) error {
	if err := l.redis.Del(ctx, l.key(flow, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptLimiterUnavailable, err)
	}
	return nil
}

func parseWindow(vals []interface{}) (Window, bool) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Window{}, false
	}
	startStr, _ := vals[0].(string)
	countStr, _ := vals[1].(string)
	startMs, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return Window{}, false
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return Window{}, false
	}
	return Window{Start: time.UnixMilli(startMs), Count: count}, true
}

package ratelimit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyWindow is the default sorted-set key holding admission stamps.
const RedisKeyWindow = "webreq:rate_limit:window"

// admitScript expires old stamps, counts the rest and conditionally adds a
// new one in a single atomic step. Scores are Redis server time in
// microseconds so that clients with skewed clocks share one timeline.
//
// KEYS[1] window key
// ARGV[1] period in microseconds
// ARGV[2] rate
// ARGV[3] unique member for this admission
var admitScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local period = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - period)
local count = redis.call('ZCARD', KEYS[1])
if count < rate then
	redis.call('ZADD', KEYS[1], now, ARGV[3])
	redis.call('PEXPIRE', KEYS[1], math.max(1, math.ceil(period / 1000)))
	return 1
end
return 0
`)

// RedisWindow is a sliding-log limiter whose window lives in Redis, so
// several processes can share one rate.
type RedisWindow struct {
	redis  redis.Scripter
	key    string
	cfg    Config
	logger zerolog.Logger
}

// NewRedisWindow creates a Redis-backed window under key. An empty key
// uses RedisKeyWindow.
func NewRedisWindow(client redis.Scripter, key string, cfg Config, logger zerolog.Logger) (*RedisWindow, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		key = RedisKeyWindow
	}
	return &RedisWindow{
		redis:  client,
		key:    key,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Admit runs the admission script.
func (w *RedisWindow) Admit(ctx context.Context) (bool, error) {
	res, err := admitScript.Run(ctx, w.redis, []string{w.key},
		w.cfg.Period.Microseconds(),
		w.cfg.Rate,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run admission script: %w", err)
	}

	w.logger.Debug().
		Str("key", w.key).
		Bool("granted", res == 1).
		Msg("Redis admission check")

	return res == 1, nil
}

// Config returns the window settings.
func (w *RedisWindow) Config() Config {
	return w.cfg
}

// Key returns the sorted-set key.
func (w *RedisWindow) Key() string {
	return w.key
}

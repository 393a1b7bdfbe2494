package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSessionAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// SessionLimiter acota cuantas sesiones de intake puede abrir un sujeto por ventana.
type SessionLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type redisSessionLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

func NewRedisSessionLimiter(client *redis.Client, window time.Duration, max int) SessionLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisSessionLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "intake:rl:",
	}
}

// Allow falla abierto: sin redis o con error de red deja pasar.
func (l *redisSessionLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()

	redisKey := l.prefix + normalizedKey
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisSessionAllowScript, []string{redisKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}

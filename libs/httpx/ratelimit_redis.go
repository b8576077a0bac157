package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a sliding-window limiter shared by every gateway
// replica. It keeps one counter per client per window and weights the
// previous window by how much of it still overlaps the last window length.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// KEYS[1] is the current window counter, KEYS[2] the previous one.
// ARGV[1] is the counter TTL in ms. Returns {current, previous}.
var slidingWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local previous = tonumber(redis.call("GET", KEYS[2]) or "0")
return {current, previous}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Second {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

type rateDecision struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

// Middleware rejects requests over the limit with 429. When Redis is down the
// request passes if failOpen is set, otherwise it gets a 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := rl.take(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "redis rate limiter error", "err", err)
				}
				if !failOpen {
					http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			if !d.allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.retryAfter.Seconds()))))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) take(ctx context.Context, client string) (rateDecision, error) {
	win := rl.window.Milliseconds()
	nowMS := rl.now().UnixMilli()
	idx := nowMS / win
	elapsed := nowMS % win

	keys := []string{rl.key(client, idx), rl.key(client, idx-1)}
	counts, err := slidingWindowScript.Run(ctx, rl.rdb, keys, 2*win).Int64Slice()
	if err != nil {
		return rateDecision{}, err
	}
	if len(counts) != 2 {
		return rateDecision{}, fmt.Errorf("unexpected rate limit script result %v", counts)
	}

	weight := float64(win-elapsed) / float64(win)
	used := float64(counts[1])*weight + float64(counts[0])
	d := rateDecision{
		allowed:   used <= float64(rl.limit),
		remaining: max(0, rl.limit-int(math.Ceil(used))),
	}
	if !d.allowed {
		d.retryAfter = max(time.Second, time.Duration(win-elapsed)*time.Millisecond)
	}
	return d, nil
}

func (rl *RedisRateLimiter) key(client string, idx int64) string {
	return rl.prefix + ":" + client + ":" + strconv.FormatInt(idx, 10)
}

package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/gt8004/gt8004-go/pkg/cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimit is the limiter's tunable state.
type RateLimit struct {
	Enabled bool
	RPS     float64
	Burst   int
	// CustomerHeader keys the distributed limit; callers without it are
	// keyed by remote IP.
	CustomerHeader string
}

// RateLimiter throttles callers of the agent. With Redis it enforces a
// per-caller limit shared by every replica; without Redis it falls back to
// one in-process token bucket.
type RateLimiter struct {
	distributed *redis_rate.Limiter
	log         zerolog.Logger

	mu    sync.RWMutex
	cfg   RateLimit
	local *rate.Limiter
}

// NewRateLimiter builds a limiter. rdb may be nil.
func NewRateLimiter(rdb *cache.Client, limit RateLimit, log zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		log:   log.With().Str("component", "ratelimit").Logger(),
		cfg:   limit,
		local: rate.NewLimiter(rate.Limit(limit.RPS), limit.Burst),
	}
	if rdb != nil {
		rl.distributed = redis_rate.NewLimiter(rdb.Redis())
	}
	return rl
}

// SetLimit applies new settings to subsequent requests.
func (rl *RateLimiter) SetLimit(limit RateLimit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cfg = limit
	rl.local.SetLimit(rate.Limit(limit.RPS))
	rl.local.SetBurst(limit.Burst)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.mu.RLock()
		cfg := rl.cfg
		rl.mu.RUnlock()

		if !cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter := rl.allow(r.Context(), callerKey(r, cfg.CustomerHeader), cfg)
		if !allowed {
			rateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string, cfg RateLimit) (bool, time.Duration) {
	if rl.distributed != nil {
		res, err := rl.distributed.Allow(ctx, "ratelimit:"+key, redis_rate.Limit{
			Rate:   int(math.Ceil(cfg.RPS)),
			Burst:  cfg.Burst,
			Period: time.Second,
		})
		if err == nil {
			return res.Allowed > 0, res.RetryAfter
		}
		// Fail open to the local bucket so a Redis outage does not take
		// the agent down.
		rl.log.Warn().Err(err).Msg("redis rate limit check failed")
	}

	res := rl.local.Reserve()
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// callerKey identifies the caller by the customer header, falling back to
// the remote IP.
func callerKey(r *http.Request, header string) string {
	if header != "" {
		if id := r.Header.Get(header); id != "" {
			return "customer:" + id
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

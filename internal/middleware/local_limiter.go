package middleware

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/iliyamo/foodshare/internal/config"
)

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocalLimiter is the in-process token bucket used when Redis is not
// configured.  Limits are per instance.  Idle buckets are dropped after
// cfg.TTL.
func NewLocalLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passThrough
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*localBucket)
		sweep   time.Time
	)
	take := func(key string, now time.Time) (*rate.Limiter, bool) {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(sweep) > cfg.TTL {
			for k, b := range buckets {
				if now.Sub(b.seen) > cfg.TTL {
					delete(buckets, k)
				}
			}
			sweep = now
		}
		b, ok := buckets[key]
		if !ok {
			b = &localBucket{lim: rate.NewLimiter(rate.Limit(cfg.PerSecond()), cfg.Capacity)}
			buckets[key] = b
		}
		b.seen = now
		return b.lim, b.lim.AllowN(now, 1)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			lim, ok := take(rateKey(cfg, c), now)
			if !ok {
				r := lim.ReserveN(now, 1)
				retry := r.DelayFrom(now)
				r.CancelAt(now)
				return tooMany(c, retry)
			}
			return next(c)
		}
	}
}

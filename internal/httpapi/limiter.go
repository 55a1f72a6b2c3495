package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/programme-lv/exerciser/internal/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var errTooManyRequests = errors.New("too many requests")

type RateLimiter struct {
	global  *rate.Limiter
	perIP   *xsync.MapOf[string, *rate.Limiter]
	ipRate  rate.Limit
	ipBurst int
}

// NewRateLimiter allows rps requests per second overall and per client IP,
// with bursts of twice that.
func NewRateLimiter(globalRPS, perIPRPS float64, perIPBurst int) *RateLimiter {
	burst := int(globalRPS) * 2
	if burst < 1 {
		burst = 1
	}
	if perIPBurst < 1 {
		perIPBurst = 1
	}
	return &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRPS), burst),
		perIP:   xsync.NewMapOf[string, *rate.Limiter](),
		ipRate:  rate.Limit(perIPRPS),
		ipBurst: perIPBurst,
	}
}

func (rl *RateLimiter) ipLimiter(ip string) *rate.Limiter {
	l, _ := rl.perIP.LoadOrCompute(ip, func() *rate.Limiter {
		return rate.NewLimiter(rl.ipRate, rl.ipBurst)
	})
	return l
}

func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.global.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.ipLimiter(ip).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			RespondError(c, http.StatusTooManyRequests, "rate_limited", errTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

// StartCleanup drops idle per-IP limiters every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				rl.perIP.Range(func(ip string, l *rate.Limiter) bool {
					// a full bucket has not been used for a while
					if l.Tokens() >= float64(rl.ipBurst) {
						rl.perIP.Delete(ip)
					}
					return true
				})
			}
		}
	}()
}

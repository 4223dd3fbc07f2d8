package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/metrics"
	"clinicrx/internal/shared/server/respond"
)

// RateLimitRule is a token bucket refilled at Rate per second up to Burst.
// A rule with a non-positive Rate or Burst does not limit.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

func (r RateLimitRule) enabled() bool {
	return r.Rate > 0 && r.Burst > 0
}

// RenderLimits throttles routes that render a prescription document. Every
// caller gets its own bucket, sized by the rule for their role.
type RenderLimits struct {
	Default RateLimitRule
	Roles   map[auth.Role]RateLimitRule
	// IsRender reports whether the matched route renders a document.
	IsRender func(*gin.Context) bool
	Limiter  *RateLimiter
}

// Rule returns the rule for role, falling back to Default.
func (l RenderLimits) Rule(role auth.Role) RateLimitRule {
	if rule, ok := l.Roles[role]; ok {
		return rule
	}
	return l.Default
}

// RateLimiter holds one token bucket per caller.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	tokens float64
	last   time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{buckets: make(map[string]*rateBucket), now: now}
}

// RenderRateLimit rejects render requests over the caller's budget with 429
// and a Retry-After header. Other routes pass through.
func RenderRateLimit(limits RenderLimits) gin.HandlerFunc {
	if limits.Limiter == nil {
		limits.Limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		if limits.IsRender == nil || !limits.IsRender(c) {
			c.Next()
			return
		}
		role := RoleFromContext(c)
		rule := limits.Rule(role)
		if !rule.enabled() {
			c.Next()
			return
		}

		caller := UserIDFromContext(c)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		allowed, retryAfter := limits.Limiter.Allow(string(role)+"|"+caller, rule)
		if allowed {
			c.Next()
			return
		}

		metrics.IncRenderThrottled(string(role))
		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		respond.Error(c, http.StatusTooManyRequests, "render_rate_limited", "too many document requests", gin.H{
			"role":         string(role),
			"burst":        rule.Burst,
			"retryAfterMs": retryAfter.Milliseconds(),
		})
	}
}

// Allow takes a token from key's bucket. When the bucket is empty it reports
// how long until the next token.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || !rule.enabled() {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(rule.Burst), last: now}
		l.buckets[key] = bucket
	}
	if elapsed := now.Sub(bucket.last).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(float64(rule.Burst), bucket.tokens+elapsed*rule.Rate)
		bucket.last = now
	}
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, 0
	}
	wait := (1 - bucket.tokens) / rule.Rate
	return false, time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}

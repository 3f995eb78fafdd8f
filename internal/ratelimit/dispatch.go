package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
)

const keyDispatchUser = "carebill:dispatch:user:%s"

// DispatchLimiter bounds how often one caller may trigger a delivery batch.
// A nil or disabled limiter allows everything.
type DispatchLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewDispatchLimiter(cfg config.Config, client *redis.Client) *DispatchLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil || limitCfg.DispatchRate <= 0 || limitCfg.DispatchBurst <= 0 {
		return nil
	}
	return &DispatchLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.DispatchRate,
		burst:  limitCfg.DispatchBurst,
	}
}

func (l *DispatchLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *DispatchLimiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDispatchUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/aware88/fresh-crm/internal/config"
)

const (
	keyAIUsageOrg  = "aiusage:record:org:%s"
	keyAIUsageLock = "aiusage:period:lock:%s"
)

// AIUsageLimiter throttles AI usage recording per organization and
// serializes period rollover with a distributed lock.
type AIUsageLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	orgRate  float64
	orgBurst int
	lockTTL  time.Duration
}

func NewAIUsageLimiter(cfg config.Config) (*AIUsageLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.AIRecordRate <= 0 || limitCfg.AIRecordBurst <= 0 {
		return nil, errors.New("ai usage record rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &AIUsageLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		orgRate:  limitCfg.AIRecordRate,
		orgBurst: limitCfg.AIRecordBurst,
		lockTTL:  time.Duration(limitCfg.LockTTLSeconds) * time.Second,
	}, nil
}

func (l *AIUsageLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowRecord checks the per-organization token bucket for one AI usage
// record. A disabled limiter always allows.
func (l *AIUsageLimiter) AllowRecord(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyAIUsageOrg, strings.TrimSpace(orgID)), l.orgRate, l.orgBurst)
}

// TryLockPeriod takes the rollover lock for an organization so that only
// one worker closes a usage period at a time.
func (l *AIUsageLimiter) TryLockPeriod(ctx context.Context, orgID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyAIUsageLock, strings.TrimSpace(orgID)), l.lockTTL)
}

func (l *AIUsageLimiter) ReleasePeriod(ctx context.Context, orgID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyAIUsageLock, strings.TrimSpace(orgID)), token)
}

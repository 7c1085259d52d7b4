package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCreateRateLimited      = errors.New("create rate limited")
	ErrCreateRedisUnavailable = errors.New("create redis unavailable")
)

type CreateConfig struct {
	EnableIPThrottle bool
	Window           time.Duration
	MaxRequests      int
}

// CreateLimiter enforces the minimum spacing between link creations for a
// principal using a fixed window keyed on creation time, not link expiry.
type CreateLimiter struct {
	redis  redis.UniversalClient
	config CreateConfig
}

func NewCreateLimiter(redisClient redis.UniversalClient, cfg CreateConfig) *CreateLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	return &CreateLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *CreateLimiter) CheckCreate(ctx context.Context, tenantID, principal, ip string) error {
	if l == nil || l.config.Window <= 0 {
		return nil
	}

	if err := l.enforceFixedWindow(ctx, principalKey(tenantID, principal)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, ipKey(tenantID, ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *CreateLimiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *CreateLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreateRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCreateRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrCreateRateLimited
	}

	return nil
}

func principalKey(tenantID, principal string) string {
	return "mlr:" + normalizeTenantID(tenantID) + ":" + principal
}

func ipKey(tenantID, ip string) string {
	return "mlrip:" + normalizeTenantID(tenantID) + ":" + ip
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg CreateConfig) (*miniredis.Miniredis, *CreateLimiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewCreateLimiter(client, cfg)
}

func TestCreateLimiterFixedWindow(t *testing.T) {
	mr, limiter := newTestLimiter(t, CreateConfig{Window: 30 * time.Second})
	defer mr.Close()

	ctx := context.Background()

	if err := limiter.CheckCreate(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.CheckCreate(ctx, "0", "alice@example.com", ""); !errors.Is(err, ErrCreateRateLimited) {
		t.Fatalf("expected ErrCreateRateLimited within the window, got %v", err)
	}

	mr.FastForward(31 * time.Second)

	if err := limiter.CheckCreate(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("request after window should pass: %v", err)
	}
}

func TestCreateLimiterScopes(t *testing.T) {
	mr, limiter := newTestLimiter(t, CreateConfig{Window: 30 * time.Second})
	defer mr.Close()

	ctx := context.Background()

	if err := limiter.CheckCreate(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("alice should pass: %v", err)
	}
	if err := limiter.CheckCreate(ctx, "0", "bob@example.com", ""); err != nil {
		t.Fatalf("a different principal should pass: %v", err)
	}
	if err := limiter.CheckCreate(ctx, "t2", "alice@example.com", ""); err != nil {
		t.Fatalf("the same principal in another tenant should pass: %v", err)
	}
}

func TestCreateLimiterIPThrottle(t *testing.T) {
	mr, limiter := newTestLimiter(t, CreateConfig{Window: 30 * time.Second, EnableIPThrottle: true})
	defer mr.Close()

	ctx := context.Background()

	if err := limiter.CheckCreate(ctx, "0", "alice@example.com", "203.0.113.7"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.CheckCreate(ctx, "0", "bob@example.com", "203.0.113.7"); !errors.Is(err, ErrCreateRateLimited) {
		t.Fatalf("expected the shared IP to be throttled, got %v", err)
	}
}

func TestCreateLimiterDisabledWindow(t *testing.T) {
	mr, limiter := newTestLimiter(t, CreateConfig{Window: 0})
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := limiter.CheckCreate(ctx, "0", "alice@example.com", ""); err != nil {
			t.Fatalf("zero window must disable throttling, got %v", err)
		}
	}

	var nilLimiter *CreateLimiter
	if err := nilLimiter.CheckCreate(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("nil limiter must be a no-op, got %v", err)
	}
}

func TestCreateLimiterFailsWhenRedisUnavailable(t *testing.T) {
	mr, limiter := newTestLimiter(t, CreateConfig{Window: 30 * time.Second})
	mr.Close()

	if err := limiter.CheckCreate(context.Background(), "0", "alice@example.com", ""); !errors.Is(err, ErrCreateRedisUnavailable) {
		t.Fatalf("expected ErrCreateRedisUnavailable, got %v", err)
	}
}

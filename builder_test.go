package magiclink

import (
	"context"
	"testing"
)

func TestBuilderRequiresDependencies(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(validTestConfig()).WithAccountProvider(aliceProvider()).Build(); err == nil {
		t.Fatal("expected error without a redis client")
	}
	if _, err := New().WithConfig(validTestConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without an account provider")
	}

	bad := validTestConfig()
	bad.Link.TokenUses = 0
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithAccountProvider(aliceProvider()).Build(); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	b := New().WithConfig(validTestConfig()).WithRedis(rdb).WithAccountProvider(aliceProvider())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected a reused builder to be rejected")
	}
}

func TestBuiltEngineEndToEnd(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := validTestConfig()
	cfg.Link.LoginRequestTimeLimit = 0

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(aliceProvider()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	link, err := engine.CreateLink(ctx, "alice@example.com", "/home")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	result, err := engine.LoginWithLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	})
	if err != nil {
		t.Fatalf("LoginWithLink failed: %v", err)
	}
	if result.RedirectURL != "/home" {
		t.Fatalf("expected stored redirect, got %q", result.RedirectURL)
	}

	if _, err := engine.ValidateAccess(ctx, result.AccessToken); err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
}

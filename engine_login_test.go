package magiclink

import (
	"context"
	"errors"
	"testing"
)

func TestLoginWithLinkEstablishesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "/dashboard")
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

	if result.AccountID != "u1" || result.SessionID == "" || result.AccessToken == "" {
		t.Fatalf("incomplete login result %+v", result)
	}
	if result.RedirectURL != "/dashboard" {
		t.Fatalf("expected stored redirect, got %q", result.RedirectURL)
	}
	if result.ClearCookieName != LinkCookieName(link.ID) || result.ClearCookieValue != link.CookieValue {
		t.Fatalf("expected the binding cookie to be marked for clearing, got %q/%q", result.ClearCookieName, result.ClearCookieValue)
	}

	sess, err := engine.ValidateAccess(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess on issued token failed: %v", err)
	}
	if sess.SessionID != result.SessionID || sess.AccountID != "u1" || sess.Principal != "alice@example.com" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestLoginWithLinkDefaultRedirect(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
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
	if result.RedirectURL != "/" {
		t.Fatalf("expected fallback to the default redirect, got %q", result.RedirectURL)
	}
}

func TestLoginWithLinkRejectionPassesThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.LoginWithLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "mallory@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrPrincipalMismatch) {
		t.Fatalf("expected the validation error unchanged, got %v", err)
	}

	if len(rdb.Keys(ctx, "ms:*").Val()) != 0 {
		t.Fatal("expected no session to be created on rejection")
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
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

	if err := engine.Logout(ctx, result.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := engine.ValidateAccess(ctx, result.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestLogoutByAccessTokenRejectsGarbage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	if err := engine.LogoutByAccessToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

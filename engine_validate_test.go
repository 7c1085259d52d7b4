package magiclink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestValidateLinkUnknownToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	if _, err := engine.ValidateLink(context.Background(), VerifyRequest{Token: "never-issued"}); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if _, err := engine.ValidateLink(context.Background(), VerifyRequest{}); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for empty token, got %v", err)
	}
}

func TestValidateLinkPrincipalMismatchLeavesLinkUntouched(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "mallory@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrPrincipalMismatch) {
		t.Fatalf("expected ErrPrincipalMismatch, got %v", err)
	}

	// Identity was never confirmed, so the mismatch must not charge a use or
	// disable the link.
	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if peeked.Disabled || peeked.TimesUsed != 0 {
		t.Fatalf("expected untouched link after principal mismatch, got disabled=%v times_used=%d", peeked.Disabled, peeked.TimesUsed)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); err != nil {
		t.Fatalf("expected the link to remain usable by its principal, got %v", err)
	}
}

func TestValidateLinkBoundedMultiUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testLinkConfig()
	cfg.Link.TokenUses = 2
	engine := newTestLinkEngine(t, rdb, aliceProvider(), cfg)

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	req := VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}

	if _, err := engine.ValidateLink(ctx, req); err != nil {
		t.Fatalf("first use failed: %v", err)
	}

	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if peeked.Disabled || peeked.TimesUsed != 1 {
		t.Fatalf("expected a live link after the first of two uses, got disabled=%v times_used=%d", peeked.Disabled, peeked.TimesUsed)
	}

	if _, err := engine.ValidateLink(ctx, req); err != nil {
		t.Fatalf("second use failed: %v", err)
	}

	peeked, err = engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled || peeked.TimesUsed != 2 {
		t.Fatalf("expected the final use to disable, got disabled=%v times_used=%d", peeked.Disabled, peeked.TimesUsed)
	}

	if _, err := engine.ValidateLink(ctx, req); !errors.Is(err, ErrTooManyUses) {
		t.Fatalf("expected ErrTooManyUses past the use cap, got %v", err)
	}
}

func TestValidateLinkPrincipalCaseInsensitive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "Alice@EXAMPLE.com",
		CookieValue: link.CookieValue,
	}); err != nil {
		t.Fatalf("expected case-insensitive principal match, got %v", err)
	}
}

func TestValidateLinkExpiredDisablesAsSideEffect(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testLinkConfig()
	cfg.Link.AuthTimeout = -2 * time.Second // issue links already past expiry
	engine := newTestLinkEngine(t, rdb, aliceProvider(), cfg)

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}

	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled {
		t.Fatal("expected an expired presentation to disable the link")
	}
	if peeked.TimesUsed != 1 {
		t.Fatalf("expected the failed presentation to be charged, got times_used=%d", peeked.TimesUsed)
	}
}

func TestValidateLinkAnonymizedIPMatchesWithinSubnet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	createCtx := WithClientIP(context.Background(), "203.0.113.7")
	link, err := engine.CreateLink(createCtx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	validateCtx := WithClientIP(context.Background(), "203.0.113.250")
	if _, err := engine.ValidateLink(validateCtx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); err != nil {
		t.Fatalf("expected anonymized IPs in the same /24 to compare equal, got %v", err)
	}
}

func TestValidateLinkIPMismatchDisables(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	createCtx := WithClientIP(context.Background(), "203.0.113.7")
	link, err := engine.CreateLink(createCtx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	validateCtx := WithClientIP(context.Background(), "198.51.100.23")
	if _, err := engine.ValidateLink(validateCtx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrIPMismatch) {
		t.Fatalf("expected ErrIPMismatch, got %v", err)
	}

	peeked, err := engine.PeekLink(createCtx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled {
		t.Fatal("expected IP mismatch to disable the link")
	}
}

func TestValidateLinkBrowserMismatchDisables(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: "not-the-issued-cookie",
	}); !errors.Is(err, ErrBrowserMismatch) {
		t.Fatalf("expected ErrBrowserMismatch, got %v", err)
	}

	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled {
		t.Fatal("expected browser mismatch to disable the link")
	}
}

func TestValidateLinkAccountMissingDisables(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	ap := &mockAccountProvider{accounts: map[string]AccountRecord{}}
	engine := newTestLinkEngine(t, rdb, ap, testLinkConfig())

	link, err := engine.CreateLink(ctx, "ghost@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "ghost@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled {
		t.Fatal("expected an unresolvable principal to disable the link")
	}
}

func TestValidateLinkSuperuserRejected(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	ap := &mockAccountProvider{
		accounts: map[string]AccountRecord{
			"root@example.com": {AccountID: "u9", Principal: "root@example.com", IsSuperuser: true},
		},
	}
	cfg := testLinkConfig()
	cfg.Link.AllowSuperuserLogin = false
	engine := newTestLinkEngine(t, rdb, ap, cfg)

	link, err := engine.CreateLink(ctx, "root@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "root@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrSuperuserNotAllowed) {
		t.Fatalf("expected ErrSuperuserNotAllowed, got %v", err)
	}

	peeked, err := engine.PeekLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if !peeked.Disabled || peeked.TimesUsed != 1 {
		t.Fatalf("expected superuser rejection to charge and disable, got disabled=%v times_used=%d", peeked.Disabled, peeked.TimesUsed)
	}
}

func TestValidateLinkStaffRejected(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	ap := &mockAccountProvider{
		accounts: map[string]AccountRecord{
			"staff@example.com": {AccountID: "u7", Principal: "staff@example.com", IsStaff: true},
		},
	}
	cfg := testLinkConfig()
	cfg.Link.AllowStaffLogin = false
	engine := newTestLinkEngine(t, rdb, ap, cfg)

	link, err := engine.CreateLink(ctx, "staff@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "staff@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrStaffNotAllowed) {
		t.Fatalf("expected ErrStaffNotAllowed, got %v", err)
	}
}

func TestValidateLinkAliceScenario(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	createCtx := WithClientIP(context.Background(), "203.0.113.7")
	link, err := engine.CreateLink(createCtx, "alice@example.com", "/dashboard")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	validateCtx := WithClientIP(context.Background(), "203.0.113.250")
	account, err := engine.ValidateLink(validateCtx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	})
	if err != nil {
		t.Fatalf("expected the presentation to be accepted, got %v", err)
	}
	if account.AccountID != "u1" || account.Principal != "alice@example.com" {
		t.Fatalf("unexpected account %+v", account)
	}

	peeked, err := engine.PeekLink(createCtx, link.Token)
	if err != nil {
		t.Fatalf("PeekLink failed: %v", err)
	}
	if peeked.TimesUsed != 1 {
		t.Fatalf("expected times_used=1 after the single accepted use, got %d", peeked.TimesUsed)
	}
	if !peeked.Disabled {
		t.Fatal("expected a one-use link to be disabled after its accepted use")
	}
}

func TestValidateLinkConcurrentSingleSuccess(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	req := VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	results := make(chan error, 2)

	runValidate := func() {
		defer wg.Done()
		<-start
		_, err := engine.ValidateLink(ctx, req)
		results <- err
	}

	go runValidate()
	go runValidate()
	close(start)
	wg.Wait()
	close(results)

	success := 0
	rejected := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrTooManyUses) {
			rejected++
			continue
		}
		t.Fatalf("expected nil or ErrTooManyUses, got %v", err)
	}
	if success != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner for a one-use token, got success=%d rejected=%d", success, rejected)
	}
}

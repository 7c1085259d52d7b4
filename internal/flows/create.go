package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LinkStoreRecord is the flow-local mirror of the persisted link record.
type LinkStoreRecord struct {
	LinkID      string
	Principal   string
	RedirectURL string
	CookieValue string
	IPAddress   string
	ExpiresAt   int64
	CreatedAt   int64
	TimesUsed   uint16
	Disabled    bool
}

// CreateResult is the flow-local creation response shape. Token carries the
// raw token exactly once; it is never persisted.
type CreateResult struct {
	LinkID      string
	Principal   string
	Token       string
	CookieValue string
	RedirectURL string
	Expiry      time.Time
	Created     time.Time
	Superseded  int
}

// CreateMetrics carries metric IDs needed by the creation flow.
type CreateMetrics struct {
	LinkCreated           int
	LinkCreateRateLimited int
	LinkSuperseded        int
}

// CreateEvents carries audit event names used by the creation flow.
type CreateEvents struct {
	LinkCreated           string
	LinkCreateRateLimited string
	LinkSuperseded        string
}

// CreateErrors carries host-level sentinel errors used by the creation flow.
type CreateErrors struct {
	EngineNotReady    error
	PrincipalInvalid  error
	CreateRateLimited error
	StoreUnavailable  error
}

// CreateDeps captures link-creation dependencies.
type CreateDeps struct {
	TokenLength          int
	AuthTimeout          time.Duration
	Retention            time.Duration
	OneTokenPerPrincipal bool
	RequireSameIP        bool
	RequireSameBrowser   bool
	AnonymizeIP          bool
	IgnoreCase           bool
	DefaultRedirectURL   string

	TenantIDFromContext func(context.Context) string
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	CheckCreateLimiter func(context.Context, string, string, string) error
	MapLimiterError    func(error) error
	MapStoreError      func(error) error

	NewLinkID      func() (string, error)
	NewToken       func(int) (string, error)
	NewCookieValue func() (string, error)
	TokenKey       func(string) string
	AnonymizeAddr  func(string) string

	DisableActiveLinks func(context.Context, string, string) (int, error)
	SaveLink           func(context.Context, string, string, LinkStoreRecord, time.Duration) error

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, string, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, string, func() map[string]string)

	Metrics CreateMetrics
	Events  CreateEvents
	Errors  CreateErrors
}

func RunCreateLink(ctx context.Context, principal, redirectURL string, deps CreateDeps) (CreateResult, error) {
	normalizeCreateDeps(&deps)

	if deps.NewLinkID == nil ||
		deps.NewToken == nil ||
		deps.TokenKey == nil ||
		deps.SaveLink == nil ||
		deps.CheckCreateLimiter == nil {
		return CreateResult{}, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(principal) == "" {
		deps.EmitAudit(ctx, deps.Events.LinkCreated, false, "", deps.TenantIDFromContext(ctx), "", deps.Errors.PrincipalInvalid, func() map[string]string {
			return map[string]string{
				"reason": "empty_principal",
			}
		})
		return CreateResult{}, deps.Errors.PrincipalInvalid
	}

	if deps.IgnoreCase {
		principal = strings.ToLower(principal)
	}

	tenantID := deps.TenantIDFromContext(ctx)
	ip := deps.ClientIPFromContext(ctx)

	if err := deps.CheckCreateLimiter(ctx, tenantID, principal, ip); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.EmitAudit(ctx, deps.Events.LinkCreated, false, "", tenantID, "", mapped, func() map[string]string {
			return map[string]string{
				"principal": principal,
			}
		})
		if errors.Is(mapped, deps.Errors.CreateRateLimited) {
			deps.MetricInc(deps.Metrics.LinkCreateRateLimited)
			deps.EmitRateLimit(ctx, deps.Events.LinkCreateRateLimited, tenantID, func() map[string]string {
				return map[string]string{
					"principal": principal,
				}
			})
		}
		return CreateResult{}, mapped
	}

	superseded := 0
	if deps.OneTokenPerPrincipal && deps.DisableActiveLinks != nil {
		count, err := deps.DisableActiveLinks(ctx, tenantID, principal)
		if err != nil {
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.LinkCreated, false, "", tenantID, "", mapped, func() map[string]string {
				return map[string]string{
					"principal": principal,
					"reason":    "supersede_failed",
				}
			})
			return CreateResult{}, mapped
		}
		superseded = count
		if superseded > 0 {
			deps.MetricInc(deps.Metrics.LinkSuperseded)
			deps.EmitAudit(ctx, deps.Events.LinkSuperseded, true, "", tenantID, "", nil, func() map[string]string {
				return map[string]string{
					"principal": principal,
				}
			})
		}
	}

	linkID, err := deps.NewLinkID()
	if err != nil {
		return CreateResult{}, deps.Errors.StoreUnavailable
	}
	token, err := deps.NewToken(deps.TokenLength)
	if err != nil {
		return CreateResult{}, deps.Errors.StoreUnavailable
	}

	cookieValue := ""
	if deps.RequireSameBrowser && deps.NewCookieValue != nil {
		cookieValue, err = deps.NewCookieValue()
		if err != nil {
			return CreateResult{}, deps.Errors.StoreUnavailable
		}
	}

	storedIP := ""
	if deps.RequireSameIP && ip != "" {
		storedIP = ip
		if deps.AnonymizeIP && deps.AnonymizeAddr != nil {
			storedIP = deps.AnonymizeAddr(ip)
		}
	}

	if redirectURL == "" {
		redirectURL = deps.DefaultRedirectURL
	}

	now := deps.Now()
	expiry := now.Add(deps.AuthTimeout)

	record := LinkStoreRecord{
		LinkID:      linkID,
		Principal:   principal,
		RedirectURL: redirectURL,
		CookieValue: cookieValue,
		IPAddress:   storedIP,
		ExpiresAt:   expiry.Unix(),
		CreatedAt:   now.Unix(),
	}

	if err := deps.SaveLink(ctx, tenantID, deps.TokenKey(token), record, deps.Retention); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.LinkCreated, false, "", tenantID, linkID, mapped, func() map[string]string {
			return map[string]string{
				"principal": principal,
			}
		})
		return CreateResult{}, mapped
	}

	deps.MetricInc(deps.Metrics.LinkCreated)
	deps.EmitAudit(ctx, deps.Events.LinkCreated, true, "", tenantID, linkID, nil, func() map[string]string {
		return map[string]string{
			"principal": principal,
		}
	})

	return CreateResult{
		LinkID:      linkID,
		Principal:   principal,
		Token:       token,
		CookieValue: cookieValue,
		RedirectURL: redirectURL,
		Expiry:      expiry,
		Created:     now,
		Superseded:  superseded,
	}, nil
}

func normalizeCreateDeps(deps *CreateDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TenantIDFromContext == nil {
		deps.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, string, func() map[string]string) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.StoreUnavailable }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(error) error { return deps.Errors.StoreUnavailable }
	}
}

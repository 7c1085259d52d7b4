package magiclink

import (
	"context"
	"errors"
	"net/url"
	"time"

	"magiclink/internal"
	internalflows "magiclink/internal/flows"
	"magiclink/internal/limiters"
	"magiclink/internal/stores"
)

// LinkCookieName returns the per-link binding cookie name for a link ID.
func LinkCookieName(linkID string) string {
	return "magiclink" + linkID
}

// CreateLink describes the createlink operation and its observable behavior.
//
// CreateLink may return an error when input validation, dependency calls, or security checks fail.
// CreateLink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateLink(ctx context.Context, principal, redirectURL string) (*Link, error) {
	result, err := internalflows.RunCreateLink(ctx, principal, redirectURL, e.createFlowDeps())
	if err != nil {
		return nil, err
	}

	return &Link{
		ID:          result.LinkID,
		Principal:   result.Principal,
		Token:       result.Token,
		Expiry:      result.Expiry,
		RedirectURL: result.RedirectURL,
		CookieValue: result.CookieValue,
		Created:     result.Created,
	}, nil
}

// GenerateURL describes the generateurl operation and its observable behavior.
//
// GenerateURL may return an error when input validation, dependency calls, or security checks fail.
// GenerateURL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GenerateURL(link *Link) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if link == nil || link.Token == "" {
		return "", ErrTokenInvalid
	}
	if e.config.Link.BaseURL == "" {
		return "", errors.New("Link BaseURL required to generate login URLs")
	}

	u, err := url.Parse(e.config.Link.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = e.config.Link.VerifyPath

	query := url.Values{}
	query.Set("token", link.Token)
	if e.config.Link.VerifyIncludePrincipal {
		query.Set(string(e.config.Link.PrincipalField), link.Principal)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (e *Engine) createFlowDeps() internalflows.CreateDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.CreateDeps{
		TokenLength:          cfg.Link.TokenLength,
		AuthTimeout:          cfg.Link.AuthTimeout,
		Retention:            cfg.Link.AuditRetention,
		OneTokenPerPrincipal: cfg.Link.OneTokenPerPrincipal,
		RequireSameIP:        cfg.Link.RequireSameIP,
		RequireSameBrowser:   cfg.Link.RequireSameBrowser,
		AnonymizeIP:          cfg.Link.AnonymizeIP,
		IgnoreCase:           cfg.Link.PrincipalIgnoreCase,
		DefaultRedirectURL:   cfg.Link.DefaultRedirectURL,
		TenantIDFromContext:  tenantIDFromContext,
		ClientIPFromContext:  clientIPFromContext,
		Now:                  time.Now,
		MapLimiterError:      mapCreateLimiterError,
		MapStoreError:        mapLinkStoreError,
		NewLinkID: func() (string, error) {
			lid, err := internal.NewLinkID()
			if err != nil {
				return "", err
			}
			return lid.String(), nil
		},
		NewToken:       internal.NewLinkToken,
		NewCookieValue: internal.NewCookieValue,
		TokenKey:       internal.TokenKey,
		AnonymizeAddr:  internal.AnonymizeIP,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.CreateMetrics{
			LinkCreated:           int(MetricLinkCreated),
			LinkCreateRateLimited: int(MetricLinkCreateRateLimited),
			LinkSuperseded:        int(MetricLinkSuperseded),
		},
		Events: internalflows.CreateEvents{
			LinkCreated:           auditEventLinkCreated,
			LinkCreateRateLimited: "link_create_rate_limited",
			LinkSuperseded:        auditEventLinkSuperseded,
		},
		Errors: internalflows.CreateErrors{
			EngineNotReady:    ErrEngineNotReady,
			PrincipalInvalid:  ErrPrincipalInvalid,
			CreateRateLimited: ErrCreateRateLimited,
			StoreUnavailable:  ErrStoreUnavailable,
		},
	}

	if e != nil && e.createLimiter != nil {
		deps.CheckCreateLimiter = e.createLimiter.CheckCreate
	}
	if e != nil && e.linkStore != nil {
		deps.DisableActiveLinks = e.linkStore.DisableAllForPrincipal
		deps.SaveLink = func(ctx context.Context, tenantID, tokenKey string, record internalflows.LinkStoreRecord, ttl time.Duration) error {
			return e.linkStore.Save(ctx, tenantID, tokenKey, &stores.MagicLinkRecord{
				LinkID:      record.LinkID,
				Principal:   record.Principal,
				RedirectURL: record.RedirectURL,
				CookieValue: record.CookieValue,
				IPAddress:   record.IPAddress,
				ExpiresAt:   record.ExpiresAt,
				CreatedAt:   record.CreatedAt,
				TimesUsed:   record.TimesUsed,
				Disabled:    record.Disabled,
			}, ttl)
		}
	}

	return deps
}

func mapCreateLimiterError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrCreateRateLimited) {
		return ErrCreateRateLimited
	}
	return ErrStoreUnavailable
}

func mapLinkStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrLinkNotFound):
		return ErrLinkNotFound
	case errors.Is(err, stores.ErrLinkUsed):
		return ErrTooManyUses
	case errors.Is(err, stores.ErrLinkExpired):
		return ErrLinkExpired
	case errors.Is(err, stores.ErrLinkIPMismatch):
		return ErrIPMismatch
	case errors.Is(err, stores.ErrLinkBrowserMismatch):
		return ErrBrowserMismatch
	default:
		return ErrStoreUnavailable
	}
}

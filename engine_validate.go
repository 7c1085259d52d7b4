package magiclink

import (
	"context"
	"errors"
	"time"

	"magiclink/internal"
	internalflows "magiclink/internal/flows"
	"magiclink/internal/stores"
)

// ValidateLink describes the validatelink operation and its observable behavior.
//
// ValidateLink may return an error when input validation, dependency calls, or security checks fail.
// ValidateLink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateLink(ctx context.Context, req VerifyRequest) (AccountRecord, error) {
	if e != nil && e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	result, err := internalflows.RunValidateLink(ctx, req.Token, req.Principal, req.CookieValue, e.validateFlowDeps())
	if err != nil {
		return AccountRecord{}, err
	}

	return AccountRecord{
		AccountID:   result.Account.AccountID,
		Principal:   result.Account.Principal,
		TenantID:    result.Account.TenantID,
		IsSuperuser: result.Account.IsSuperuser,
		IsStaff:     result.Account.IsStaff,
	}, nil
}

// PeekLink describes the peeklink operation and its observable behavior.
//
// PeekLink loads the stored record for a raw token without charging a use or
// mutating link state; the returned Link never carries the raw token.
// PeekLink may return an error when input validation, dependency calls, or security checks fail.
// PeekLink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) PeekLink(ctx context.Context, token string) (*Link, error) {
	if e == nil || e.linkStore == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrLinkNotFound
	}

	record, err := e.linkStore.Get(ctx, tenantIDFromContext(ctx), internal.TokenKey(token))
	if err != nil {
		return nil, mapLinkStoreError(err)
	}

	return &Link{
		ID:          record.LinkID,
		Principal:   record.Principal,
		Expiry:      time.Unix(record.ExpiresAt, 0),
		RedirectURL: record.RedirectURL,
		CookieValue: record.CookieValue,
		IPAddress:   record.IPAddress,
		TimesUsed:   int(record.TimesUsed),
		Disabled:    record.Disabled,
		Created:     time.Unix(record.CreatedAt, 0),
	}, nil
}

func (e *Engine) validateFlowDeps() internalflows.ValidateDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.ValidateDeps{
		RequireSameIP:          cfg.Link.RequireSameIP,
		RequireSameBrowser:     cfg.Link.RequireSameBrowser,
		AnonymizeIP:            cfg.Link.AnonymizeIP,
		IgnoreCase:             cfg.Link.PrincipalIgnoreCase,
		VerifyIncludePrincipal: cfg.Link.VerifyIncludePrincipal,
		AllowSuperuserLogin:    cfg.Link.AllowSuperuserLogin,
		AllowStaffLogin:        cfg.Link.AllowStaffLogin,
		TokenUses:              cfg.Link.TokenUses,
		TenantIDFromContext:    tenantIDFromContext,
		ClientIPFromContext:    clientIPFromContext,
		Now:                    time.Now,
		TokenKey:               internal.TokenKey,
		AnonymizeAddr:          internal.AnonymizeIP,
		IsStoreNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrLinkNotFound)
		},
		MapStoreError: mapLinkStoreError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.ValidateMetrics{
			LoginAccepted:          int(MetricLoginAccepted),
			LoginRejected:          int(MetricLoginRejected),
			LoginNotFound:          int(MetricLoginNotFound),
			LoginPrincipalMismatch: int(MetricLoginPrincipalMismatch),
			LoginExpired:           int(MetricLoginExpired),
			LoginIPMismatch:        int(MetricLoginIPMismatch),
			LoginBrowserMismatch:   int(MetricLoginBrowserMismatch),
			LoginTooManyUses:       int(MetricLoginTooManyUses),
			LoginRoleRejected:      int(MetricLoginRoleRejected),
		},
		Events: internalflows.ValidateEvents{
			LoginAccepted: auditEventLoginAccepted,
			LoginRejected: auditEventLoginRejected,
		},
		Errors: internalflows.ValidateErrors{
			EngineNotReady:      ErrEngineNotReady,
			LinkNotFound:        ErrLinkNotFound,
			PrincipalMismatch:   ErrPrincipalMismatch,
			LinkExpired:         ErrLinkExpired,
			IPMismatch:          ErrIPMismatch,
			BrowserMismatch:     ErrBrowserMismatch,
			TooManyUses:         ErrTooManyUses,
			SuperuserNotAllowed: ErrSuperuserNotAllowed,
			StaffNotAllowed:     ErrStaffNotAllowed,
			AccountNotFound:     ErrAccountNotFound,
			StoreUnavailable:    ErrStoreUnavailable,
		},
	}

	if e != nil && e.linkStore != nil {
		deps.GetLink = func(ctx context.Context, tenantID, tokenKey string) (internalflows.LinkStoreRecord, error) {
			record, err := e.linkStore.Get(ctx, tenantID, tokenKey)
			if err != nil {
				return internalflows.LinkStoreRecord{}, err
			}
			return linkRecordToFlow(record), nil
		}
		deps.ConsumeLink = func(ctx context.Context, tenantID, tokenKey string, check internalflows.LinkConsumeCheck) (internalflows.LinkStoreRecord, error) {
			record, err := e.linkStore.Consume(ctx, tenantID, tokenKey, stores.ConsumeCheck{
				PresentedIP:        check.PresentedIP,
				CookieValue:        check.CookieValue,
				RequireSameIP:      check.RequireSameIP,
				RequireSameBrowser: check.RequireSameBrowser,
				TokenUses:          check.TokenUses,
				Now:                check.Now,
			})
			if err != nil {
				return internalflows.LinkStoreRecord{}, err
			}
			return linkRecordToFlow(record), nil
		}
		deps.DisableLink = e.linkStore.Disable
	}
	if e != nil && e.accountProvider != nil {
		deps.GetAccountByPrincipal = func(ctx context.Context, principal string) (internalflows.LinkAccount, error) {
			account, err := e.accountProvider.GetAccountByPrincipal(ctx, principal)
			if err != nil {
				return internalflows.LinkAccount{}, err
			}
			return internalflows.LinkAccount{
				AccountID:   account.AccountID,
				Principal:   account.Principal,
				TenantID:    account.TenantID,
				IsSuperuser: account.IsSuperuser,
				IsStaff:     account.IsStaff,
			}, nil
		}
	}

	return deps
}

func linkRecordToFlow(record *stores.MagicLinkRecord) internalflows.LinkStoreRecord {
	return internalflows.LinkStoreRecord{
		LinkID:      record.LinkID,
		Principal:   record.Principal,
		RedirectURL: record.RedirectURL,
		CookieValue: record.CookieValue,
		IPAddress:   record.IPAddress,
		ExpiresAt:   record.ExpiresAt,
		CreatedAt:   record.CreatedAt,
		TimesUsed:   record.TimesUsed,
		Disabled:    record.Disabled,
	}
}

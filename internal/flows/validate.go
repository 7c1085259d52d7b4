package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LinkAccount is the flow-local account model resolved for a link principal.
type LinkAccount struct {
	AccountID   string
	Principal   string
	TenantID    string
	IsSuperuser bool
	IsStaff     bool
}

// LinkConsumeCheck is the flow-local mirror of the store's consume context.
type LinkConsumeCheck struct {
	PresentedIP        string
	CookieValue        string
	RequireSameIP      bool
	RequireSameBrowser bool
	TokenUses          int
	Now                time.Time
}

// ValidateResult is returned on the ACCEPTED terminal state.
type ValidateResult struct {
	Account LinkAccount
	Record  LinkStoreRecord
}

// ValidateMetrics carries metric IDs needed by the validation flow.
type ValidateMetrics struct {
	LoginAccepted          int
	LoginRejected          int
	LoginNotFound          int
	LoginPrincipalMismatch int
	LoginExpired           int
	LoginIPMismatch        int
	LoginBrowserMismatch   int
	LoginTooManyUses       int
	LoginRoleRejected      int
}

// ValidateEvents carries audit event names used by the validation flow.
type ValidateEvents struct {
	LoginAccepted string
	LoginRejected string
}

// ValidateErrors carries host-level sentinel errors used by the validation flow.
type ValidateErrors struct {
	EngineNotReady      error
	LinkNotFound        error
	PrincipalMismatch   error
	LinkExpired         error
	IPMismatch          error
	BrowserMismatch     error
	TooManyUses         error
	SuperuserNotAllowed error
	StaffNotAllowed     error
	AccountNotFound     error
	StoreUnavailable    error
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	RequireSameIP          bool
	RequireSameBrowser     bool
	AnonymizeIP            bool
	IgnoreCase             bool
	VerifyIncludePrincipal bool
	AllowSuperuserLogin    bool
	AllowStaffLogin        bool
	TokenUses              int

	TenantIDFromContext func(context.Context) string
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	TokenKey      func(string) string
	AnonymizeAddr func(string) string

	GetLink         func(context.Context, string, string) (LinkStoreRecord, error)
	ConsumeLink     func(context.Context, string, string, LinkConsumeCheck) (LinkStoreRecord, error)
	DisableLink     func(context.Context, string, string) error
	IsStoreNotFound func(error) bool
	MapStoreError   func(error) error

	GetAccountByPrincipal func(context.Context, string) (LinkAccount, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	Metrics ValidateMetrics
	Events  ValidateEvents
	Errors  ValidateErrors
}

// RunValidateLink decides one presentation of a magic link. PRESENTED moves
// to exactly one of ACCEPTED or REJECTED; both are terminal for this call and
// every rejection after the record is located leaves the link disabled.
func RunValidateLink(ctx context.Context, token, principal, cookieValue string, deps ValidateDeps) (ValidateResult, error) {
	normalizeValidateDeps(&deps)

	if deps.TokenKey == nil ||
		deps.GetLink == nil ||
		deps.ConsumeLink == nil ||
		deps.DisableLink == nil ||
		deps.GetAccountByPrincipal == nil {
		return ValidateResult{}, deps.Errors.EngineNotReady
	}

	tenantID := deps.TenantIDFromContext(ctx)

	if token == "" {
		deps.MetricInc(deps.Metrics.LoginRejected)
		deps.MetricInc(deps.Metrics.LoginNotFound)
		deps.EmitAudit(ctx, deps.Events.LoginRejected, false, "", tenantID, "", deps.Errors.LinkNotFound, func() map[string]string {
			return map[string]string{
				"reason": "empty_token",
			}
		})
		return ValidateResult{}, deps.Errors.LinkNotFound
	}

	tokenKey := deps.TokenKey(token)

	record, err := deps.GetLink(ctx, tenantID, tokenKey)
	if err != nil {
		if deps.IsStoreNotFound(err) {
			deps.MetricInc(deps.Metrics.LoginRejected)
			deps.MetricInc(deps.Metrics.LoginNotFound)
			deps.EmitAudit(ctx, deps.Events.LoginRejected, false, "", tenantID, "", deps.Errors.LinkNotFound, nil)
			return ValidateResult{}, deps.Errors.LinkNotFound
		}
		return ValidateResult{}, deps.MapStoreError(err)
	}

	// Principal binding runs before any record mutation: identity is not yet
	// confirmed, so a mismatch does not touch or disable the link.
	if deps.VerifyIncludePrincipal {
		presented := principal
		if deps.IgnoreCase {
			presented = strings.ToLower(presented)
		}
		if presented != record.Principal {
			deps.MetricInc(deps.Metrics.LoginRejected)
			deps.MetricInc(deps.Metrics.LoginPrincipalMismatch)
			deps.EmitAudit(ctx, deps.Events.LoginRejected, false, "", tenantID, record.LinkID, deps.Errors.PrincipalMismatch, nil)
			return ValidateResult{}, deps.Errors.PrincipalMismatch
		}
	}

	presentedIP := deps.ClientIPFromContext(ctx)
	if deps.AnonymizeIP && deps.AnonymizeAddr != nil {
		presentedIP = deps.AnonymizeAddr(presentedIP)
	}

	consumed, err := deps.ConsumeLink(ctx, tenantID, tokenKey, LinkConsumeCheck{
		PresentedIP:        presentedIP,
		CookieValue:        cookieValue,
		RequireSameIP:      deps.RequireSameIP,
		RequireSameBrowser: deps.RequireSameBrowser,
		TokenUses:          deps.TokenUses,
		Now:                deps.Now(),
	})
	if err != nil {
		mapped := deps.MapStoreError(err)
		deps.MetricInc(deps.Metrics.LoginRejected)
		switch {
		case errors.Is(mapped, deps.Errors.LinkNotFound):
			deps.MetricInc(deps.Metrics.LoginNotFound)
		case errors.Is(mapped, deps.Errors.LinkExpired):
			deps.MetricInc(deps.Metrics.LoginExpired)
		case errors.Is(mapped, deps.Errors.IPMismatch):
			deps.MetricInc(deps.Metrics.LoginIPMismatch)
		case errors.Is(mapped, deps.Errors.BrowserMismatch):
			deps.MetricInc(deps.Metrics.LoginBrowserMismatch)
		case errors.Is(mapped, deps.Errors.TooManyUses):
			deps.MetricInc(deps.Metrics.LoginTooManyUses)
		}
		deps.EmitAudit(ctx, deps.Events.LoginRejected, false, "", tenantID, record.LinkID, mapped, nil)
		return ValidateResult{}, mapped
	}

	account, err := deps.GetAccountByPrincipal(ctx, consumed.Principal)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ValidateResult{}, err
		}
		_ = deps.DisableLink(ctx, tenantID, tokenKey)
		deps.MetricInc(deps.Metrics.LoginRejected)
		deps.EmitAudit(ctx, deps.Events.LoginRejected, false, "", tenantID, consumed.LinkID, deps.Errors.AccountNotFound, func() map[string]string {
			return map[string]string{
				"principal": consumed.Principal,
			}
		})
		return ValidateResult{}, deps.Errors.AccountNotFound
	}

	if account.IsSuperuser && !deps.AllowSuperuserLogin {
		if err := deps.DisableLink(ctx, tenantID, tokenKey); err != nil {
			return ValidateResult{}, deps.MapStoreError(err)
		}
		deps.MetricInc(deps.Metrics.LoginRejected)
		deps.MetricInc(deps.Metrics.LoginRoleRejected)
		deps.EmitAudit(ctx, deps.Events.LoginRejected, false, account.AccountID, tenantID, consumed.LinkID, deps.Errors.SuperuserNotAllowed, nil)
		return ValidateResult{}, deps.Errors.SuperuserNotAllowed
	}
	if account.IsStaff && !deps.AllowStaffLogin {
		if err := deps.DisableLink(ctx, tenantID, tokenKey); err != nil {
			return ValidateResult{}, deps.MapStoreError(err)
		}
		deps.MetricInc(deps.Metrics.LoginRejected)
		deps.MetricInc(deps.Metrics.LoginRoleRejected)
		deps.EmitAudit(ctx, deps.Events.LoginRejected, false, account.AccountID, tenantID, consumed.LinkID, deps.Errors.StaffNotAllowed, nil)
		return ValidateResult{}, deps.Errors.StaffNotAllowed
	}

	deps.MetricInc(deps.Metrics.LoginAccepted)
	deps.EmitAudit(ctx, deps.Events.LoginAccepted, true, account.AccountID, tenantID, consumed.LinkID, nil, func() map[string]string {
		return map[string]string{
			"principal": consumed.Principal,
		}
	})

	return ValidateResult{
		Account: account,
		Record:  consumed,
	}, nil
}

func normalizeValidateDeps(deps *ValidateDeps) {
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
	if deps.IsStoreNotFound == nil {
		deps.IsStoreNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(error) error { return deps.Errors.StoreUnavailable }
	}
}

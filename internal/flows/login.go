package flows

import (
	"context"
	"time"
)

// LoginFlowResult is the flow-local login response shape.
type LoginFlowResult struct {
	AccountID   string
	Principal   string
	SessionID   string
	AccessToken string
	RedirectURL string

	ClearCookieName  string
	ClearCookieValue string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	SessionCreated int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	SessionCreated string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady        error
	SessionCreationFailed error
}

// LoginDeps captures login orchestration dependencies.
type LoginDeps struct {
	DefaultRedirectURL string

	TenantIDFromContext func(context.Context) string
	Now                 func() time.Time

	Validate         func(context.Context, string, string, string) (ValidateResult, error)
	EstablishSession func(context.Context, LinkAccount) (string, error)
	IssueAccess      func(LinkAccount, string) (string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, string, error, func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLoginWithLink runs validation and, on ACCEPTED, establishes the
// authenticated session. The result names the binding cookie the HTTP layer
// must expire; rejection errors from validation pass through unchanged.
func RunLoginWithLink(ctx context.Context, token, principal, cookieValue string, deps LoginDeps) (LoginFlowResult, error) {
	normalizeLoginDeps(&deps)

	if deps.Validate == nil || deps.EstablishSession == nil || deps.IssueAccess == nil {
		return LoginFlowResult{}, deps.Errors.EngineNotReady
	}

	validated, err := deps.Validate(ctx, token, principal, cookieValue)
	if err != nil {
		return LoginFlowResult{}, err
	}

	tenantID := deps.TenantIDFromContext(ctx)

	sessionID, err := deps.EstablishSession(ctx, validated.Account)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.SessionCreated, false, validated.Account.AccountID, tenantID, validated.Record.LinkID, deps.Errors.SessionCreationFailed, nil)
		return LoginFlowResult{}, deps.Errors.SessionCreationFailed
	}

	accessToken, err := deps.IssueAccess(validated.Account, sessionID)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.SessionCreated, false, validated.Account.AccountID, tenantID, validated.Record.LinkID, deps.Errors.SessionCreationFailed, func() map[string]string {
			return map[string]string{
				"reason": "access_token",
			}
		})
		return LoginFlowResult{}, deps.Errors.SessionCreationFailed
	}

	redirectURL := validated.Record.RedirectURL
	if redirectURL == "" {
		redirectURL = deps.DefaultRedirectURL
	}

	result := LoginFlowResult{
		AccountID:   validated.Account.AccountID,
		Principal:   validated.Account.Principal,
		SessionID:   sessionID,
		AccessToken: accessToken,
		RedirectURL: redirectURL,
	}
	if validated.Record.CookieValue != "" {
		result.ClearCookieName = "magiclink" + validated.Record.LinkID
		result.ClearCookieValue = validated.Record.CookieValue
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.SessionCreated, true, validated.Account.AccountID, tenantID, validated.Record.LinkID, nil, func() map[string]string {
		return map[string]string{
			"session_id": sessionID,
		}
	})

	return result, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TenantIDFromContext == nil {
		deps.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
}

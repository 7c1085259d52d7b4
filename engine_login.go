package magiclink

import (
	"context"
	"time"

	"magiclink/internal"
	internalflows "magiclink/internal/flows"
	"magiclink/session"
)

// LoginWithLink describes the loginwithlink operation and its observable behavior.
//
// LoginWithLink may return an error when input validation, dependency calls, or security checks fail.
// LoginWithLink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginWithLink(ctx context.Context, req VerifyRequest) (*LoginResult, error) {
	result, err := internalflows.RunLoginWithLink(ctx, req.Token, req.Principal, req.CookieValue, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccountID:        result.AccountID,
		Principal:        result.Principal,
		SessionID:        result.SessionID,
		AccessToken:      result.AccessToken,
		RedirectURL:      result.RedirectURL,
		ClearCookieName:  result.ClearCookieName,
		ClearCookieValue: result.ClearCookieValue,
	}, nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.LoginDeps{
		DefaultRedirectURL:  cfg.Link.DefaultRedirectURL,
		TenantIDFromContext: tenantIDFromContext,
		Now:                 time.Now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.LoginMetrics{
			SessionCreated: int(MetricSessionCreated),
		},
		Events: internalflows.LoginEvents{
			SessionCreated: auditEventSessionCreated,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:        ErrEngineNotReady,
			SessionCreationFailed: ErrSessionCreationFailed,
		},
	}

	if e == nil {
		return deps
	}

	deps.Validate = func(ctx context.Context, token, principal, cookieValue string) (internalflows.ValidateResult, error) {
		return internalflows.RunValidateLink(ctx, token, principal, cookieValue, e.validateFlowDeps())
	}

	if e.sessionStore != nil {
		deps.EstablishSession = func(ctx context.Context, account internalflows.LinkAccount) (string, error) {
			sid, err := internal.NewLinkID()
			if err != nil {
				return "", err
			}
			sessionID := sid.String()

			tenantID := account.TenantID
			if tenantID == "" {
				tenantID = tenantIDFromContext(ctx)
			}

			now := time.Now()
			sess := &session.Session{
				SessionID: sessionID,
				AccountID: account.AccountID,
				TenantID:  tenantID,
				Principal: account.Principal,
				CreatedAt: now.Unix(),
				ExpiresAt: now.Add(e.config.Session.TTL).Unix(),
			}
			if err := e.sessionStore.Save(ctx, sess, e.config.Session.TTL); err != nil {
				return "", err
			}
			return sessionID, nil
		}
	}

	if e.jwtManager != nil {
		deps.IssueAccess = func(account internalflows.LinkAccount, sessionID string) (string, error) {
			tenantID := account.TenantID
			return e.jwtManager.CreateAccess(account.AccountID, tenantID, sessionID, account.Principal)
		}
	}

	return deps
}

package magiclink

import (
	"context"
	"errors"

	"magiclink/internal/limiters"
	"magiclink/internal/stores"
	"magiclink/jwt"
	"magiclink/session"

	"github.com/redis/go-redis/v9"
)

// Engine defines a public type used by magiclink APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config          Config
	linkStore       *stores.MagicLinkStore
	createLimiter   *limiters.CreateLimiter
	sessionStore    *session.Store
	audit           *auditDispatcher
	metrics         *Metrics
	jwtManager      *jwt.Manager
	accountProvider AccountProvider
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*session.Session, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessionStore.Get(ctx, claims.TID, claims.SID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrStoreUnavailable
	}

	return sess, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	return e.LogoutInTenant(ctx, tenantIDFromContext(ctx), sessionID)
}

// LogoutInTenant describes the logoutintenant operation and its observable behavior.
//
// LogoutInTenant may return an error when input validation, dependency calls, or security checks fail.
// LogoutInTenant does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutInTenant(ctx context.Context, tenantID, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	err := e.sessionStore.Delete(ctx, tenantID, sessionID)
	if err == nil {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, "", tenantID, "", err, func() map[string]string {
		return map[string]string{
			"session_id": sessionID,
		}
	})
	return err
}

// LogoutByAccessToken describes the logoutbyaccesstoken operation and its observable behavior.
//
// LogoutByAccessToken may return an error when input validation, dependency calls, or security checks fail.
// LogoutByAccessToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutByAccessToken(ctx context.Context, tokenStr string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", tenantIDFromContext(ctx), "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		return ErrTokenInvalid
	}

	return e.LogoutInTenant(ctx, claims.TID, claims.SID)
}

// LogoutAllForAccount describes the logoutallforaccount operation and its observable behavior.
//
// LogoutAllForAccount may return an error when input validation, dependency calls, or security checks fail.
// LogoutAllForAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAllForAccount(ctx context.Context, accountID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	tenantID := tenantIDFromContext(ctx)
	err := e.sessionStore.DeleteAllForAccount(ctx, tenantID, accountID)
	if err == nil {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, accountID, tenantID, "", err, nil)
	return err
}

package magiclink

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLinkCreated        = "link_created"
	auditEventLinkSuperseded     = "link_superseded"
	auditEventLoginAccepted      = "login_accepted"
	auditEventLoginRejected      = "login_rejected"
	auditEventSessionCreated     = "session_created"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventConfigWarning      = "config_warning"
)

// AuditErrorCode defines a public type used by magiclink APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrNotFound              AuditErrorCode = "link_not_found"
	auditErrPrincipalMismatch     AuditErrorCode = "principal_mismatch"
	auditErrExpired               AuditErrorCode = "link_expired"
	auditErrIPMismatch            AuditErrorCode = "ip_mismatch"
	auditErrBrowserMismatch       AuditErrorCode = "browser_mismatch"
	auditErrTooManyUses           AuditErrorCode = "too_many_uses"
	auditErrSuperuserNotAllowed   AuditErrorCode = "superuser_not_allowed"
	auditErrStaffNotAllowed       AuditErrorCode = "staff_not_allowed"
	auditErrAccountNotFound       AuditErrorCode = "account_not_found"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrPrincipalInvalid      AuditErrorCode = "principal_invalid"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tenantID string,
	linkID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		TenantID:  tenantID,
		LinkID:    linkID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if metadata != nil {
		event.Principal = metadata["principal"]
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrLinkNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrPrincipalMismatch):
		return auditErrPrincipalMismatch
	case errors.Is(err, ErrLinkExpired):
		return auditErrExpired
	case errors.Is(err, ErrIPMismatch):
		return auditErrIPMismatch
	case errors.Is(err, ErrBrowserMismatch):
		return auditErrBrowserMismatch
	case errors.Is(err, ErrTooManyUses):
		return auditErrTooManyUses
	case errors.Is(err, ErrSuperuserNotAllowed):
		return auditErrSuperuserNotAllowed
	case errors.Is(err, ErrStaffNotAllowed):
		return auditErrStaffNotAllowed
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrCreateRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPrincipalInvalid):
		return auditErrPrincipalInvalid
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

package magiclink

import "errors"

var (
	// ErrLinkNotFound is returned when no link matches the presented token.
	ErrLinkNotFound = errors.New("magic link not found")
	// ErrPrincipalMismatch is returned when the presented principal does not match the link.
	ErrPrincipalMismatch = errors.New("magic link principal mismatch")
	// ErrLinkExpired is returned when the link is presented after its expiry.
	ErrLinkExpired = errors.New("magic link expired")
	// ErrIPMismatch is returned when same-IP binding is enforced and the request IP differs.
	ErrIPMismatch = errors.New("magic link ip mismatch")
	// ErrBrowserMismatch is returned when same-browser binding is enforced and the cookie differs.
	ErrBrowserMismatch = errors.New("magic link browser mismatch")
	// ErrTooManyUses is returned when the link is disabled or its use count is exhausted.
	ErrTooManyUses = errors.New("magic link already used")
	// ErrSuperuserNotAllowed is returned when superuser login via magic link is disabled.
	ErrSuperuserNotAllowed = errors.New("superuser login not allowed")
	// ErrStaffNotAllowed is returned when staff login via magic link is disabled.
	ErrStaffNotAllowed = errors.New("staff login not allowed")
	// ErrAccountNotFound is returned when the link's principal resolves to no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCreateRateLimited is returned when link creation violates the request spacing window.
	ErrCreateRateLimited = errors.New("too many magic login requests")
	// ErrPrincipalInvalid is returned when link creation is attempted with an empty principal.
	ErrPrincipalInvalid = errors.New("invalid principal")
	// ErrStoreUnavailable is returned when the persistence backend cannot be reached.
	ErrStoreUnavailable = errors.New("magic link backend unavailable")
	// ErrSessionNotFound is returned when a presented session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCreationFailed is returned when session establishment fails after acceptance.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is returned when the engine is missing a required collaborator.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrTokenInvalid is returned for malformed or unverifiable access tokens.
	ErrTokenInvalid = errors.New("invalid token")
)

// IsValidationError reports whether err is one of the terminal validation
// rejections. Terminal rejections are security decisions and must not be
// retried for the same link.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrLinkNotFound),
		errors.Is(err, ErrPrincipalMismatch),
		errors.Is(err, ErrLinkExpired),
		errors.Is(err, ErrIPMismatch),
		errors.Is(err, ErrBrowserMismatch),
		errors.Is(err, ErrTooManyUses),
		errors.Is(err, ErrSuperuserNotAllowed),
		errors.Is(err, ErrStaffNotAllowed),
		errors.Is(err, ErrAccountNotFound):
		return true
	}
	return false
}

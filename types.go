package magiclink

import (
	"context"
	"errors"
	"time"
)

// Link is the public view of a persisted magic link. The raw Token is only
// populated on the value returned by [Engine.CreateLink]; the store retains a
// hash of it.
type Link struct {
	ID          string
	Principal   string
	Token       string
	Expiry      time.Time
	RedirectURL string
	CookieValue string
	IPAddress   string
	TimesUsed   int
	Disabled    bool
	Created     time.Time
}

// VerifyRequest carries one presentation of a magic link: the token from the
// URL, the principal identifier (when policy requires it), and the per-link
// binding cookie value read from the browser. The client IP travels on the
// context via [WithClientIP].
type VerifyRequest struct {
	Token       string
	Principal   string
	CookieValue string
}

// AccountRecord is the account resolved for a link's principal. The role flags
// gate elevated-privilege logins per [LinkConfig].
type AccountRecord struct {
	AccountID   string
	Principal   string
	TenantID    string
	IsSuperuser bool
	IsStaff     bool
}

// AccountProvider is the interface callers must implement to integrate
// magiclink with their account database. Lookup errors other than context
// cancellation are treated as "account not found" — a validation failure, not
// a system fault.
type AccountProvider interface {
	GetAccountByPrincipal(ctx context.Context, principal string) (AccountRecord, error)
}

// LoginResult is returned by [Engine.LoginWithLink] after an ACCEPTED
// validation. It carries the established session and the binding cookie the
// HTTP layer must expire on the way out.
type LoginResult struct {
	AccountID   string
	Principal   string
	SessionID   string
	AccessToken string
	RedirectURL string

	// ClearCookieName/ClearCookieValue identify the per-link binding cookie
	// to expire in the response; both are empty when same-browser binding is
	// disabled.
	ClearCookieName  string
	ClearCookieValue string
}

// ReasonForError maps a validation rejection to the human-readable message
// approved for display. Raw tokens and cookie values never appear in these
// strings.
func ReasonForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLinkNotFound):
		return "A magic link with that token could not be found"
	case errors.Is(err, ErrPrincipalMismatch):
		return "The magic link does not match the supplied account"
	case errors.Is(err, ErrLinkExpired):
		return "Magic link has expired"
	case errors.Is(err, ErrIPMismatch):
		return "Magic link was requested from a different IP address"
	case errors.Is(err, ErrBrowserMismatch):
		return "Magic link was requested from a different browser"
	case errors.Is(err, ErrTooManyUses):
		return "Magic link already used"
	case errors.Is(err, ErrSuperuserNotAllowed):
		return "You can not login to a super user account using a magic link"
	case errors.Is(err, ErrStaffNotAllowed):
		return "You can not login to a staff account using a magic link"
	case errors.Is(err, ErrAccountNotFound):
		return "No account was found for this magic link"
	case errors.Is(err, ErrCreateRateLimited):
		return "Too many magic login requests"
	default:
		return "Login failed"
	}
}

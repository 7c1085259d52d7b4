// Package httpapi mounts the browser-facing magic-link endpoints on a stdlib
// http.ServeMux: the login-verify endpoint that consumes a presented link and
// the authenticated link-request endpoint that issues one.
package httpapi

import "time"

// Config controls routing, cookies, and the failure chain for the HTTP
// surface.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	VerifyPath  string // login-verify endpoint path
	RequestPath string // authenticated link-request endpoint path

	PrincipalParam string // query parameter carrying the principal ("email" or "username")

	// Failure chain on rejected validation: redirect to FailureRedirectURL
	// when set, else render a JSON failure body when ShowFailureBody is true,
	// else respond 404.
	FailureRedirectURL string
	ShowFailureBody    bool

	CookieDomain      string // may be empty for host-only binding cookies
	SecureCookies     bool
	SessionCookieName string // cookie carrying the access token after login

	TenantHeader string // header carrying the tenant ID; empty disables tenant extraction
}

func (c *Config) normalize() {
	if c.VerifyPath == "" {
		c.VerifyPath = "/auth/magiclink/verify"
	}
	if c.RequestPath == "" {
		c.RequestPath = "/auth/magiclink/request"
	}
	if c.PrincipalParam == "" {
		c.PrincipalParam = "email"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "ml_session"
	}
}

// FailureResponse is the JSON failure body rendered when the failure chain
// reaches the body stage.
type FailureResponse struct {
	Error string `json:"error"`
}

// LinkIssuedResponse is returned by the link-request endpoint when the caller
// asks for a JSON body instead of the redirect.
type LinkIssuedResponse struct {
	LoginURL  string    `json:"login_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

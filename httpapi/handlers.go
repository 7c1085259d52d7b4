package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"magiclink"
)

// Utilities

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, FailureResponse{Error: msg})
}

func serverErr(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, FailureResponse{Error: "internal_server_error"})
}

func clientIP(r *http.Request) string {
	// NOTE: hosts behind a proxy can replace RemoteAddr with a forwarded chain
	// extractor upstream.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractBearer(h string) string {
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func isSafeRedirectPath(p string) bool {
	// Only relative paths: no //host, no scheme-looking strings.
	if p == "" {
		return true
	}
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.Contains(p, "://") {
		return false
	}
	return true
}

// requestContext attaches the caller's IP, User-Agent, and tenant to the
// request context for the engine's binding checks and audit stream.
func (s *Server) requestContext(r *http.Request) context.Context {
	ctx := magiclink.WithClientIP(r.Context(), clientIP(r))
	ctx = magiclink.WithUserAgent(ctx, r.UserAgent())
	if s.cfg.TenantHeader != "" {
		if tenant := r.Header.Get(s.cfg.TenantHeader); tenant != "" {
			ctx = magiclink.WithTenantID(ctx, tenant)
		}
	}
	return ctx
}

// Handlers

// GET {VerifyPath}?token=...&email=...
// Browser flow: consume the presented link, establish the session, and
// redirect. Rejections run the failure chain.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(r)

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	principal := strings.TrimSpace(r.URL.Query().Get(s.cfg.PrincipalParam))

	// The binding cookie is named per link, so the record is looked up first
	// without charging a use.
	cookieValue := ""
	switch peeked, err := s.engine.PeekLink(ctx, token); {
	case err == nil:
		if peeked.CookieValue != "" {
			if c, err := r.Cookie(magiclink.LinkCookieName(peeked.ID)); err == nil {
				cookieValue = c.Value
			}
		}
	case errors.Is(err, magiclink.ErrLinkNotFound):
		// Validation reports the unknown token itself; nothing is charged.
	default:
		// A backend fault here must not reach validation: proceeding without
		// the cookie would burn a valid link on a browser-mismatch once the
		// store recovers mid-request.
		s.failLogin(w, r, err)
		return
	}

	result, err := s.engine.LoginWithLink(ctx, magiclink.VerifyRequest{
		Token:       token,
		Principal:   principal,
		CookieValue: cookieValue,
	})
	if err != nil {
		s.failLogin(w, r, err)
		return
	}

	if result.ClearCookieName != "" {
		s.clearBindingCookie(w, result.ClearCookieName)
	}
	s.setSessionCookie(w, result.AccessToken)

	target := result.RedirectURL
	if !isSafeRedirectPath(target) {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// GET {RequestPath}?next=... (requires a valid session)
// Issues a fresh magic link for the caller's own principal, plants the
// binding cookie, and redirects to the generated login URL. format=json
// returns the URL instead of redirecting.
func (s *Server) handleRequestLink(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(r)

	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		if c, err := r.Cookie(s.cfg.SessionCookieName); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		unauthorized(w, "no_session")
		return
	}

	sess, err := s.engine.ValidateAccess(ctx, raw)
	if err != nil {
		unauthorized(w, "invalid_session")
		return
	}
	if sess.TenantID != "" {
		ctx = magiclink.WithTenantID(ctx, sess.TenantID)
	}

	next := strings.TrimSpace(r.URL.Query().Get("next"))
	if !isSafeRedirectPath(next) {
		writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "invalid_redirect_path"})
		return
	}

	link, err := s.engine.CreateLink(ctx, sess.Principal, next)
	if err != nil {
		if errors.Is(err, magiclink.ErrCreateRateLimited) {
			w.Header().Set("Retry-After", "30")
			writeJSON(w, http.StatusTooManyRequests, FailureResponse{Error: "too_many_requests"})
			return
		}
		serverErr(w)
		return
	}

	loginURL, err := s.engine.GenerateURL(link)
	if err != nil {
		serverErr(w)
		return
	}

	if link.CookieValue != "" {
		s.setBindingCookie(w, magiclink.LinkCookieName(link.ID), link.CookieValue, link.Expiry)
	}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, LinkIssuedResponse{
			LoginURL:  loginURL,
			ExpiresAt: link.Expiry,
		})
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// failLogin runs the rejection chain: configured failure redirect, then the
// JSON failure body with the approved human-readable reason, then 404.
func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	if s.cfg.FailureRedirectURL != "" {
		http.Redirect(w, r, s.cfg.FailureRedirectURL, http.StatusFound)
		return
	}
	if s.cfg.ShowFailureBody {
		writeJSON(w, statusForError(err), FailureResponse{Error: magiclink.ReasonForError(err)})
		return
	}
	http.NotFound(w, r)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, magiclink.ErrCreateRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, magiclink.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

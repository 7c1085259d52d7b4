package httpapi

import (
	"net/http"

	"magiclink"
)

// Server is the public entry providing an http.Handler with both magic-link
// endpoints mounted. It does not start listening.
type Server struct {
	cfg    Config
	engine *magiclink.Engine
	mux    *http.ServeMux
}

// New creates a new Server around an initialized [magiclink.Engine].
func New(cfg Config, engine *magiclink.Engine) *Server {
	cfg.normalize()

	s := &Server{
		cfg:    cfg,
		engine: engine,
		mux:    http.NewServeMux(),
	}

	s.mountRoutes()
	return s
}

// Handler returns the http.Handler with security headers applied. Magic-link
// URLs carry bearer-equivalent tokens, so responses are never cacheable and
// the token must not leak through the Referer header.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) mountRoutes() {
	s.handle("GET", s.cfg.VerifyPath, s.handleVerify)
	s.handle("GET", s.cfg.RequestPath, s.handleRequestLink)
}

// handle attaches a method-guarded route onto the stdlib ServeMux.
func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

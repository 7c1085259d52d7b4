package magiclink

import (
	"errors"
	"time"
)

// Config defines a public type used by magiclink APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Link        LinkConfig
	Session     SessionConfig
	JWT         JWTConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	MultiTenant MultiTenantConfig
}

/*
====================================
LINK CONFIG
====================================
*/

// PrincipalField selects which account identifier magic links are bound to.
type PrincipalField string

const (
	// PrincipalEmail binds links to the account email address.
	PrincipalEmail PrincipalField = "email"
	// PrincipalUsername binds links to the account username.
	PrincipalUsername PrincipalField = "username"
)

// LinkConfig is the issuing and validation policy for magic links.
//
// LinkConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LinkConfig struct {
	TokenLength           int           // characters of the random token; values below 20 weaken brute-force resistance
	AuthTimeout           time.Duration // link lifetime from creation
	LoginRequestTimeLimit time.Duration // minimum spacing between creations for the same principal
	OneTokenPerPrincipal  bool          // creating a link disables all prior active links for the principal
	TokenUses             int           // presentations before the link is force-disabled

	RequireSameIP      bool // reject when the presenting IP differs from the stored IP
	AnonymizeIP        bool // zero the last IPv4 octet before storing and comparing
	RequireSameBrowser bool // reject when the per-link binding cookie differs

	AllowSuperuserLogin bool
	AllowStaffLogin     bool

	PrincipalField         PrincipalField // "email" (default) or "username"
	PrincipalIgnoreCase    bool           // normalize principal case on create and validate
	VerifyIncludePrincipal bool           // require the principal alongside the token at validation

	EnableIPThrottle bool // additionally throttle creations per requesting IP

	BaseURL            string // absolute origin for generated login URLs, e.g. "https://studio.example.com"
	VerifyPath         string // path of the login-verify endpoint
	DefaultRedirectURL string // destination after login when none is supplied at creation

	AuditRetention time.Duration // how long consumed/expired records are retained for audit
	RedisPrefix    string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by magiclink APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by magiclink APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// AuditConfig defines a public type used by magiclink APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by magiclink APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
MULTI TENANT CONFIG
====================================
*/

// MultiTenantConfig defines a public type used by magiclink APIs.
//
// MultiTenantConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MultiTenantConfig struct {
	Enabled          bool
	TenantHeader     string
	EnforceIsolation bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// tokenLengthWarnThreshold is the length below which generated tokens are
// considered too short for comfortable brute-force margins.
const tokenLengthWarnThreshold = 20

// DefaultConfig returns the policy defaults: 50-character tokens, 5-minute
// link lifetime, 30-second creation spacing, single-use links bound to the
// requesting browser and anonymized IP. Callers adjust the returned value and
// pass it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Link: LinkConfig{
			TokenLength:            50,
			AuthTimeout:            5 * time.Minute,
			LoginRequestTimeLimit:  30 * time.Second,
			OneTokenPerPrincipal:   true,
			TokenUses:              1,
			RequireSameIP:          true,
			AnonymizeIP:            true,
			RequireSameBrowser:     true,
			AllowSuperuserLogin:    true,
			AllowStaffLogin:        true,
			PrincipalField:         PrincipalEmail,
			PrincipalIgnoreCase:    true,
			VerifyIncludePrincipal: true,
			EnableIPThrottle:       false,
			VerifyPath:             "/auth/magiclink/verify",
			DefaultRedirectURL:     "/",
			AuditRetention:         30 * 24 * time.Hour,
			RedisPrefix:            "ml",
		},
		Session: SessionConfig{
			RedisPrefix: "ms",
			TTL:         24 * time.Hour,
		},
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		MultiTenant: MultiTenantConfig{
			Enabled:          false,
			TenantHeader:     "X-Tenant-ID",
			EnforceIsolation: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Link policy
	if c.Link.TokenLength <= 0 {
		return errors.New("Link TokenLength must be > 0")
	}
	if c.Link.AuthTimeout <= 0 {
		return errors.New("Link AuthTimeout must be > 0")
	}
	if c.Link.LoginRequestTimeLimit < 0 {
		return errors.New("Link LoginRequestTimeLimit must be >= 0")
	}
	if c.Link.TokenUses <= 0 {
		return errors.New("Link TokenUses must be > 0")
	}
	switch c.Link.PrincipalField {
	case PrincipalEmail, PrincipalUsername:
		// valid
	default:
		return errors.New("Link PrincipalField must be \"email\" or \"username\"")
	}
	if c.Link.AuditRetention < c.Link.AuthTimeout {
		return errors.New("Link AuditRetention must be >= AuthTimeout")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

// warnings returns non-fatal configuration findings. They are surfaced at
// Build time through the standard logger and the audit stream rather than
// silently clamped.
func (c *Config) warnings() []string {
	var out []string
	if c.Link.TokenLength < tokenLengthWarnThreshold {
		out = append(out, "short Link TokenLength values make magic links more susceptible to brute force attacks")
	}
	return out
}

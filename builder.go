package magiclink

import (
	"context"
	"errors"
	"log"

	"magiclink/internal/limiters"
	"magiclink/internal/stores"
	"magiclink/jwt"
	"magiclink/session"

	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by magiclink APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	accountProvider AccountProvider
	auditSink       AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider describes the withaccountprovider operation and its observable behavior.
//
// WithAccountProvider may return an error when input validation, dependency calls, or security checks fail.
// WithAccountProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountProvider(ap AccountProvider) *Builder {
	b.accountProvider = ap
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accountProvider == nil {
		return nil, errors.New("account provider required")
	}

	engine := &Engine{
		config: cloneConfig(cfg),
	}

	engine.accountProvider = b.accountProvider
	engine.linkStore = stores.NewMagicLinkStore(b.redis, cfg.Link.RedisPrefix)
	engine.createLimiter = limiters.NewCreateLimiter(b.redis, limiters.CreateConfig{
		EnableIPThrottle: cfg.Link.EnableIPThrottle,
		Window:           cfg.Link.LoginRequestTimeLimit,
		MaxRequests:      1,
	})
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// Non-fatal policy findings are logged and audited, never clamped.
	for _, warning := range cfg.warnings() {
		log.Print("magiclink: " + warning)
		engine.emitAudit(context.Background(), auditEventConfigWarning, false, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"warning": warning,
			}
		})
	}

	b.built = true

	return engine, nil
}

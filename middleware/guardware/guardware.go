package guardware

import (
	"github.com/gofiber/fiber/v2"
	authsession "github.com/goliatone/go-authsession"
)

// DefaultContextKey is where the evaluated session is stored in fiber locals
const DefaultContextKey = "auth_session"

type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(*fiber.Ctx) bool
	// Guards are evaluated in order, the first deny wins
	Guards []authsession.Guard
	// DenyHandler handles a denied request, defaults to a redirect to
	// Decision.Redirect
	DenyHandler func(*fiber.Ctx, authsession.Decision) error
	// ContextKey stores the session snapshot used for the decision
	ContextKey string
	// RedirectStatus used by the default DenyHandler
	RedirectStatus int
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	ContextKey:     DefaultContextKey,
	RedirectStatus: fiber.StatusFound,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		cfg := ConfigDefault
		cfg.DenyHandler = redirectHandler(cfg.RedirectStatus)
		return cfg
	}

	cfg := config[0]
	if cfg.ContextKey == "" {
		cfg.ContextKey = ConfigDefault.ContextKey
	}
	if cfg.RedirectStatus == 0 {
		cfg.RedirectStatus = ConfigDefault.RedirectStatus
	}
	if cfg.DenyHandler == nil {
		cfg.DenyHandler = redirectHandler(cfg.RedirectStatus)
	}
	return cfg
}

// New creates a fiber handler running the configured guards
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		decision := authsession.Evaluate(c.UserContext(), cfg.Guards...)
		c.Locals(cfg.ContextKey, decision.Session)
		c.SetUserContext(authsession.WithSession(c.UserContext(), decision.Session))

		if !decision.Allowed() {
			return cfg.DenyHandler(c, decision)
		}

		return c.Next()
	}
}

// RequireAuthenticated sends anonymous visitors to the login route
func RequireAuthenticated(g *authsession.Guards, config ...Config) fiber.Handler {
	return withGuards(config, g.Authenticated())
}

// RequireUnauthenticated sends signed in users to the home route
func RequireUnauthenticated(g *authsession.Guards, config ...Config) fiber.Handler {
	return withGuards(config, g.Unauthenticated())
}

// RequireRole sends everyone without role to the home route
func RequireRole(g *authsession.Guards, role authsession.Role, config ...Config) fiber.Handler {
	return withGuards(config, g.Role(role))
}

// SessionFromContext returns the session stored by the middleware
func SessionFromContext(c *fiber.Ctx, key ...string) (authsession.Session, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	session, ok := c.Locals(k).(authsession.Session)
	return session, ok
}

func withGuards(config []Config, guard authsession.Guard) fiber.Handler {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg.Guards = append([]authsession.Guard{guard}, cfg.Guards...)
	return New(cfg)
}

func redirectHandler(status int) func(*fiber.Ctx, authsession.Decision) error {
	return func(c *fiber.Ctx, d authsession.Decision) error {
		if d.Redirect == "" {
			return fiber.NewError(fiber.StatusForbidden, d.Reason)
		}
		return c.Redirect(d.Redirect, status)
	}
}

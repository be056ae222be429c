package authsession

import (
	"context"
	"time"
)

// SessionSource is the read side of the Store used by guards
type SessionSource interface {
	Current() Session
	Await(ctx context.Context) Session
}

// Outcome of a guard evaluation
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
)

// Decision is the result of a guard. Redirect is set on deny.
type Decision struct {
	Outcome  Outcome
	Redirect string
	Reason   string
	Session  Session
}

// Allowed reports whether navigation may proceed
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// Guard evaluates a navigation request
type Guard func(ctx context.Context) Decision

// GuardsOption configures Guards
type GuardsOption func(*Guards)

// WithGuardsLogger sets the logger
func WithGuardsLogger(logger Logger) GuardsOption {
	return func(g *Guards) {
		g.logger = logger
	}
}

// WithGuardsConfig sets the configuration used for routes and timeouts
func WithGuardsConfig(cfg Config) GuardsOption {
	return func(g *Guards) {
		g.cfg = cfg
	}
}

// WithGuardsMetrics sets the metrics recorder
func WithGuardsMetrics(m MetricsRecorder) GuardsOption {
	return func(g *Guards) {
		g.metrics = m
	}
}

// WithGuardsActivitySink records role denials
func WithGuardsActivitySink(sink ActivitySink) GuardsOption {
	return func(g *Guards) {
		g.activitySink = sink
	}
}

// Guards decides whether navigation to a protected screen may proceed.
// Guards never fail, every problem ends in a deny with a redirect.
type Guards struct {
	source       SessionSource
	cfg          Config
	logger       Logger
	metrics      MetricsRecorder
	activitySink ActivitySink
}

// NewGuards creates guards reading from source. When source is a *Store and
// no config is given, the Store config is used.
func NewGuards(source SessionSource, opts ...GuardsOption) *Guards {
	g := &Guards{source: source}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.cfg == nil {
		if store, ok := source.(*Store); ok {
			g.cfg = store.Config()
		}
	}

	g.cfg = normalizeConfig(g.cfg)
	g.logger = normalizeLogger(g.logger)
	g.metrics = normalizeMetrics(g.metrics)
	g.activitySink = normalizeActivitySink(g.activitySink)

	return g
}

// RequireAuthenticated allows authenticated sessions, everything else is
// sent to the login route.
func (g *Guards) RequireAuthenticated(ctx context.Context) Decision {
	session := g.snapshot(ctx)
	if session.IsAuthenticated() {
		return g.allow("authenticated", session)
	}
	return g.deny("authenticated", session, g.cfg.GetLoginRoute(), "not authenticated")
}

// RequireUnauthenticated allows anonymous sessions, signed in users are
// sent to the home route.
func (g *Guards) RequireUnauthenticated(ctx context.Context) Decision {
	session := g.snapshot(ctx)
	if !session.IsAuthenticated() {
		return g.allow("unauthenticated", session)
	}
	return g.deny("unauthenticated", session, g.cfg.GetHomeRoute(), "already authenticated")
}

// RequireRole allows authenticated sessions holding role. Every denial goes
// to the home route.
func (g *Guards) RequireRole(ctx context.Context, role Role) Decision {
	session := g.snapshot(ctx)
	if session.IsAuthenticated() && session.Identity.HasRole(role) {
		return g.allow("role", session)
	}

	reason := "missing role " + role.String()
	if !session.IsAuthenticated() {
		reason = "not authenticated"
	}

	if session.IsAuthenticated() {
		event := ActivityEvent{
			EventType: ActivityEventAuthorizationRejected,
			Actor:     ActorRef{ID: session.Identity.ID, Type: ActorTypeUser},
			UserID:    session.Identity.ID,
			Metadata: map[string]any{
				"required_role": role.String(),
				"role":          session.Identity.Role.String(),
			},
			OccurredAt: time.Now(),
		}
		if err := g.activitySink.Record(ctx, event); err != nil {
			g.logger.Warn("activity sink record failed", "event", string(event.EventType), "error", err)
		}
	}

	return g.deny("role", session, g.cfg.GetHomeRoute(), reason)
}

// Authenticated returns RequireAuthenticated as a Guard
func (g *Guards) Authenticated() Guard {
	return g.RequireAuthenticated
}

// Unauthenticated returns RequireUnauthenticated as a Guard
func (g *Guards) Unauthenticated() Guard {
	return g.RequireUnauthenticated
}

// Role returns RequireRole(role) as a Guard
func (g *Guards) Role(role Role) Guard {
	return func(ctx context.Context) Decision {
		return g.RequireRole(ctx, role)
	}
}

// Evaluate runs guards in order and returns the first deny. With no deny
// it returns the last allow, with no guards it allows.
func Evaluate(ctx context.Context, guards ...Guard) Decision {
	decision := Decision{Outcome: OutcomeAllow}
	for _, guard := range guards {
		if guard == nil {
			continue
		}
		decision = guard(ctx)
		if !decision.Allowed() {
			return decision
		}
	}
	return decision
}

// snapshot reads the session once. An unknown session waits for the first
// resolved value up to the resolve timeout and is treated as
// unauthenticated if it never arrives.
func (g *Guards) snapshot(ctx context.Context) Session {
	if ctx == nil {
		ctx = context.Background()
	}

	if g.source == nil {
		return Session{State: StateUnauthenticated}
	}

	session := g.source.Current()
	if !session.IsUnknown() {
		return session
	}

	if timeout := g.cfg.GetResolveTimeout(); timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		session = g.source.Await(waitCtx)
		cancel()
	}

	if session.IsUnknown() {
		g.logger.Debug("session unresolved, treating as unauthenticated")
		session.State = StateUnauthenticated
		session.Identity = nil
	}

	return session
}

func (g *Guards) allow(guard string, session Session) Decision {
	g.metrics.GuardEvaluated(guard, true)
	return Decision{
		Outcome: OutcomeAllow,
		Session: session,
	}
}

func (g *Guards) deny(guard string, session Session, redirect, reason string) Decision {
	g.metrics.GuardEvaluated(guard, false)
	g.logger.Debug("guard denied", "guard", guard, "reason", reason, "redirect", redirect)
	return Decision{
		Outcome:  OutcomeDeny,
		Redirect: redirect,
		Reason:   reason,
		Session:  session,
	}
}

package authsession

import "context"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession stores the Session snapshot in ctx
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the Session stored by WithSession
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// ActorFromContext returns the signed in identity as a user actor, or
// SystemActor when ctx carries no authenticated Session
func ActorFromContext(ctx context.Context) ActorRef {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return SystemActor
	}
	return actorFromSession(session)
}

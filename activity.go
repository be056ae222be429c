package authsession

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignInSuccess         ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure         ActivityEventType = "session.signin.failure"
	ActivityEventRegisterSuccess       ActivityEventType = "session.register.success"
	ActivityEventRegisterFailure       ActivityEventType = "session.register.failure"
	ActivityEventSignOut               ActivityEventType = "session.signout"
	ActivityEventForcedSignOut         ActivityEventType = "session.signout.forced"
	ActivityEventPasswordResetRequest  ActivityEventType = "session.password.reset_requested"
	ActivityEventPasswordChanged       ActivityEventType = "session.password.changed"
	ActivityEventProfileUpdated        ActivityEventType = "session.profile.updated"
	ActivityEventRoleChanged           ActivityEventType = "session.role.changed"
	ActivityEventAuthorizationRejected ActivityEventType = "session.authorization.rejected"
)

// ActorRef identifies who/what triggered a change.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// SystemActor is used for engine initiated changes
var SystemActor = ActorRef{Type: ActorTypeSystem}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

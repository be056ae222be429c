package authsession

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ProviderUser is the raw identity reported by the identity provider
type ProviderUser struct {
	ID            string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
}

// AuthStateListener receives provider auth state changes, nil means signed out
type AuthStateListener func(user *ProviderUser)

// IdentityProvider wraps the managed auth backend. Implementations map their
// own error codes into the package taxonomy (ErrInvalidCredentials, etc).
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*ProviderUser, error)
	SignUp(ctx context.Context, email, password string) (*ProviderUser, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// CurrentToken returns an empty string when nobody is signed in
	CurrentToken(ctx context.Context) (string, error)
	// OnAuthStateChange registers a listener and returns a function to remove it
	OnAuthStateChange(listener AuthStateListener) (unsubscribe func())
	UpdateDisplayName(ctx context.Context, displayName string) error
}

// PasswordChanger is implemented by providers that support changing the
// password of the signed in account.
type PasswordChanger interface {
	Reauthenticate(ctx context.Context, email, password string) error
	UpdatePassword(ctx context.Context, password string) error
}

// ProfileStore is the document store holding the extended profile fields
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
	SetProfile(ctx context.Context, id string, update ProfileUpdate, merge bool) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Profile, error)
}

// Navigator moves the presentation layer to a route
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(route string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(route string) {
	if f != nil {
		f(route)
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Config holds engine options
type Config interface {
	GetLoginRoute() string
	GetHomeRoute() string
	GetResolveTimeout() time.Duration
	GetProfileTimeout() time.Duration
	GetAuthEndpointMarkers() []string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] SESSION " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] SESSION " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] SESSION " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] SESSION " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

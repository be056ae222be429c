package authsession_test

import (
	"context"
	"sync"
	"time"

	authsession "github.com/goliatone/go-authsession"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements authsession.IdentityProvider. The
// registered auth state listener is captured so tests can drive callbacks
// with Emit.
type MockIdentityProvider struct {
	mock.Mock

	mu       sync.Mutex
	listener authsession.AuthStateListener
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, email, password string) (*authsession.ProviderUser, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*authsession.ProviderUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, email, password string) (*authsession.ProviderUser, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*authsession.ProviderUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) SendPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentityProvider) CurrentToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityProvider) UpdateDisplayName(ctx context.Context, displayName string) error {
	args := m.Called(ctx, displayName)
	return args.Error(0)
}

func (m *MockIdentityProvider) OnAuthStateChange(listener authsession.AuthStateListener) func() {
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.listener = nil
		m.mu.Unlock()
	}
}

// Emit delivers a provider auth state callback, nil means signed out
func (m *MockIdentityProvider) Emit(user *authsession.ProviderUser) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()

	if listener == nil {
		return
	}

	if user == nil {
		listener(nil)
		return
	}
	c := *user
	listener(&c)
}

func (m *MockIdentityProvider) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener != nil
}

// MockPasswordProvider adds authsession.PasswordChanger
type MockPasswordProvider struct {
	MockIdentityProvider
}

func (m *MockPasswordProvider) Reauthenticate(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func (m *MockPasswordProvider) UpdatePassword(ctx context.Context, password string) error {
	args := m.Called(ctx, password)
	return args.Error(0)
}

// MockProfileStore implements authsession.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(ctx context.Context, id string) (*authsession.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*authsession.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) SetProfile(ctx context.Context, id string, update authsession.ProfileUpdate, merge bool) (*authsession.Profile, error) {
	args := m.Called(ctx, id, update, merge)
	profile, _ := args.Get(0).(*authsession.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) UpdateProfile(ctx context.Context, id string, update authsession.ProfileUpdate) (*authsession.Profile, error) {
	args := m.Called(ctx, id, update)
	profile, _ := args.Get(0).(*authsession.Profile)
	return profile, args.Error(1)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []authsession.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event authsession.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []authsession.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authsession.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// sessionRecorder is an Observer collecting every delivery
type sessionRecorder struct {
	mu       sync.Mutex
	sessions []authsession.Session
}

func (r *sessionRecorder) Observe(s authsession.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

func (r *sessionRecorder) All() []authsession.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authsession.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *sessionRecorder) States() []authsession.State {
	all := r.All()
	out := make([]authsession.State, 0, len(all))
	for _, s := range all {
		out = append(out, s.State)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ada() *authsession.ProviderUser {
	return &authsession.ProviderUser{
		ID:            "uid-ada",
		Email:         "ada@example.com",
		DisplayName:   "Ada Provider",
		EmailVerified: true,
	}
}

func bob() *authsession.ProviderUser {
	return &authsession.ProviderUser{
		ID:    "uid-bob",
		Email: "bob@example.com",
	}
}

package authsession

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goliatone/go-authsession"

// Observer receives published sessions
type Observer func(Session)

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStoreConfig sets the engine configuration
func WithStoreConfig(cfg Config) StoreOption {
	return func(s *Store) {
		s.cfg = cfg
	}
}

// WithStoreActivitySink sets the sink receiving audit events
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *Store) {
		s.activitySink = sink
	}
}

// WithStoreMetrics sets the metrics recorder
func WithStoreMetrics(m MetricsRecorder) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithStoreTracer overrides the otel tracer, the global provider is used by default
func WithStoreTracer(t trace.Tracer) StoreOption {
	return func(s *Store) {
		s.tracer = t
	}
}

// WithStoreClock overrides time.Now, mostly for tests
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type subscriber struct {
	observer Observer
	removed  bool
}

type delivery struct {
	session Session
	targets []*subscriber
}

// Store owns the current Session and publishes every change to its
// subscribers. Publishes are queued under the lock and delivered by a
// single drainer outside of it, so observers may call back into the Store.
type Store struct {
	provider     IdentityProvider
	profiles     ProfileStore
	cfg          Config
	logger       Logger
	activitySink ActivitySink
	metrics      MetricsRecorder
	tracer       trace.Tracer
	now          func() time.Time

	mu            sync.Mutex
	current       Session
	providerUser  *ProviderUser
	subscribers   []*subscriber
	queue         []delivery
	draining      bool
	resolved      chan struct{}
	firstResolved Session

	// serializes provider callbacks so each one publishes in callback order
	applyMu sync.Mutex

	unsubscribeProvider func()
	closeOnce           sync.Once
}

// NewStore creates the Store and registers it with the provider auth state
// callback. Until the provider first reports, Current returns the unknown
// placeholder.
func NewStore(provider IdentityProvider, profiles ProfileStore, opts ...StoreOption) (*Store, error) {
	if provider == nil {
		return nil, goerrors.New("identity provider is required", goerrors.CategoryBadInput)
	}
	if profiles == nil {
		return nil, goerrors.New("profile store is required", goerrors.CategoryBadInput)
	}

	s := &Store{
		provider: provider,
		profiles: profiles,
		now:      time.Now,
		current:  UnknownSession(),
		resolved: make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cfg = normalizeConfig(s.cfg)
	s.logger = normalizeLogger(s.logger)
	s.activitySink = normalizeActivitySink(s.activitySink)
	s.metrics = normalizeMetrics(s.metrics)
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}

	s.unsubscribeProvider = provider.OnAuthStateChange(s.handleProviderChange)

	return s, nil
}

// Config returns the engine configuration
func (s *Store) Config() Config {
	return s.cfg
}

// Current returns the last published Session
func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Authenticated reports whether the current Session holds an identity
func (s *Store) Authenticated() bool {
	return s.Current().IsAuthenticated()
}

// Await returns the current Session, or when it is still unknown blocks
// until the first resolved value is published or ctx is done.
func (s *Store) Await(ctx context.Context) Session {
	s.mu.Lock()
	current := s.current.clone()
	resolved := s.resolved
	s.mu.Unlock()

	if !current.IsUnknown() {
		return current
	}

	select {
	case <-resolved:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.firstResolved.clone()
	case <-ctx.Done():
		return s.Current()
	}
}

// Subscribe registers observer. It is called once with the current Session
// and then once for every later publish, in publish order.
func (s *Store) Subscribe(observer Observer) *Subscription {
	sub := &subscriber{observer: observer}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.queue = append(s.queue, delivery{
		session: s.current.clone(),
		targets: []*subscriber{sub},
	})
	s.mu.Unlock()

	s.drain()

	return &Subscription{store: s, sub: sub}
}

// Subscription is returned by Subscribe
type Subscription struct {
	store *Store
	sub   *subscriber
	once  sync.Once
}

// Unsubscribe stops deliveries to the observer
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.store == nil {
		return
	}
	sub.once.Do(func() {
		s := sub.store
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.sub.removed = true
		s.subscribers = slices.DeleteFunc(s.subscribers, func(c *subscriber) bool {
			return c == sub.sub
		})
	})
}

// Close unregisters the Store from the provider callback
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.unsubscribeProvider != nil {
			s.unsubscribeProvider()
		}
	})
	return nil
}

// SignIn authenticates against the provider, records the login time on the
// profile document and publishes the merged identity. When the login time
// cannot be written the stored document still decides the role. Only an
// unreadable document falls back to the provider identity.
func (s *Store) SignIn(ctx context.Context, email, password string) (identity Identity, err error) {
	ctx, span := s.startSpan(ctx, "authsession.SignIn")
	defer func() { endSpan(span, err) }()

	user, err := s.provider.SignIn(ctx, email, password)
	if err == nil && user == nil {
		err = goerrors.New("provider returned no user", goerrors.CategoryExternal)
	}
	if err != nil {
		err = MapProviderError(err)
		s.logger.Error("sign in failed", "error", err)
		s.metrics.OperationFailed("signin", TextCode(err))
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSignInFailure,
			Actor:     ActorRef{Type: ActorTypeUser},
			Metadata: map[string]any{
				"email": email,
				"code":  TextCode(err),
			},
		})
		return Identity{}, err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	now := s.now()
	update := ProfileUpdate{LastLogin: &now}

	existing, getErr := s.profiles.GetProfile(ctx, user.ID)
	readable := getErr == nil || IsProfileNotFound(getErr)
	if getErr != nil {
		existing = nil
	}

	if IsProfileNotFound(getErr) {
		// accounts created outside Register get their document on first login
		update.Email = ptr(user.Email)
		update.Role = ptr(RoleUser)
		update.CreatedAt = &now
		if user.DisplayName != "" {
			update.DisplayName = ptr(user.DisplayName)
		}
	}

	var profile *Profile
	if !readable {
		// a blind merge could create a document without role or creation time
		s.logger.Warn("sign in profile fetch failed, skipping last login write", "user_id", user.ID, "error", getErr)
		s.metrics.OperationFailed("signin.profile", TextCode(getErr))
	} else {
		written, setErr := s.profiles.SetProfile(ctx, user.ID, update, true)
		switch {
		case setErr == nil:
			profile = written
		case existing != nil:
			s.logger.Warn("sign in profile write failed, using stored document", "user_id", user.ID, "error", setErr)
			s.metrics.OperationFailed("signin.profile", TextCode(setErr))
			stored := *existing
			update.Apply(&stored)
			profile = &stored
		default:
			s.logger.Warn("sign in profile write failed", "user_id", user.ID, "error", setErr)
			s.metrics.OperationFailed("signin.profile", TextCode(setErr))
		}
	}

	identity = MergeIdentity(*user, profile)
	s.publishIdentity(user, identity)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		Actor:     ActorRef{ID: user.ID, Type: ActorTypeUser},
		UserID:    user.ID,
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	return identity.clone(), nil
}

// Register creates the provider account, writes the initial profile
// document and publishes the new identity. If the document write fails the
// account still exists and stays signed in: the provider identity is
// published and returned together with an Unknown error, so a non-nil error
// does not mean nobody is signed in.
func (s *Store) Register(ctx context.Context, email, password, displayName string) (identity Identity, err error) {
	ctx, span := s.startSpan(ctx, "authsession.Register")
	defer func() { endSpan(span, err) }()

	user, err := s.provider.SignUp(ctx, email, password)
	if err == nil && user == nil {
		err = goerrors.New("provider returned no user", goerrors.CategoryExternal)
	}
	if err != nil {
		err = MapProviderError(err)
		s.logger.Error("register failed", "error", err)
		s.metrics.OperationFailed("register", TextCode(err))
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventRegisterFailure,
			Actor:     ActorRef{Type: ActorTypeUser},
			Metadata: map[string]any{
				"email": email,
				"code":  TextCode(err),
			},
		})
		return Identity{}, err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	registered := *user
	if displayName != "" {
		if dnErr := s.provider.UpdateDisplayName(ctx, displayName); dnErr != nil {
			// the profile document still carries the name and overrides the provider value
			s.logger.Warn("register display name update failed", "user_id", user.ID, "error", dnErr)
		}
		registered.DisplayName = displayName
	}

	now := s.now()
	update := ProfileUpdate{
		Email:     ptr(registered.Email),
		Role:      ptr(RoleUser),
		CreatedAt: &now,
		LastLogin: &now,
	}
	if registered.DisplayName != "" {
		update.DisplayName = ptr(registered.DisplayName)
	}

	profile, setErr := s.profiles.SetProfile(ctx, user.ID, update, false)
	if setErr != nil {
		s.logger.Error("register profile write failed", "user_id", user.ID, "error", setErr)
		s.metrics.OperationFailed("register.profile", TextCode(setErr))
		identity = MergeIdentity(registered, nil)
		s.publishIdentity(&registered, identity)
		return identity.clone(), NewUnknownError(setErr)
	}

	identity = MergeIdentity(registered, profile)
	s.publishIdentity(&registered, identity)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRegisterSuccess,
		Actor:     ActorRef{ID: user.ID, Type: ActorTypeUser},
		UserID:    user.ID,
		Metadata: map[string]any{
			"email": registered.Email,
		},
	})

	return identity.clone(), nil
}

// SignOut signs out of the provider and publishes the unauthenticated
// session. Provider failures are logged, local teardown always happens.
func (s *Store) SignOut(ctx context.Context) {
	s.signOut(ctx, ActivityEventSignOut, nil)
}

func (s *Store) signOut(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	ctx, span := s.startSpan(ctx, "authsession.SignOut")
	defer span.End()

	prev := s.Current()

	if metadata == nil {
		metadata = map[string]any{}
	}

	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("provider sign out failed", "error", err)
		s.metrics.OperationFailed("signout", TextCode(MapProviderError(err)))
		span.RecordError(err)
		metadata["provider_error"] = err.Error()
	}

	s.mu.Lock()
	var published bool
	var session Session
	if !s.current.IsUnauthenticated() {
		session = s.enqueueLocked(StateUnauthenticated, nil, nil)
		published = true
	}
	s.mu.Unlock()

	if published {
		s.metrics.SessionPublished(session.State)
		s.drain()
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: eventType,
		Actor:     actorFromSession(prev),
		UserID:    prev.UserID(),
		Metadata:  metadata,
	})
}

// ResetPasswordRequest asks the provider to send a password reset message.
// The session is left untouched.
func (s *Store) ResetPasswordRequest(ctx context.Context, email string) (err error) {
	ctx, span := s.startSpan(ctx, "authsession.ResetPasswordRequest")
	defer func() { endSpan(span, err) }()

	if err = s.provider.SendPasswordReset(ctx, email); err != nil {
		err = MapProviderError(err)
		s.logger.Error("password reset request failed", "error", err)
		s.metrics.OperationFailed("reset_password", TextCode(err))
		return err
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     actorFromSession(s.Current()),
		Metadata: map[string]any{
			"email": email,
		},
	})

	return nil
}

// UpdateProfile applies update to the current identity. Role changes are
// rejected, use UpdateRole.
func (s *Store) UpdateProfile(ctx context.Context, update ProfileUpdate) (identity Identity, err error) {
	ctx, span := s.startSpan(ctx, "authsession.UpdateProfile")
	defer func() { endSpan(span, err) }()

	current := s.Current()
	if !current.IsAuthenticated() {
		return Identity{}, ErrNoSession.Clone()
	}

	if update.Role != nil {
		return Identity{}, ErrPermissionDenied.Clone().WithMetadata(map[string]any{
			"reason": "role changes require UpdateRole",
		})
	}

	id := current.Identity.ID

	if update.DisplayName != nil {
		if err = s.provider.UpdateDisplayName(ctx, *update.DisplayName); err != nil {
			err = MapProviderError(err)
			s.logger.Error("update display name failed", "user_id", id, "error", err)
			s.metrics.OperationFailed("update_profile", TextCode(err))
			return Identity{}, err
		}
	}

	profile, err := s.profiles.SetProfile(ctx, id, update, true)
	if err != nil {
		err = MapProviderError(err)
		s.logger.Error("update profile failed", "user_id", id, "error", err)
		s.metrics.OperationFailed("update_profile", TextCode(err))
		return Identity{}, err
	}

	identity = s.republishFor(id, profile, func(u *ProviderUser) {
		if update.DisplayName != nil {
			u.DisplayName = *update.DisplayName
		}
	})

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		Actor:     ActorRef{ID: id, Type: ActorTypeUser},
		UserID:    id,
		Metadata:  profileUpdateMetadata(update),
	})

	return identity, nil
}

// UpdateRole changes the role of identityID. Users cannot change their own
// role, user actors must be the signed in admin, system actors are trusted.
func (s *Store) UpdateRole(ctx context.Context, actor ActorRef, identityID string, role Role) (err error) {
	ctx, span := s.startSpan(ctx, "authsession.UpdateRole")
	defer func() { endSpan(span, err) }()

	if identityID == "" {
		return goerrors.NewValidation("invalid role update", goerrors.FieldError{
			Field:   "identity_id",
			Message: "cannot be blank",
		})
	}

	if !role.IsValid() {
		return goerrors.NewValidation("invalid role update", goerrors.FieldError{
			Field:   "role",
			Message: fmt.Sprintf("must be one of %v", GetAllRoles()),
			Value:   string(role),
		})
	}

	if err = s.authorizeRoleChange(actor, identityID); err != nil {
		s.metrics.OperationFailed("update_role", TextCode(err))
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventAuthorizationRejected,
			Actor:     actor,
			UserID:    identityID,
			Metadata: map[string]any{
				"operation": "update_role",
				"role":      string(role),
			},
		})
		return err
	}

	profile, err := s.profiles.UpdateProfile(ctx, identityID, ProfileUpdate{Role: &role})
	if err != nil {
		err = MapProviderError(err)
		s.logger.Error("update role failed", "user_id", identityID, "error", err)
		s.metrics.OperationFailed("update_role", TextCode(err))
		return err
	}

	s.republishFor(identityID, profile, nil)

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     actor,
		UserID:    identityID,
		Metadata: map[string]any{
			"role": string(role),
		},
	})

	return nil
}

func (s *Store) authorizeRoleChange(actor ActorRef, identityID string) error {
	if actor.ID != "" && actor.ID == identityID {
		return ErrPermissionDenied.Clone().WithMetadata(map[string]any{
			"reason": "cannot change own role",
		})
	}

	switch actor.Type {
	case ActorTypeSystem:
		return nil
	case ActorTypeUser:
		current := s.Current()
		if current.IsAuthenticated() && current.Identity.ID == actor.ID && current.Identity.IsAdmin() {
			return nil
		}
		return ErrPermissionDenied.Clone().WithMetadata(map[string]any{
			"reason": "actor is not the signed in admin",
		})
	default:
		return ErrPermissionDenied.Clone().WithMetadata(map[string]any{
			"reason": "unsupported actor type",
		})
	}
}

// ChangePassword reauthenticates the current identity and sets a new
// password. The provider must implement PasswordChanger.
func (s *Store) ChangePassword(ctx context.Context, currentPassword, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, "authsession.ChangePassword")
	defer func() { endSpan(span, err) }()

	changer, ok := s.provider.(PasswordChanger)
	if !ok {
		return NewUnknownError(goerrors.New("provider does not support password changes", goerrors.CategoryOperation))
	}

	current := s.Current()
	if !current.IsAuthenticated() {
		return ErrNoSession.Clone()
	}

	id := current.Identity.ID

	if err = changer.Reauthenticate(ctx, current.Identity.Email, currentPassword); err != nil {
		err = MapProviderError(err)
		s.logger.Error("change password reauthentication failed", "user_id", id, "error", err)
		s.metrics.OperationFailed("change_password", TextCode(err))
		return err
	}

	if err = changer.UpdatePassword(ctx, newPassword); err != nil {
		err = MapProviderError(err)
		s.logger.Error("change password failed", "user_id", id, "error", err)
		s.metrics.OperationFailed("change_password", TextCode(err))
		return err
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: id, Type: ActorTypeUser},
		UserID:    id,
	})

	return nil
}

// handleProviderChange turns one provider callback into exactly one publish
func (s *Store) handleProviderChange(user *ProviderUser) {
	s.applyMu.Lock()

	var session Session
	if user == nil {
		s.mu.Lock()
		session = s.enqueueLocked(StateUnauthenticated, nil, nil)
		s.mu.Unlock()
	} else {
		u := *user
		identity := s.resolveIdentity(u)
		s.mu.Lock()
		session = s.enqueueLocked(StateAuthenticated, &identity, &u)
		s.mu.Unlock()
	}

	s.applyMu.Unlock()

	s.logger.Debug("provider auth state changed", "session", session.String())
	s.metrics.SessionPublished(session.State)
	s.drain()
}

func (s *Store) resolveIdentity(user ProviderUser) Identity {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetProfileTimeout())
	defer cancel()

	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		if !IsProfileNotFound(err) {
			s.logger.Warn("profile fetch failed, publishing provider identity", "user_id", user.ID, "error", err)
			s.metrics.OperationFailed("profile_fetch", TextCode(err))
		}
		return MergeIdentity(user, nil)
	}
	return MergeIdentity(user, profile)
}

func (s *Store) publishIdentity(user *ProviderUser, identity Identity) {
	u := *user
	s.mu.Lock()
	session := s.enqueueLocked(StateAuthenticated, &identity, &u)
	s.mu.Unlock()

	s.metrics.SessionPublished(session.State)
	s.drain()
}

// republishFor publishes a fresh merge when identityID is the current
// identity and returns the merged value, otherwise returns the profile
// projection without publishing.
func (s *Store) republishFor(identityID string, profile *Profile, patch func(*ProviderUser)) Identity {
	s.mu.Lock()
	if !s.current.IsAuthenticated() || s.current.Identity.ID != identityID || s.providerUser == nil {
		s.mu.Unlock()
		var user ProviderUser
		if profile != nil {
			user = ProviderUser{ID: identityID, Email: profile.Email}
		}
		return MergeIdentity(user, profile)
	}

	user := *s.providerUser
	if patch != nil {
		patch(&user)
	}
	identity := MergeIdentity(user, profile)
	session := s.enqueueLocked(StateAuthenticated, &identity, &user)
	s.mu.Unlock()

	s.metrics.SessionPublished(session.State)
	s.drain()

	return identity.clone()
}

// enqueueLocked builds the next Session and queues it for every current
// subscriber. Callers hold s.mu.
func (s *Store) enqueueLocked(state State, identity *Identity, user *ProviderUser) Session {
	next := Session{
		State: state,
		Seq:   s.current.Seq + 1,
		Epoch: s.current.Epoch,
	}

	if state == StateAuthenticated && identity != nil {
		id := identity.clone()
		next.Identity = &id
		if !s.current.IsAuthenticated() || s.current.Identity.ID != id.ID {
			next.Epoch++
		}
		s.providerUser = user
	} else {
		s.providerUser = nil
	}

	s.current = next

	if !next.IsUnknown() {
		select {
		case <-s.resolved:
		default:
			s.firstResolved = next.clone()
			close(s.resolved)
		}
	}

	if len(s.subscribers) > 0 {
		s.queue = append(s.queue, delivery{
			session: next.clone(),
			targets: slices.Clone(s.subscribers),
		})
	}

	return next.clone()
}

// drain delivers queued sessions. Only one goroutine drains at a time, a
// publish made while draining is delivered by the active drainer.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for len(s.queue) > 0 {
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]

		observers := make([]Observer, 0, len(d.targets))
		for _, sub := range d.targets {
			if !sub.removed && sub.observer != nil {
				observers = append(observers, sub.observer)
			}
		}

		s.mu.Unlock()
		for _, observer := range observers {
			s.notify(observer, d.session)
		}
		s.mu.Lock()
	}

	s.queue = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) notify(observer Observer, session Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session observer panicked", "panic", r, "session", session.String())
		}
	}()
	observer(session.clone())
}

func (s *Store) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record failed", "event", string(event.EventType), "error", err)
	}
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func actorFromSession(session Session) ActorRef {
	if session.IsAuthenticated() {
		return ActorRef{ID: session.Identity.ID, Type: ActorTypeUser}
	}
	return SystemActor
}

func profileUpdateMetadata(update ProfileUpdate) map[string]any {
	fields := make([]string, 0, 6)
	if update.Email != nil {
		fields = append(fields, "email")
	}
	if update.DisplayName != nil {
		fields = append(fields, "display_name")
	}
	if update.CreatedAt != nil {
		fields = append(fields, "created_at")
	}
	if update.LastLogin != nil {
		fields = append(fields, "last_login")
	}
	for key := range update.Metadata {
		fields = append(fields, "metadata."+key)
	}
	slices.Sort(fields)
	return map[string]any{"fields": fields}
}

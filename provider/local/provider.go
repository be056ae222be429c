package local

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	authsession "github.com/goliatone/go-authsession"
	"github.com/goliatone/go-authsession/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ResetNotifier delivers password reset tokens, e.g. by email
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// ResetNotifierFunc adapts a function to the ResetNotifier interface.
type ResetNotifierFunc func(ctx context.Context, email, token string) error

// SendPasswordReset implements ResetNotifier.
func (f ResetNotifierFunc) SendPasswordReset(ctx context.Context, email, token string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, token)
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger
func WithLogger(logger authsession.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithResetNotifier sets the reset token delivery
func WithResetNotifier(n ResetNotifier) Option {
	return func(p *Provider) {
		p.notifier = n
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

type listenerEntry struct {
	id       uint64
	listener authsession.AuthStateListener
}

// Provider implements authsession.IdentityProvider and
// authsession.PasswordChanger on top of the accounts table.
type Provider struct {
	accounts *repository.AccountRepository
	cfg      Config
	notifier ResetNotifier
	logger   authsession.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *authsession.ProviderUser
	listeners []listenerEntry
	nextID    uint64
}

var (
	_ authsession.IdentityProvider = (*Provider)(nil)
	_ authsession.PasswordChanger  = (*Provider)(nil)
)

// New creates a Provider
func New(accounts *repository.AccountRepository, cfg Config, opts ...Option) (*Provider, error) {
	if accounts == nil {
		return nil, goerrors.New("local: account repository is required", goerrors.CategoryBadInput)
	}
	if len(cfg.SigningKey) == 0 {
		return nil, goerrors.New("local: signing key is required", goerrors.CategoryBadInput)
	}

	p := &Provider{
		accounts: accounts,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.logger == nil {
		p.logger = noopLogger{}
	}

	return p, nil
}

// SignIn implements authsession.IdentityProvider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*authsession.ProviderUser, error) {
	if validateEmail(email) != nil || password == "" {
		return nil, authsession.ErrInvalidCredentials.Clone()
	}

	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, authsession.ErrInvalidCredentials.Clone()
		}
		return nil, err
	}

	if account.Disabled {
		return nil, authsession.ErrAccountDisabled.Clone()
	}

	now := p.now()
	if retryAt, locked := p.lockedUntil(account, now); locked {
		return nil, authsession.ErrRateLimited.Clone().WithMetadata(map[string]any{
			"retry_at": retryAt,
		})
	}

	if err := comparePassword(password, account.PasswordHash); err != nil {
		if !errors.Is(err, errPasswordMismatch) {
			return nil, err
		}
		if trackErr := p.accounts.TrackAttemptedLogin(ctx, account, now); trackErr != nil {
			p.logger.Error("local provider failed to track login attempt", "error", trackErr)
		}
		return nil, authsession.ErrInvalidCredentials.Clone()
	}

	if err := p.accounts.TrackSuccessfulLogin(ctx, account, now); err != nil {
		p.logger.Error("local provider failed to track login", "error", err)
	}

	user := toProviderUser(account)
	p.setCurrent(&user)

	return &user, nil
}

// SignUp implements authsession.IdentityProvider. The new account is
// signed in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*authsession.ProviderUser, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	if err := validatePassword(password, p.cfg.MinPasswordLength); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password, p.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := p.now()
	account := &repository.AccountModel{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		LoggedInAt:   &now,
		CreatedAt:    now,
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if repository.IsDuplicateRecord(err) {
			return nil, authsession.ErrEmailInUse.Clone()
		}
		return nil, err
	}

	user := toProviderUser(account)
	p.setCurrent(&user)

	return &user, nil
}

// SignOut implements authsession.IdentityProvider.
func (p *Provider) SignOut(ctx context.Context) error {
	p.setCurrent(nil)
	return nil
}

// SendPasswordReset implements authsession.IdentityProvider.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return authsession.ErrNoSuchAccount.Clone()
		}
		return err
	}

	token, err := p.mintToken(toProviderUser(account), PurposePasswordReset, p.cfg.ResetTokenTTL)
	if err != nil {
		return err
	}

	if p.notifier == nil {
		p.logger.Warn("local provider has no reset notifier, dropping reset token", "user_id", account.ID)
		return nil
	}

	if err := p.notifier.SendPasswordReset(ctx, account.Email, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to deliver password reset")
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a token delivered to the
// ResetNotifier.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	claims, err := p.parseToken(token, PurposePasswordReset)
	if err != nil {
		return err
	}

	if err := validatePassword(password, p.cfg.MinPasswordLength); err != nil {
		return err
	}

	hash, err := hashPassword(password, p.cfg.BcryptCost)
	if err != nil {
		return err
	}

	if err := p.accounts.UpdatePassword(ctx, claims.UserID(), hash); err != nil {
		if repository.IsRecordNotFound(err) {
			return authsession.ErrNoSuchAccount.Clone()
		}
		return err
	}
	return nil
}

// CurrentToken implements authsession.IdentityProvider. It mints a fresh
// credential token for the signed in account.
func (p *Provider) CurrentToken(ctx context.Context) (string, error) {
	user := p.currentUser()
	if user == nil {
		return "", nil
	}
	return p.mintToken(*user, PurposeID, p.cfg.TokenTTL)
}

// OnAuthStateChange implements authsession.IdentityProvider. The listener
// is called right away with the current account.
func (p *Provider) OnAuthStateChange(listener authsession.AuthStateListener) func() {
	if listener == nil {
		return func() {}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listenerEntry{id: id, listener: listener})
	current := copyUser(p.current)
	p.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.listeners = slices.DeleteFunc(p.listeners, func(e listenerEntry) bool {
				return e.id == id
			})
		})
	}
}

// UpdateDisplayName implements authsession.IdentityProvider. Listeners are
// not notified.
func (p *Provider) UpdateDisplayName(ctx context.Context, displayName string) error {
	user := p.currentUser()
	if user == nil {
		return authsession.ErrNoSession.Clone()
	}

	if err := p.accounts.UpdateDisplayName(ctx, user.ID, displayName); err != nil {
		return err
	}

	p.mu.Lock()
	if p.current != nil && p.current.ID == user.ID {
		p.current.DisplayName = displayName
	}
	p.mu.Unlock()

	return nil
}

// Reauthenticate implements authsession.PasswordChanger.
func (p *Provider) Reauthenticate(ctx context.Context, email, password string) error {
	user := p.currentUser()
	if user == nil {
		return authsession.ErrNoSession.Clone()
	}

	account, err := p.accounts.GetByID(ctx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return authsession.ErrInvalidCredentials.Clone()
		}
		return err
	}

	if account.Email != normalizeEmail(email) {
		return authsession.ErrInvalidCredentials.Clone()
	}

	if err := comparePassword(password, account.PasswordHash); err != nil {
		if errors.Is(err, errPasswordMismatch) {
			return authsession.ErrInvalidCredentials.Clone()
		}
		return err
	}
	return nil
}

// UpdatePassword implements authsession.PasswordChanger.
func (p *Provider) UpdatePassword(ctx context.Context, password string) error {
	user := p.currentUser()
	if user == nil {
		return authsession.ErrNoSession.Clone()
	}

	if err := validatePassword(password, p.cfg.MinPasswordLength); err != nil {
		return err
	}

	hash, err := hashPassword(password, p.cfg.BcryptCost)
	if err != nil {
		return err
	}

	return p.accounts.UpdatePassword(ctx, user.ID, hash)
}

// SetDisabled enables or disables an account. Disabling the signed in
// account signs it out.
func (p *Provider) SetDisabled(ctx context.Context, id string, disabled bool) error {
	if err := p.accounts.SetDisabled(ctx, id, disabled); err != nil {
		return err
	}

	if user := p.currentUser(); disabled && user != nil && user.ID == id {
		p.setCurrent(nil)
	}
	return nil
}

func (p *Provider) lockedUntil(account *repository.AccountModel, now time.Time) (time.Time, bool) {
	if account.LoginAttempts < p.cfg.MaxLoginAttempts || account.LastAttemptAt == nil {
		return time.Time{}, false
	}
	retryAt := account.LastAttemptAt.Add(p.cfg.CoolDown)
	return retryAt, now.Before(retryAt)
}

func (p *Provider) currentUser() *authsession.ProviderUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyUser(p.current)
}

// setCurrent swaps the signed in account and notifies listeners outside
// the lock. Signing out while signed out is a no-op.
func (p *Provider) setCurrent(user *authsession.ProviderUser) {
	p.mu.Lock()
	if user == nil && p.current == nil {
		p.mu.Unlock()
		return
	}
	p.current = copyUser(user)
	listeners := make([]authsession.AuthStateListener, 0, len(p.listeners))
	for _, e := range p.listeners {
		listeners = append(listeners, e.listener)
	}
	p.mu.Unlock()

	for _, listener := range listeners {
		listener(copyUser(user))
	}
}

func toProviderUser(account *repository.AccountModel) authsession.ProviderUser {
	return authsession.ProviderUser{
		ID:            account.ID,
		Email:         account.Email,
		DisplayName:   account.DisplayName,
		PhotoURL:      account.PhotoURL,
		EmailVerified: account.EmailVerified,
	}
}

func copyUser(user *authsession.ProviderUser) *authsession.ProviderUser {
	if user == nil {
		return nil
	}
	c := *user
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

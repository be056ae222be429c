package authsession

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TokenSource returns the bearer credential for outbound calls. An empty
// token means nobody is signed in.
type TokenSource interface {
	CurrentToken(ctx context.Context) (string, error)
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithTransportBase sets the wrapped RoundTripper, http.DefaultTransport by default
func WithTransportBase(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = base
	}
}

// WithTransportTokenSource overrides the provider as token source
func WithTransportTokenSource(tokens TokenSource) TransportOption {
	return func(t *Transport) {
		t.tokens = tokens
	}
}

// WithTransportNavigator sets where the login redirect is sent after a
// forced sign out
func WithTransportNavigator(n Navigator) TransportOption {
	return func(t *Transport) {
		t.navigator = n
	}
}

// WithTransportLogger sets the logger
func WithTransportLogger(logger Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithTransportMetrics sets the metrics recorder
func WithTransportMetrics(m MetricsRecorder) TransportOption {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithTransportUnauthorized overrides the predicate that classifies a
// response as an authorization failure. Defaults to status 401.
func WithTransportUnauthorized(fn func(*http.Response) bool) TransportOption {
	return func(t *Transport) {
		t.isUnauthorized = fn
	}
}

// WithTransportSkipHosts adds hosts that never get a bearer token, e.g.
// the identity provider itself
func WithTransportSkipHosts(hosts ...string) TransportOption {
	return func(t *Transport) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				t.skipHosts[h] = struct{}{}
			}
		}
	}
}

// Transport attaches the current credential to outbound requests and turns
// an authorization failure into one forced sign out per login epoch.
// Responses and errors are returned unchanged and requests are never retried.
// Auth endpoints are detected by matching the markers against the URL path
// only, use WithTransportSkipHosts to exclude identity provider hosts.
type Transport struct {
	store          *Store
	base           http.RoundTripper
	tokens         TokenSource
	navigator      Navigator
	logger         Logger
	metrics        MetricsRecorder
	isUnauthorized func(*http.Response) bool
	skipHosts      map[string]struct{}

	group       singleflight.Group
	mu          sync.Mutex
	handledUpTo uint64
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps the base RoundTripper with session aware behavior
func NewTransport(store *Store, opts ...TransportOption) *Transport {
	t := &Transport{
		store:     store,
		skipHosts: map[string]struct{}{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.tokens == nil && store != nil {
		t.tokens = store.provider
	}
	if t.navigator == nil {
		t.navigator = noopNavigator{}
	}
	if t.isUnauthorized == nil {
		t.isUnauthorized = statusUnauthorized
	}
	t.logger = normalizeLogger(t.logger)
	t.metrics = normalizeMetrics(t.metrics)

	return t
}

// NewHTTPClient returns an http.Client using a Transport
func NewHTTPClient(store *Store, opts ...TransportOption) *http.Client {
	return &http.Client{Transport: NewTransport(store, opts...)}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil || t.isAuthEndpoint(req) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	var session Session
	if t.store != nil {
		session = t.store.Current()
	}

	out := req
	if t.tokens != nil {
		token, err := t.tokens.CurrentToken(ctx)
		switch {
		case err != nil:
			t.logger.Warn("outbound token lookup failed, sending unauthenticated", "url", req.URL.Redacted(), "error", err)
		case token != "":
			out = req.Clone(ctx)
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return resp, err
	}

	if t.isUnauthorized(resp) {
		t.handleUnauthorized(ctx, session)
	}

	return resp, nil
}

// handleUnauthorized tears down the session captured at dispatch once. A
// failure from an older epoch, or one already handled, is suppressed.
func (t *Transport) handleUnauthorized(ctx context.Context, dispatched Session) {
	if t.store == nil || !dispatched.IsAuthenticated() {
		t.metrics.AuthorizationFailure(false)
		return
	}

	key := strconv.FormatUint(dispatched.Epoch, 10)
	v, _, _ := t.group.Do(key, func() (any, error) {
		t.mu.Lock()
		if dispatched.Epoch <= t.handledUpTo {
			t.mu.Unlock()
			return false, nil
		}

		current := t.store.Current()
		if !current.IsAuthenticated() || current.Epoch != dispatched.Epoch {
			t.mu.Unlock()
			return false, nil
		}
		t.handledUpTo = dispatched.Epoch
		t.mu.Unlock()

		t.logger.Info("authorization expired, signing out", "user_id", dispatched.UserID(), "epoch", dispatched.Epoch)
		t.store.signOut(context.WithoutCancel(ctx), ActivityEventForcedSignOut, map[string]any{
			"reason": TextCodeAuthorizationExpired,
		})
		t.navigator.Navigate(t.store.Config().GetLoginRoute())
		return true, nil
	})

	handled, _ := v.(bool)
	t.metrics.AuthorizationFailure(handled)
}

func (t *Transport) isAuthEndpoint(req *http.Request) bool {
	if _, ok := t.skipHosts[strings.ToLower(req.URL.Hostname())]; ok {
		return true
	}

	markers := DefaultConfig().GetAuthEndpointMarkers()
	if t.store != nil {
		markers = t.store.Config().GetAuthEndpointMarkers()
	}

	for _, marker := range markers {
		if marker != "" && strings.Contains(req.URL.Path, marker) {
			return true
		}
	}
	return false
}

func statusUnauthorized(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized
}

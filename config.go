package authsession

import "time"

const (
	// DefaultLoginRoute is where unauthenticated navigation is sent
	DefaultLoginRoute = "/auth/login"
	// DefaultHomeRoute is the default authenticated screen
	DefaultHomeRoute = "/dashboard"
)

var _ Config = Options{}

// Options is the default Config implementation
type Options struct {
	LoginRoute          string        `json:"login_route"`
	HomeRoute           string        `json:"home_route"`
	ResolveTimeout      time.Duration `json:"resolve_timeout"`
	ProfileTimeout      time.Duration `json:"profile_timeout"`
	AuthEndpointMarkers []string      `json:"auth_endpoint_markers"`
}

// DefaultConfig returns Options with the engine defaults
func DefaultConfig() Options {
	return Options{
		LoginRoute:          DefaultLoginRoute,
		HomeRoute:           DefaultHomeRoute,
		ResolveTimeout:      2 * time.Second,
		ProfileTimeout:      5 * time.Second,
		AuthEndpointMarkers: []string{"/auth/"},
	}
}

func (o Options) GetLoginRoute() string {
	if o.LoginRoute == "" {
		return DefaultLoginRoute
	}
	return o.LoginRoute
}

func (o Options) GetHomeRoute() string {
	if o.HomeRoute == "" {
		return DefaultHomeRoute
	}
	return o.HomeRoute
}

// GetResolveTimeout is how long a guard waits for the first provider
// callback before treating the session as unauthenticated.
func (o Options) GetResolveTimeout() time.Duration {
	if o.ResolveTimeout < 0 {
		return 0
	}
	return o.ResolveTimeout
}

func (o Options) GetProfileTimeout() time.Duration {
	if o.ProfileTimeout <= 0 {
		return 5 * time.Second
	}
	return o.ProfileTimeout
}

func (o Options) GetAuthEndpointMarkers() []string {
	if o.AuthEndpointMarkers == nil {
		return []string{"/auth/"}
	}
	return o.AuthEndpointMarkers
}

func normalizeConfig(cfg Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return cfg
}

package authsession_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authsession "github.com/goliatone/go-authsession"
	"github.com/goliatone/go-authsession/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *routeRecorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

func signedInStore(t *testing.T) (*MockIdentityProvider, *authsession.Store) {
	t.Helper()
	provider := new(MockIdentityProvider)
	store := newTestStore(t, provider, repository.NewMemoryProfiles())
	provider.Emit(ada())
	return provider, store
}

func TestTransportAttachesBearerToken(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)

	client := authsession.NewHTTPClient(store)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/items", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-123", got.Load())
	assert.Empty(t, req.Header.Get("Authorization"), "caller request is not mutated")
}

func TestTransportSkipsAuthEndpoints(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)
	nav := &routeRecorder{}

	client := authsession.NewHTTPClient(store, authsession.WithTransportNavigator(nav))
	resp, err := client.Get(server.URL + "/auth/token")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "", got.Load())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, store.Authenticated())
	assert.Empty(t, nav.Routes())
	provider.AssertNotCalled(t, "CurrentToken", mock.Anything)
}

func TestTransportSkipHosts(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)

	req := httptest.NewRequest(http.MethodGet, server.URL+"/api", nil)
	client := authsession.NewHTTPClient(store, authsession.WithTransportSkipHosts(req.URL.Hostname()))

	resp, err := client.Get(server.URL + "/api")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "", got.Load())
}

func TestTransportTokenErrorSendsWithoutHeader(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("", errors.New("token refresh failed"))

	resp, err := authsession.NewHTTPClient(store).Get(server.URL + "/api")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "", got.Load())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportConcurrentUnauthorizedSignsOutOnce(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)
	provider.On("SignOut", mock.Anything).Return(nil)

	rec := &sessionRecorder{}
	store.Subscribe(rec.Observe)

	nav := &routeRecorder{}
	client := authsession.NewHTTPClient(store, authsession.WithTransportNavigator(nav))

	const calls = 8
	var wg sync.WaitGroup
	statuses := make([]int, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(server.URL + "/api/items")
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}

	// let every request reach the server before answering
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, status := range statuses {
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	provider.AssertNumberOfCalls(t, "SignOut", 1)
	assert.Equal(t, []string{authsession.DefaultLoginRoute}, nav.Routes())
	assert.Equal(t, []authsession.State{
		authsession.StateAuthenticated,
		authsession.StateUnauthenticated,
	}, rec.States())
	assert.True(t, store.Current().IsUnauthenticated())
}

func TestTransportUnauthorizedWhileAnonymousIsIgnored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := new(MockIdentityProvider)
	store := newTestStore(t, provider, repository.NewMemoryProfiles())
	provider.Emit(nil)
	provider.On("CurrentToken", mock.Anything).Return("", nil)

	nav := &routeRecorder{}
	resp, err := authsession.NewHTTPClient(store, authsession.WithTransportNavigator(nav)).Get(server.URL + "/api")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	provider.AssertNotCalled(t, "SignOut", mock.Anything)
	assert.Empty(t, nav.Routes())
}

func TestTransportStaleEpochSuppressed(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)
	provider.On("SignOut", mock.Anything).Return(nil)

	nav := &routeRecorder{}
	client := authsession.NewHTTPClient(store, authsession.WithTransportNavigator(nav))

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := client.Get(server.URL + "/slow")
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-entered

	// a fresh 401 ends the first login, then the user signs back in
	resp, err := client.Get(server.URL + "/fast")
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, store.Current().IsUnauthenticated())

	provider.Emit(bob())
	epoch := store.Current().Epoch

	close(release)
	<-done

	assert.True(t, store.Authenticated())
	assert.Equal(t, "uid-bob", store.Current().UserID())
	assert.Equal(t, epoch, store.Current().Epoch)
	provider.AssertNumberOfCalls(t, "SignOut", 1)
	assert.Len(t, nav.Routes(), 1)
}

func TestTransportCustomUnauthorizedPredicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	provider, store := signedInStore(t)
	provider.On("CurrentToken", mock.Anything).Return("tok-123", nil)
	provider.On("SignOut", mock.Anything).Return(nil)

	client := authsession.NewHTTPClient(store, authsession.WithTransportUnauthorized(func(resp *http.Response) bool {
		return resp.StatusCode == http.StatusForbidden
	}))

	resp, err := client.Get(server.URL + "/api")
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, store.Current().IsUnauthenticated())
}

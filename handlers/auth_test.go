package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/socialsignin/auth-service/internal/config"
	"github.com/socialsignin/auth-service/internal/models"
	"github.com/socialsignin/auth-service/internal/providers"
	"github.com/socialsignin/auth-service/internal/sessions"
	"github.com/socialsignin/auth-service/internal/users"
	"github.com/socialsignin/auth-service/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

const clientOrigin = "https://client.example.com"

// fakeProvider completes the handshake from query parameters instead of a
// real OAuth server: ?state=<secret>&id=<providerId>&username=<name>.
type fakeProvider struct {
	name         string
	lastCallback string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Begin(ctx context.Context, callbackURL string) (providers.Handshake, error) {
	p.lastCallback = callbackURL
	return providers.Handshake{URL: "https://provider.example/authorize?state=st-" + p.name, Secret: "st-" + p.name}, nil
}

func (p *fakeProvider) Complete(ctx context.Context, r *http.Request, callbackURL, secret string) (models.ProviderIdentity, error) {
	q := r.URL.Query()
	if q.Get("error") == "access_denied" {
		return models.ProviderIdentity{}, providers.ErrDenied
	}
	if secret == "" || q.Get("state") != secret {
		return models.ProviderIdentity{}, providers.ErrStateMismatch
	}
	return models.ProviderIdentity{Provider: p.name, ProviderID: q.Get("id"), Username: q.Get("username")}, nil
}

type testApp struct {
	router *gin.Engine
	users  *users.MemoryRepository
	redis  *mr.Miniredis
	github *fakeProvider
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	cfg := &config.Config{}
	cfg.Server.TrustProxy = true
	cfg.Session.Secret = "handler-test-secret"
	cfg.Session.CookieName = "sid"
	cfg.Session.CookieSecure = true
	cfg.Session.SameSite = http.SameSiteNoneMode
	cfg.Session.Rolling = true
	cfg.Client.Origin = clientOrigin
	cfg.Client.FailureRedirect = "/login"

	urepo := users.NewMemoryRepository()
	uSvc := users.NewService(urepo)
	sSvc := sessions.NewService(sessions.NewRedisRepository(redis.NewClient(&redis.Options{Addr: m.Addr()}), ""), uSvc, sessions.DefaultTTL)
	gh := &fakeProvider{name: models.ProviderGitHub}
	reg := providers.Registry{
		models.ProviderGitHub: gh,
		models.ProviderGoogle: &fakeProvider{name: models.ProviderGoogle},
	}

	r := NewRouter(Deps{Config: cfg, Users: uSvc, Sessions: sSvc, Providers: reg})
	return &testApp{router: r, users: urepo, redis: m, github: gh}
}

func (a *testApp) do(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	res := w.Result()
	defer res.Body.Close()
	var found *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "sid" {
			found = c
		}
	}
	require.NotNil(t, found, "expected a session cookie")
	return found
}

// login runs both legs of the handshake and returns the authenticated cookie.
func (a *testApp) login(t *testing.T, provider, id, username string) *http.Cookie {
	t.Helper()
	w := a.do(t, "/auth/"+provider, nil)
	require.Equal(t, http.StatusFound, w.Code)
	pending := sessionCookie(t, w)

	q := url.Values{"state": {"st-" + provider}, "id": {id}, "username": {username}}
	w = a.do(t, "/auth/"+provider+"/callback?"+q.Encode(), pending)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, clientOrigin, w.Header().Get("Location"))
	authed := sessionCookie(t, w)
	require.NotEqual(t, pending.Value, authed.Value)
	return authed
}

func getUser(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var u map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	return u
}

func TestRoot(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello World", w.Body.String())
}

func TestBeginRedirectsToProvider(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
	req.Host = "api.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://provider.example/authorize?state=st-github", w.Header().Get("Location"))
	assert.Equal(t, "https://api.example.com/auth/github/callback", a.github.lastCallback)

	c := sessionCookie(t, w)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.Equal(t, 7*24*60*60, c.MaxAge)
}

func TestUnknownProvider(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, http.StatusNotFound, a.do(t, "/auth/twitter", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, "/auth/myspace/callback", nil).Code)
}

func TestGitHubLoginCreatesUserAndIsIdempotent(t *testing.T) {
	a := newTestApp(t)

	cookie := a.login(t, "github", "42", "alice")
	u := getUser(t, a.do(t, "/getuser", cookie))
	assert.Equal(t, "alice", u["username"])
	assert.Equal(t, "42", u["githubId"])
	assert.NotContains(t, u, "googleId")
	assert.NotContains(t, u, "twitterId")
	firstID := u["_id"]
	require.NotEmpty(t, firstID)

	cookie2 := a.login(t, "github", "42", "alice")
	u2 := getUser(t, a.do(t, "/getuser", cookie2))
	assert.Equal(t, firstID, u2["_id"])
	assert.Equal(t, 1, a.users.Len())
}

func TestGetUserAnonymous(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, "/getuser", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	// a pending (not yet authenticated) session is still anonymous
	pending := sessionCookie(t, a.do(t, "/auth/google", nil))
	w = a.do(t, "/getuser", pending)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestLogout(t *testing.T) {
	a := newTestApp(t)
	cookie := a.login(t, "google", "g-1", "Bob")

	w := a.do(t, "/auth/logout", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "done", w.Body.String())
	cleared := sessionCookie(t, w)
	assert.Equal(t, -1, cleared.MaxAge)

	// the old cookie no longer authenticates
	w = a.do(t, "/getuser", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestLogoutWithoutUserTerminates(t *testing.T) {
	a := newTestApp(t)
	w := a.do(t, "/auth/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "not logged in", w.Body.String())
}

func TestCallbackFailuresRedirectToLogin(t *testing.T) {
	a := newTestApp(t)
	denied := metrics.Logins.WithLabelValues("github", "denied")
	mismatch := metrics.Logins.WithLabelValues("github", "state_mismatch")
	deniedBefore, mismatchBefore := testutil.ToFloat64(denied), testutil.ToFloat64(mismatch)

	// no pending handshake at all
	w := a.do(t, "/auth/github/callback?state=st-github&id=1&username=x", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	pending := sessionCookie(t, a.do(t, "/auth/github", nil))
	w = a.do(t, "/auth/github/callback?error=access_denied", pending)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	// the handshake secret was consumed by the failed attempt
	w = a.do(t, "/auth/github/callback?state=st-github&id=1&username=x", pending)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(denied))
	assert.Equal(t, mismatchBefore+2, testutil.ToFloat64(mismatch))
	assert.Equal(t, 0, a.users.Len())
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	a := newTestApp(t)
	cookie := a.login(t, "github", "7", "dora")
	a.redis.FastForward(sessions.DefaultTTL + time.Minute)

	w := a.do(t, "/getuser", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCORSOnGetUser(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/getuser", nil)
	req.Header.Set("Origin", clientOrigin)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, clientOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHealthAndReady(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, "healthy", a.do(t, "/health", nil).Body.String())

	w := a.do(t, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	a.redis.Close()
	w = a.do(t, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

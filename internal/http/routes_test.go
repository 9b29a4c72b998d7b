package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/service"
)

type routerFixture struct {
	auth     *authHarness
	views    *fakeViews
	upstream *upstreamStub
	handler  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		auth:     newAuthHarness(t, harnessOptions{}),
		views:    newFakeViews(dashboardSnapshot(), service.ViewSnapshot{View: "events", Title: "Events", Data: map[string]any{}}),
		upstream: newUpstreamStub(t, http.StatusOK, `{"data":{}}`),
	}
	f.handler = NewRouter(RouterServices{
		Sessions:  f.auth.Auth,
		Bootstrap: f.auth.Bootstrap,
		Roles:     f.auth.Roles,
		Views:     f.views,
		GraphQL:   GraphQLProxyConfig{Endpoint: f.upstream.server.URL},
		Env:       EnvReport{Environment: "development", IdentityMode: "local"},
		Metrics:   metrics.NewRecorder(),
		Logger:    discardLogger(),
	})
	return f
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRouter_Pages(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("anonymous visitors see the dashboard", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "Dashboard")
		assert.Contains(t, rec.Body.String(), `href="/events"`)
	})

	t.Run("view page", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/events", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-view="events"`)
	})

	t.Run("unknown view renders 404", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Not found")
	})

	t.Run("admin page redirects non-admins", func(t *testing.T) {
		rec := f.do(bearer(httptest.NewRequest(http.MethodGet, "/admin", nil), tokenWriter))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/unauthorized?from=%2Fadmin", rec.Header().Get("Location"))
	})

	t.Run("admin page for admins", func(t *testing.T) {
		rec := f.do(bearer(httptest.NewRequest(http.MethodGet, "/admin", nil), tokenAdmin))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Role management")
	})

	t.Run("unauthorized page", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/unauthorized?from=/admin", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "/admin")
	})

	t.Run("graphiql", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/graphiql", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-endpoint="/api/graphql"`)
	})
}

func TestRouter_PendingRoleShowsLoadingPage(t *testing.T) {
	f := newRouterFixture(t)
	sid := f.auth.signIn(t, tokenWriter)
	_, err := f.auth.Roles.SetRole(t.Context(), tokenAdmin, service.SetRoleInput{UID: "u-writer", Role: "admin"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "data-loading")
	assert.NotContains(t, rec.Body.String(), "Role management", "guarded content stays hidden while loading")
}

func TestRouter_API(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"health", httptest.NewRequest(http.MethodGet, "/healthz", nil), http.StatusOK},
		{"readiness without checks", httptest.NewRequest(http.MethodGet, "/readyz", nil), http.StatusOK},
		{"metrics", httptest.NewRequest(http.MethodGet, "/metrics", nil), http.StatusOK},
		{"static asset", httptest.NewRequest(http.MethodGet, "/static/app.js", nil), http.StatusOK},
		{"views for anonymous", httptest.NewRequest(http.MethodGet, "/api/views", nil), http.StatusOK},
		{"admin exists is public", httptest.NewRequest(http.MethodGet, "/api/admin/check-admin-exists", nil), http.StatusOK},
		{"accounts need a session", httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil), http.StatusUnauthorized},
		{"accounts refuse writers", bearer(httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil), tokenWriter), http.StatusForbidden},
		{"accounts for admins", bearer(httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil), tokenAdmin), http.StatusOK},
		{"unknown API path", httptest.NewRequest(http.MethodGet, "/api/nope/deeper", nil), http.StatusNotFound},
		{"graphql GET", httptest.NewRequest(http.MethodGet, "/api/graphql", nil), http.StatusMethodNotAllowed},
		{
			"graphql mutation as viewer",
			bearer(jsonRequest(http.MethodPost, "/api/graphql", `{"query":"mutation { retrySaga(id: \"1\") }"}`), tokenViewer),
			http.StatusForbidden,
		},
		{
			"graphql mutation as writer",
			bearer(jsonRequest(http.MethodPost, "/api/graphql", `{"query":"mutation { retrySaga(id: \"1\") }"}`), tokenWriter),
			http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_CookieWritesNeedCSRF(t *testing.T) {
	f := newRouterFixture(t)
	sid := f.auth.signIn(t, tokenWriter)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
	rec := f.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
	req.Header.Set(CSRFHeaderName, "tok")
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SignInFlow(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(bearer(httptest.NewRequest(http.MethodPost, "/auth/session", nil), tokenAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := sessionCookie(t, rec)
	require.NotNil(t, c)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil)
	req.AddCookie(c)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, "the session cookie carries the admin role")
}

package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cqrs-monitor/internal/domain/access"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/service"
)

func captureResolution(got *domainauth.Resolution) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = ResolutionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestResolveSession(t *testing.T) {
	h := newAuthHarness(t, harnessOptions{})
	writerSession := h.signIn(t, tokenWriter)

	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		wantRole domainauth.Role
		resolved bool
		signedIn bool
	}{
		{
			name:     "no credentials is an anonymous viewer",
			prepare:  func(*http.Request) {},
			wantRole: domainauth.RoleViewer,
			resolved: true,
		},
		{
			name:     "bearer token with role claim",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tokenAdmin) },
			wantRole: domainauth.RoleAdmin,
			resolved: true,
			signedIn: true,
		},
		{
			name:     "bearer token without role claim defaults to writer",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "bearer "+tokenNoRole) },
			wantRole: domainauth.RoleWriter,
			resolved: true,
			signedIn: true,
		},
		{
			name:     "rejected token fails open to viewer",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged") },
			wantRole: domainauth.RoleViewer,
			resolved: true,
		},
		{
			name: "session cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: writerSession})
			},
			wantRole: domainauth.RoleWriter,
			resolved: true,
			signedIn: true,
		},
		{
			name: "bearer token takes precedence over session cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: writerSession})
				r.Header.Set("Authorization", "Bearer "+tokenAdmin)
			},
			wantRole: domainauth.RoleAdmin,
			resolved: true,
			signedIn: true,
		},
		{
			name: "unknown session cookie is anonymous",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "gone"})
			},
			wantRole: domainauth.RoleViewer,
			resolved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domainauth.Resolution
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			ResolveSession(h.Auth)(captureResolution(&got)).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.resolved, got.Resolved)
			assert.Equal(t, tt.wantRole, got.Role)
			assert.Equal(t, tt.signedIn, got.Authenticated)
		})
	}
}

func TestResolveSession_RefreshRequiredIsUnresolved(t *testing.T) {
	h := newAuthHarness(t, harnessOptions{})
	sid := h.signIn(t, tokenViewer)

	// An admin promotes the viewer; their session now waits for a fresh token.
	_, err := h.Roles.SetRole(t.Context(), tokenAdmin, service.SetRoleInput{UID: "u-viewer", Role: "writer"})
	require.NoError(t, err)

	var got domainauth.Resolution
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sid})
	ResolveSession(h.Auth)(captureResolution(&got)).ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, got.Resolved)
	assert.True(t, got.Authenticated)
	assert.Empty(t, got.Role)
}

func TestResolutionFromContext_DefaultsToPending(t *testing.T) {
	res := ResolutionFromContext(t.Context())
	assert.False(t, res.Resolved, "a request that skipped ResolveSession must never look like a viewer")
}

func TestRequireRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name     string
		required []domainauth.Role
		res      domainauth.Resolution
		status   int
		errCode  string
	}{
		{"viewer endpoint admits anonymous", []domainauth.Role{domainauth.RoleViewer}, domainauth.Anonymous(), http.StatusOK, ""},
		{"writer endpoint rejects anonymous", []domainauth.Role{domainauth.RoleWriter}, domainauth.Anonymous(), http.StatusUnauthorized, "unauthenticated"},
		{"writer endpoint rejects signed-in viewer", []domainauth.Role{domainauth.RoleWriter}, resolvedAs(domainauth.RoleViewer), http.StatusForbidden, "forbidden"},
		{"admin satisfies writer", []domainauth.Role{domainauth.RoleWriter}, resolvedAs(domainauth.RoleAdmin), http.StatusOK, ""},
		{"lowest listed role wins", []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleWriter}, resolvedAs(domainauth.RoleWriter), http.StatusOK, ""},
		{"unresolved asks for a token refresh", []domainauth.Role{domainauth.RoleViewer}, domainauth.Pending(), http.StatusUnauthorized, "token_refresh_required"},
		{"unknown role admits nobody", []domainauth.Role{"superadmin"}, resolvedAs(domainauth.RoleAdmin), http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withResolution(httptest.NewRequest(http.MethodGet, "/api/x", nil), tt.res)
			RequireRoles(tt.required...)(ok).ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestGuard(t *testing.T) {
	rec := metrics.NewRecorder()
	called := false
	page := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = w.Write([]byte("writer page"))
	})
	guard := Guard(GuardOptions{Name: "editor", Gate: access.Require(domainauth.RoleWriter), Metrics: rec})

	t.Run("allowed renders the page", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		guard(page).ServeHTTP(w, withResolution(httptest.NewRequest(http.MethodGet, "/editor", nil), resolvedAs(domainauth.RoleWriter)))

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "writer page", w.Body.String())
	})

	t.Run("unresolved shows the loading placeholder", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		guard(page).ServeHTTP(w, withResolution(httptest.NewRequest(http.MethodGet, "/editor", nil), domainauth.Pending()))

		assert.False(t, called, "protected content must not render while loading")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Empty(t, w.Header().Get("Location"))
	})

	t.Run("viewer is redirected and never sees the page", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		guard(page).ServeHTTP(w, withResolution(httptest.NewRequest(http.MethodGet, "/editor?tab=2", nil), resolvedAs(domainauth.RoleViewer)))

		assert.False(t, called)
		require.Equal(t, http.StatusSeeOther, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/unauthorized", loc.Path)
		assert.Equal(t, "/editor?tab=2", loc.Query().Get("from"))
	})

	t.Run("custom redirect", func(t *testing.T) {
		custom := Guard(GuardOptions{Gate: access.Gate{Roles: []domainauth.Role{domainauth.RoleAdmin}, RedirectTo: "/"}})
		w := httptest.NewRecorder()
		custom(page).ServeHTTP(w, withResolution(httptest.NewRequest(http.MethodGet, "/admin", nil), domainauth.Anonymous()))

		require.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/?from=%2Fadmin", w.Header().Get("Location"))
	})
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, Now: func() time.Time { return now }})
	h := limiter(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/session", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:3333"), "ports of one host share a bucket")
	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1111"), "other clients are unaffected")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1111"), "tokens refill over time")
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))
	for range 50 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                      "/",
		"/events":               "/events",
		"/events?x=1":           "/events?x=1",
		"//evil.example/":       "/",
		"https://evil.example/": "/",
		"relative":              "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), in)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "BEARER  abc.def ")
	assert.Equal(t, "abc.def", bearerToken(req))
}

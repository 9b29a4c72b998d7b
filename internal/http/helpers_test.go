package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	mocks "github.com/target/cqrs-monitor/internal/mocks/auth"
	"github.com/target/cqrs-monitor/internal/service"
)

const (
	tokenAdmin  = "tok-admin"
	tokenWriter = "tok-writer"
	tokenViewer = "tok-viewer"
	tokenNoRole = "tok-norole"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authHarness wires the real auth services onto in-memory fakes.
type authHarness struct {
	Provider  *mocks.FakeIdentityProvider
	Sessions  *mocks.MemorySessionStore
	Flag      *mocks.MemoryAdminFlag
	Audit     *mocks.MemoryAuditLog
	Auth      *service.AuthService
	Bootstrap *service.BootstrapService
	Roles     *service.RoleService
}

type harnessOptions struct {
	Production        bool
	InitialAdminEmail string
	NoAccounts        bool
}

func newAuthHarness(t *testing.T, opts harnessOptions) *authHarness {
	t.Helper()
	h := &authHarness{
		Provider: mocks.NewFakeIdentityProvider(),
		Sessions: mocks.NewMemorySessionStore(),
		Flag:     &mocks.MemoryAdminFlag{},
		Audit:    &mocks.MemoryAuditLog{},
	}
	if !opts.NoAccounts {
		h.Provider.AddAccount(domainauth.Account{
			UID: "u-admin", Email: "admin@example.com",
			CustomClaims: domainauth.Claims{"role": "admin"},
		}, tokenAdmin)
		h.Provider.AddAccount(domainauth.Account{
			UID: "u-writer", Email: "writer@example.com",
			CustomClaims: domainauth.Claims{"role": "writer"},
		}, tokenWriter)
		h.Provider.AddAccount(domainauth.Account{
			UID: "u-viewer", Email: "viewer@example.com",
			CustomClaims: domainauth.Claims{"role": "viewer"},
		}, tokenViewer)
		h.Provider.AddAccount(domainauth.Account{UID: "u-norole", Email: "norole@example.com"}, tokenNoRole)
	}

	logger := discardLogger()
	changes := service.NewRoleChangeRecorder(service.RoleChangeRecorderOptions{Audit: h.Audit, Logger: logger})
	h.Auth = service.NewAuthService(service.AuthServiceOptions{
		Provider: h.Provider, Sessions: h.Sessions, SessionTTL: time.Hour, Logger: logger,
	})
	h.Bootstrap = service.NewBootstrapService(service.BootstrapServiceOptions{
		Provider:          h.Provider,
		Flag:              h.Flag,
		Sessions:          h.Sessions,
		Changes:           changes,
		Production:        opts.Production,
		InitialAdminEmail: opts.InitialAdminEmail,
		Logger:            logger,
	})
	h.Roles = service.NewRoleService(service.RoleServiceOptions{
		Provider: h.Provider, Sessions: h.Sessions, Flag: h.Flag, Changes: changes, Logger: logger,
	})
	return h
}

// signIn creates a session for token and returns its id.
func (h *authHarness) signIn(t *testing.T, token string) string {
	t.Helper()
	s, err := h.Auth.SignIn(context.Background(), token)
	require.NoError(t, err)
	return s.ID
}

// fakeViews is an in-memory ViewSource.
type fakeViews struct {
	mu    sync.Mutex
	snaps map[string]service.ViewSnapshot
	subs  map[string][]chan service.ViewSnapshot
}

func newFakeViews(snaps ...service.ViewSnapshot) *fakeViews {
	v := &fakeViews{
		snaps: make(map[string]service.ViewSnapshot),
		subs:  make(map[string][]chan service.ViewSnapshot),
	}
	for _, s := range snaps {
		v.snaps[s.View] = s
	}
	return v
}

func (v *fakeViews) Views() []service.ViewInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]service.ViewInfo, 0, len(v.snaps))
	for name, s := range v.snaps {
		out = append(out, service.ViewInfo{Name: name, Title: s.Title})
	}
	return out
}

func (v *fakeViews) Has(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.snaps[name]
	return ok
}

func (v *fakeViews) Snapshot(name string) (service.ViewSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.snaps[name]
	if !ok {
		return service.ViewSnapshot{}, apperrors.NotFoundf("view %q not found", name)
	}
	return s, nil
}

func (v *fakeViews) Subscribe(name string) (<-chan service.ViewSnapshot, func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.snaps[name]
	if !ok {
		return nil, nil, apperrors.NotFoundf("view %q not found", name)
	}
	ch := make(chan service.ViewSnapshot, 4)
	ch <- s
	v.subs[name] = append(v.subs[name], ch)
	return ch, func() {}, nil
}

// publish pushes a snapshot to every subscriber of its view.
func (v *fakeViews) publish(s service.ViewSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snaps[s.View] = s
	for _, ch := range v.subs[s.View] {
		select {
		case ch <- s:
		default:
		}
	}
}

func (v *fakeViews) subscribers(name string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs[name])
}

func dashboardSnapshot() service.ViewSnapshot {
	return service.ViewSnapshot{
		View:      service.ViewDashboard,
		Title:     "Dashboard",
		Loaded:    true,
		Data:      map[string]any{"stats": map[string]any{"totalEvents": 1234}},
		UpdatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

// withResolution runs the request through a context carrying res.
func withResolution(r *http.Request, res domainauth.Resolution) *http.Request {
	return r.WithContext(SetResolutionInContext(r.Context(), res))
}

func resolvedAs(role domainauth.Role) domainauth.Resolution {
	return domainauth.Resolution{
		Resolved: true, Authenticated: true, Role: role,
		UserID: "u-" + string(role), Email: string(role) + "@example.com",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

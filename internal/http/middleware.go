package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/cqrs-monitor/internal/domain/access"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes through so websocket upgrades work behind Logging.
func (w *respWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		w.status = http.StatusSwitchingProtocols
		return hj.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker not supported")
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionResolver turns request credentials into a role resolution.
type SessionResolver interface {
	ResolveToken(ctx context.Context, token string) (domainauth.Resolution, *domainauth.Identity)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
}

// ResolveSession resolves the caller's role once per request and stores it in
// the context. A bearer token wins over the session cookie. Missing or
// unusable credentials resolve to the anonymous viewer; a session whose
// account changed role since sign-in stays unresolved until it is refreshed.
func ResolveSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res := domainauth.Anonymous()

			if token := bearerToken(r); token != "" {
				res, _ = resolver.ResolveToken(ctx, token)
			} else if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
				if session, getErr := resolver.GetSession(ctx, c.Value); getErr == nil {
					res = session.Resolution()
					ctx = SetSessionInContext(ctx, session)
				}
			}

			ctx = SetResolutionInContext(ctx, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles guards JSON endpoints. Any listed role is sufficient.
// Anonymous callers below the requirement get 401, signed-in ones 403.
func RequireRoles(roles ...domainauth.Role) func(http.Handler) http.Handler {
	gate := access.Require(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := ResolutionFromContext(r.Context())
			decision := gate.Decide(res)
			switch {
			case decision.Allowed():
				next.ServeHTTP(w, r)
			case decision.Phase == access.PhaseLoading:
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "token_refresh_required",
					Err:     errors.New("role changed since sign-in; refresh the session token"),
				})
			case !res.Authenticated:
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "unauthenticated",
					Err:     errors.New("authentication required"),
				})
			default:
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "forbidden",
					Err:     errors.New("insufficient permissions"),
				})
			}
		})
	}
}

// GuardOptions configures a page guard.
type GuardOptions struct {
	// Name labels the guard in metrics.
	Name    string
	Gate    access.Gate
	Metrics *metrics.Recorder
	// Loading renders the neutral placeholder shown while the role is unresolved.
	Loading http.HandlerFunc
}

// loadingRetryAfter is the Retry-After hint on the loading placeholder.
const loadingRetryAfter = 2 * time.Second

// Guard gates a page on the resolved role. An unresolved role renders the
// loading placeholder with 200 and no decision; a denied role is redirected
// with 303 and the page handler never runs.
func Guard(opts GuardOptions) func(http.Handler) http.Handler {
	loading := opts.Loading
	if loading == nil {
		loading = defaultLoading
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := opts.Gate.Decide(ResolutionFromContext(r.Context()))
			opts.Metrics.Guard(opts.Name, string(decision.Phase))

			switch decision.Phase {
			case access.PhaseAllowed:
				next.ServeHTTP(w, r)
			case access.PhaseLoading:
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Retry-After", strconv.Itoa(int(loadingRetryAfter.Seconds())))
				loading(w, r)
			default:
				http.Redirect(w, r, deniedLocation(decision.Redirect, r), http.StatusSeeOther)
			}
		})
	}
}

func defaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Loading..."))
}

// deniedLocation appends the original path so the unauthorized page can
// offer a way back after a role change.
func deniedLocation(target string, r *http.Request) string {
	u, err := url.Parse(safeRedirectPath(target))
	if err != nil {
		return access.DefaultRedirect
	}
	q := u.Query()
	q.Set("from", safeRedirectPath(r.URL.RequestURI()))
	u.RawQuery = q.Encode()
	return u.String()
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") ||
		strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// RateLimitConfig bounds request rates per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops limiters for clients not seen for this long.
	IdleTTL time.Duration
	Now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns a middleware that rejects bursts from a single client
// address with 429. A non-positive rate disables limiting.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*clientLimiter)
		lastSweep = cfg.Now()
	)

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := cfg.Now()
		if now.Sub(lastSweep) > cfg.IdleTTL {
			for k, c := range clients {
				if now.Sub(c.lastSeen) > cfg.IdleTTL {
					delete(clients, k)
				}
			}
			lastSweep = now
		}

		c, ok := clients[key]
		if !ok {
			c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[key] = c
		}
		c.lastSeen = now
		return c.limiter.AllowN(now, 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(clientAddr(r)) {
				w.Header().Set("Retry-After", "1")
				WriteError(w, ErrorParams{
					Code:    http.StatusTooManyRequests,
					ErrCode: "rate_limited",
					Err:     errors.New("too many requests"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package httpx

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	cqrsmonitor "github.com/target/cqrs-monitor"
	"github.com/target/cqrs-monitor/internal/domain/access"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions  SessionService
	Bootstrap BootstrapService
	Roles     RoleService
	Views     ViewSource
	GraphQL   GraphQLProxyConfig
	Env       EnvReport
	Metrics   *metrics.Recorder // nil disables /metrics and guard metrics
	// MetricsPath defaults to /metrics.
	MetricsPath string
	Readiness map[string]HealthCheck

	CookieDomain   string
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	Compression    *CompressionConfig // nil disables gzip
	DefaultView    string

	// TemplateFS and StaticFS default to the embedded web/ tree.
	TemplateFS fs.FS
	StaticFS   fs.FS
	Logger     *slog.Logger
}

// NewRouter creates and configures the HTTP router with its middleware chain:
// Recover, Logging, optional Compression, then ResolveSession in front of
// every route.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	pages := setupPageHandlers(services, logger)
	authHandlers := &AuthHandlers{Svc: services.Sessions, CookieDomain: services.CookieDomain, Logger: logger}
	adminHandlers := &AdminHandlers{
		Bootstrap: services.Bootstrap,
		Roles:     services.Roles,
		Env:       services.Env,
		Logger:    logger,
	}
	viewHandlers := &ViewHandlers{
		Views:          services.Views,
		AllowedOrigins: services.AllowedOrigins,
		Metrics:        services.Metrics,
		Logger:         logger,
	}
	proxyCfg := services.GraphQL
	if proxyCfg.AllowedOrigins == nil {
		proxyCfg.AllowedOrigins = services.AllowedOrigins
	}
	if proxyCfg.Logger == nil {
		proxyCfg.Logger = logger
	}
	proxy := NewGraphQLProxy(proxyCfg)

	cfg := routeConfig{
		csrf:    CSRFProtection(services.CookieDomain),
		limited: RateLimit(services.RateLimit),
		metrics: services.Metrics,
		loading: pages.Loading,
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics.Handler())
	}
	mux.Handle("GET /static/", staticHandler(services.StaticFS, logger))

	registerAuthRoutes(mux, authHandlers, cfg)
	registerAdminRoutes(mux, adminHandlers, cfg)
	registerAPIRoutes(mux, viewHandlers, proxy, cfg)
	registerPageRoutes(mux, pages, cfg)
	mux.Handle("/", cfg.csrf(notFoundHandler(pages)))

	var handler http.Handler = mux
	handler = ResolveSession(services.Sessions)(handler)
	if services.Compression != nil {
		handler = Compression(*services.Compression)(handler)
	}
	handler = Logging(logger)(handler)
	return Recover(logger)(handler)
}

type routeConfig struct {
	csrf    func(http.Handler) http.Handler
	limited func(http.Handler) http.Handler
	metrics *metrics.Recorder
	loading http.HandlerFunc
}

func (cfg routeConfig) guard(name string, roles ...domainauth.Role) func(http.Handler) http.Handler {
	return Guard(GuardOptions{
		Name:    name,
		Gate:    access.Require(roles...),
		Metrics: cfg.metrics,
		Loading: cfg.loading,
	})
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, cfg routeConfig) {
	mux.Handle("POST /auth/session", cfg.limited(http.HandlerFunc(h.SignIn)))
	mux.Handle("POST /auth/refresh", cfg.limited(cfg.csrf(http.HandlerFunc(h.Refresh))))
	mux.Handle("POST /auth/logout", cfg.csrf(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/status", http.HandlerFunc(h.Status))
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, cfg routeConfig) {
	adminOnly := RequireRoles(domainauth.RoleAdmin)

	mux.Handle("GET /api/admin/check-admin-exists", http.HandlerFunc(h.CheckAdminExists))
	// init-admin and set-role verify the bearer token themselves.
	mux.Handle("POST /api/admin/init-admin", cfg.limited(http.HandlerFunc(h.InitAdmin)))
	mux.Handle("POST /api/admin/set-role", cfg.limited(http.HandlerFunc(h.SetRole)))
	mux.Handle("GET /api/admin/accounts", adminOnly(http.HandlerFunc(h.Accounts)))
	mux.Handle("GET /api/admin/audit", adminOnly(http.HandlerFunc(h.Audit)))
	mux.Handle("GET /api/admin/check-env", http.HandlerFunc(h.CheckEnv))
	mux.Handle("GET /api/admin/debug-env", http.HandlerFunc(h.DebugEnv))
}

func registerAPIRoutes(mux *http.ServeMux, views *ViewHandlers, proxy *GraphQLProxy, cfg routeConfig) {
	viewer := RequireRoles(domainauth.RoleViewer)

	mux.Handle("GET /api/views", viewer(http.HandlerFunc(views.List)))
	mux.Handle("GET /api/views/{view}", viewer(http.HandlerFunc(views.Get)))
	mux.Handle("GET /api/stream/{view}", viewer(http.HandlerFunc(views.Stream)))

	mux.Handle("POST /api/graphql", cfg.limited(viewer(cfg.csrf(proxy))))
	mux.Handle("OPTIONS /api/graphql", http.HandlerFunc(proxy.Preflight))
	mux.Handle("GET /api/graphql", http.HandlerFunc(proxy.MethodNotAllowed))
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, cfg routeConfig) {
	page := func(name string, next http.HandlerFunc, roles ...domainauth.Role) http.Handler {
		return cfg.csrf(cfg.guard(name, roles...)(next))
	}
	mux.Handle("GET /{$}", page("index", h.Index, domainauth.RoleViewer))
	mux.Handle("GET /{view}", page("view", h.View, domainauth.RoleViewer))
	mux.Handle("GET /admin", page("admin", h.Admin, domainauth.RoleAdmin))
	mux.Handle("GET /graphiql", page("graphiql", h.GraphiQL, domainauth.RoleViewer))
	mux.Handle("GET /unauthorized", cfg.csrf(http.HandlerFunc(h.Unauthorized)))
}

var errNotFound = errors.New("no route matches this path")

// notFoundHandler answers unmatched API paths with JSON and everything else
// with the HTML 404 page.
func notFoundHandler(pages *PageHandlers) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/auth/") {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
			return
		}
		pages.NotFound(w, r)
	})
}

// setupPageHandlers builds the template renderer. A renderer failure is
// logged and pages degrade to plain status text.
func setupPageHandlers(services RouterServices, logger *slog.Logger) *PageHandlers {
	templateFS := services.TemplateFS
	if templateFS == nil {
		sub, err := fs.Sub(cqrsmonitor.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			logger.Error("failed to create sub-filesystem for templates", slog.Any("error", err))
		}
		templateFS = sub
	}

	pages := &PageHandlers{Views: services.Views, Logger: logger, Default: services.DefaultView}
	if templateFS == nil {
		return pages
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		logger.Error("failed to create template renderer", slog.Any("error", err))
		return pages
	}
	pages.T = tr
	return pages
}

// staticHandler serves /static/* from the given filesystem, or the embedded
// web/static tree when nil.
func staticHandler(staticFS fs.FS, logger *slog.Logger) http.Handler {
	if staticFS == nil {
		sub, err := fs.Sub(cqrsmonitor.StaticFS, "web/static")
		if err != nil {
			logger.Error("failed to create sub-filesystem for static assets", slog.Any("error", err))
			return http.NotFoundHandler()
		}
		staticFS = sub
	}
	files := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Assets are not content-hashed; revalidate on every load.
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}

package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/cqrs-monitor/internal/service"
)

// PageHandlers renders the dashboard HTML pages. Access is decided by Guard
// before these run; the handlers only render.
type PageHandlers struct {
	T       *TemplateRenderer
	Views   ViewSource
	Logger  *slog.Logger
	Default string // view rendered at "/"
}

func (h *PageHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	if h.T == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if err := h.T.RenderFull(w, status, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render page failed", "page", data["CurrentPage"], "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// Index renders the default view.
// GET /.
func (h *PageHandlers) Index(w http.ResponseWriter, r *http.Request) {
	name := h.Default
	if name == "" {
		name = service.ViewDashboard
	}
	h.renderView(w, r, name)
}

// View renders one dashboard view. The page ships the current snapshot and
// the browser then follows /api/stream/{view}.
// GET /{view}.
func (h *PageHandlers) View(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	if !h.Views.Has(name) {
		h.NotFound(w, r)
		return
	}
	h.renderView(w, r, name)
}

func (h *PageHandlers) renderView(w http.ResponseWriter, r *http.Request, name string) {
	snap, err := h.Views.Snapshot(name)
	if err != nil {
		h.logger().WarnContext(r.Context(), "view snapshot failed", "view", name, "error", err)
		h.NotFound(w, r)
		return
	}
	data := NewTemplateData(r, PageMeta{Title: snap.Title + " · CQRS Monitor", PageTitle: snap.Title, CurrentPage: PageView}).
		WithNav(h.Views.Views(), name).
		With("View", name).
		With("Snapshot", snap).
		Build()
	h.render(w, r, http.StatusOK, data)
}

// Admin renders the role management page.
// GET /admin.
func (h *PageHandlers) Admin(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Admin · CQRS Monitor", PageTitle: "Role management", CurrentPage: PageAdmin}).
		WithNav(h.Views.Views(), "").
		With("Roles", []string{"viewer", "writer", "admin"}).
		Build()
	h.render(w, r, http.StatusOK, data)
}

// GraphiQL renders the in-browser GraphQL explorer pointed at the proxy.
// GET /graphiql.
func (h *PageHandlers) GraphiQL(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "GraphiQL · CQRS Monitor", PageTitle: "GraphiQL", CurrentPage: PageGraphiQL}).
		WithNav(h.Views.Views(), "").
		With("Endpoint", "/api/graphql").
		Build()
	h.render(w, r, http.StatusOK, data)
}

// Unauthorized explains that the caller's role does not reach a page.
// GET /unauthorized.
func (h *PageHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Unauthorized · CQRS Monitor", PageTitle: "Access denied", CurrentPage: PageUnauthorized}).
		With("From", safeRedirectPath(r.URL.Query().Get("from"))).
		Build()
	h.render(w, r, http.StatusOK, data)
}

// Loading is shown while the caller's role is not yet known. The page script
// refreshes the session and reloads.
func (h *PageHandlers) Loading(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Loading · CQRS Monitor", PageTitle: "Loading", CurrentPage: PageLoading}).
		Build()
	h.render(w, r, http.StatusOK, data)
}

// NotFound renders the 404 page.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Not found · CQRS Monitor", PageTitle: "Not found", CurrentPage: PageNotFound}).
		Build()
	h.render(w, r, http.StatusNotFound, data)
}

package httpx

import (
	"net/http"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/service"
)

// PageMeta identifies the page being rendered.
type PageMeta struct {
	Title       string
	PageTitle   string
	CurrentPage string
}

// NavItem is one entry of the view navigation.
type NavItem struct {
	Name   string
	Title  string
	Active bool
}

// TemplateDataBuilder provides a fluent API for building template data maps.
type TemplateDataBuilder struct {
	data map[string]any
	r    *http.Request
}

// NewTemplateData creates a builder seeded with the fields every page reads:
// the caller's resolution, the CSRF token and the page metadata.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateDataBuilder {
	res := ResolutionFromContext(r.Context())
	title := meta.Title
	if title == "" {
		title = "CQRS Monitor"
	}
	data := map[string]any{
		"Title":           title,
		"PageTitle":       meta.PageTitle,
		"CurrentPage":     meta.CurrentPage,
		"Resolution":      res,
		"IsAuthenticated": res.Authenticated,
		"Role":            res.Role,
		"CanWrite":        res.Resolved && res.Role.AtLeast(domainauth.RoleWriter),
		"IsAdmin":         res.Resolved && res.Role.AtLeast(domainauth.RoleAdmin),
		"CSRFToken":       CSRFToken(r),
		"CurrentPath":     r.URL.Path,
	}
	if res.Authenticated {
		data["User"] = map[string]string{"ID": res.UserID, "Email": res.Email}
	}
	return &TemplateDataBuilder{data: data, r: r}
}

// WithNav adds the view navigation, marking active as the current view.
func (b *TemplateDataBuilder) WithNav(views []service.ViewInfo, active string) *TemplateDataBuilder {
	nav := make([]NavItem, 0, len(views))
	for _, v := range views {
		nav = append(nav, NavItem{Name: v.Name, Title: v.Title, Active: v.Name == active})
	}
	b.data["Nav"] = nav
	return b
}

// WithError sets a general error message.
func (b *TemplateDataBuilder) WithError(msg string) *TemplateDataBuilder {
	b.data["Error"] = true
	b.data["ErrorMessage"] = msg
	return b
}

// With adds a custom field to the template data.
func (b *TemplateDataBuilder) With(key string, value any) *TemplateDataBuilder {
	b.data[key] = value
	return b
}

// Build returns the final template data map.
func (b *TemplateDataBuilder) Build() map[string]any {
	return b.data
}

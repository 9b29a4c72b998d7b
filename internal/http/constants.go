package httpx

// Page identifiers used in templates and navigation.
const (
	PageView         = "view"
	PageAdmin        = "admin"
	PageGraphiQL     = "graphiql"
	PageUnauthorized = "unauthorized"
	PageLoading      = "loading"
	PageNotFound     = "not-found"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "web/templates"
	TemplatePathFromTest = "../../web/templates"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageView:         "view-content",
	PageAdmin:        "admin-content",
	PageGraphiQL:     "graphiql-content",
	PageUnauthorized: "unauthorized-content",
	PageLoading:      "loading-content",
	PageNotFound:     "not-found-content",
}

// ContentTemplateMap returns the mapping from CurrentPage to template name.
func ContentTemplateMap() map[string]string { return contentTemplates }

// ContentTemplateFor returns the content template for the given CurrentPage.
// Unknown pages fall back to the not-found template.
func ContentTemplateFor(currentPage string) string {
	if name, ok := ContentTemplateMap()[currentPage]; ok {
		return name
	}
	return "not-found-content"
}

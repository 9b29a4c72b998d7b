// Package cqrsmonitor embeds the dashboard's templates and static files.
package cqrsmonitor

import "embed"

//go:embed all:web/static
var StaticFS embed.FS

//go:embed all:web/templates
var TemplateFS embed.FS

// Package templates embeds the dashboard HTML so the binary ships
// self-contained.
package templates

import "embed"

//go:embed *.html
var TemplateFS embed.FS

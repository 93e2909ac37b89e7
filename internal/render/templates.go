package render

import "embed"

// The embedded templates are the shipped defaults. A file of the same name
// under Paths.Templates overrides the embedded copy.
//
//go:embed templates/*.html
var embeddedTemplates embed.FS

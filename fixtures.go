package formengine

import (
	"embed"
	"io/fs"

	"github.com/goliatone/go-formengine/pkg/renderers/html"
	"github.com/goliatone/go-formengine/pkg/schema"
)

//go:embed fixtures/*.yaml fixtures/*.json
var embeddedFixtures embed.FS

// SampleSchemasFS exposes the bundled form schemas the reference backend
// serves when no schema directory is configured.
func SampleSchemasFS() fs.FS {
	sub, err := fs.Sub(embeddedFixtures, "fixtures")
	if err != nil {
		return embeddedFixtures
	}
	return sub
}

// SampleSchemas parses the bundled schemas.
func SampleSchemas() (*schema.Store, error) {
	return schema.LoadFS(SampleSchemasFS())
}

// EmbeddedTemplates exposes the HTML renderer's templates so callers can
// copy and extend them without importing the renderer package directly.
func EmbeddedTemplates() fs.FS {
	return html.TemplatesFS()
}

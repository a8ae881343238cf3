package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

//go:embed *.html
var templatesFS embed.FS

// Engine renders dashboard pages. Every page is parsed into its own copy
// of the layout; files starting with "_" hold shared partials.
type Engine struct {
	templates map[string]*template.Template
	partials  *template.Template
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	// Layout plus partials
	base, err := template.New("layout.html").ParseFS(templatesFS, "layout.html", "_*.html")
	if err != nil {
		return nil, err
	}
	e.partials = base

	entries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "layout.html" || strings.HasPrefix(name, "_") {
			continue
		}

		baseName := name[:len(name)-len(filepath.Ext(name))]

		// Clone layout and parse page template
		tmpl, err := base.Clone()
		if err != nil {
			return nil, err
		}

		_, err = tmpl.ParseFS(templatesFS, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		e.templates[baseName] = tmpl
	}

	return e, nil
}

// Render renders a full page inside the layout
func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.Execute(w, data)
}

// RenderPartial renders a shared partial without the layout (for streamed
// fragments)
func (e *Engine) RenderPartial(w io.Writer, name string, data any) error {
	return e.partials.ExecuteTemplate(w, name, data)
}

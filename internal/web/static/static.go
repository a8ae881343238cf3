package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed css/*
var staticFS embed.FS

// Handler serves the embedded stylesheets; mount it under /static/
func Handler() http.Handler {
	fsys, _ := fs.Sub(staticFS, ".")
	return http.FileServer(http.FS(fsys))
}

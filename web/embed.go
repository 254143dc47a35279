// Package web holds the pagelab browser client. The client is a static page
// that opens /ws/session and draws every frame it receives; this package
// embeds it into the server binary.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// ClientHandler serves the embedded client. Known assets are served as
// files; any other path without an extension gets the client page so that
// deep links still boot the app. Missing assets are 404s.
func ClientHandler() http.Handler {
	client, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: open embedded client: " + err.Error())
	}
	files := http.FileServer(http.FS(client))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" && name != "index.html" && exists(client, name) {
			files.ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" && name != "index.html" {
			http.NotFound(w, r)
			return
		}

		// The page itself must not be cached so a redeploy picks up new assets.
		w.Header().Set("Cache-Control", "no-cache")
		r.URL.Path = "/"
		files.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	if err := f.Close(); err != nil {
		slog.Debug("web: close embedded file", "name", name, "error", err)
	}
	return true
}

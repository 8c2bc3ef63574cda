package http

import (
	"html/template"
	"log/slog"
	"net/http"
	"path"
)

var fileNotFoundPage = template.Must(template.New("404").Parse(`<!DOCTYPE html>
<html>
<head><title>404 Not Found</title></head>
<body>
<h1>404 Not Found</h1>
<p>{{.}} is no longer stored here.</p>
<hr><small>affix</small>
</body>
</html>
`))

// writeFileNotFound answers a browser following a file URL whose blob has
// been replaced or detached.
func writeFileNotFound(w http.ResponseWriter, key string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := fileNotFoundPage.Execute(w, path.Base(key)); err != nil {
		slog.Error("failed to render not found page", "error", err)
	}
}

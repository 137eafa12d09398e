package api

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed assets/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type pageData struct {
	Title   string
	Agent   string
	Catalog Catalog
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data := pageData{
		Title:   "Based Agent Chat Interface",
		Agent:   s.loop.Agent().Name,
		Catalog: s.catalog,
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		s.log.Error("render page failed", "error", err)
		http.Error(w, "render page failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

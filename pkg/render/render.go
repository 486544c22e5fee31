// Package render builds the operator page served at the server root.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

const indexTemplate = "index.html.tmpl"

//go:embed templates/*.tmpl
var templatesFS embed.FS

// IndexPage is the data the operator page is rendered with.
type IndexPage struct {
	Title string
	// APIRoot is the absolute URL of the API, e.g. https://fleet.example.com/api.
	APIRoot string
}

// Engine renders the embedded operator page.
type Engine struct {
	index *template.Template
}

// New parses the embedded templates.
func New() (*Engine, error) {
	t, err := template.ParseFS(templatesFS, "templates/"+indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{index: t.Lookup(indexTemplate)}, nil
}

// RenderIndex renders the operator page pointing the browser at page.APIRoot.
func (e *Engine) RenderIndex(page IndexPage) ([]byte, error) {
	if e == nil || e.index == nil {
		return nil, errors.New("nil engine")
	}
	if strings.TrimSpace(page.APIRoot) == "" {
		return nil, errors.New("api root is required")
	}

	var buf bytes.Buffer
	if err := e.index.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	return buf.Bytes(), nil
}

package api

import (
	"fmt"
	"net/http"
	"strings"

	"shutdownd/pkg/render"
)

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	publicAddress := strings.TrimRight(a.config.PublicAddress, "/")
	if publicAddress == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		publicAddress = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	page, err := a.renderer.RenderIndex(render.IndexPage{
		Title:   a.config.Title,
		APIRoot: publicAddress + "/api",
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

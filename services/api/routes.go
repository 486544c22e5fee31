package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.ready != nil {
			if err := a.ready(r.Context()); err != nil {
				respondError(w, http.StatusServiceUnavailable, err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{}))

	r.Get("/", a.handleIndex)
	r.Get("/index.html", a.handleIndex)
	if a.static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(a.static))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/pong", a.handlePong)

		r.Group(func(r chi.Router) {
			if a.config.OperatorRateLimit > 0 {
				r.Use(httprate.LimitByIP(a.config.OperatorRateLimit, time.Minute))
			}
			r.Use(a.requireAuth)
			r.Post("/shutdown", a.handleShutdown)
			r.Get("/status", a.handleStatus)
			r.Get("/audit", a.handleAudit)
		})
	})

	return r, nil
}

package api

import (
	"context"
	"errors"
	"io/fs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"shutdownd/pkg/events"
	"shutdownd/pkg/render"
	"shutdownd/services/registry"
)

const (
	defaultTitle             = "Shutdown On Lan"
	defaultOperatorRateLimit = 120
	defaultAuditLimit        = 50
	maxAuditLimit            = 500
)

// Publisher delivers fleet events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// AuditLog lists recorded fleet events.
type AuditLog interface {
	Recent(ctx context.Context, limit int) ([]events.AuditEntry, error)
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	// PublicAddress is the externally reachable base URL of the server; the
	// operator page talks to PublicAddress + "/api".
	PublicAddress string
	Title         string
	// AllowedOrigins feeds the CORS policy; empty allows any origin.
	AllowedOrigins []string
	// OperatorRateLimit caps operator requests per client IP per minute.
	// Heartbeats are never limited.
	OperatorRateLimit int
}

// Deps holds the collaborators required by the API layer.
type Deps struct {
	Registry    *registry.Registry
	Renderer    *render.Engine
	Credentials *Credentials
	Static      fs.FS
	Bus         Publisher
	Audit       AuditLog
	// Ready reports whether backing services are reachable; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger zerolog.Logger
}

// API wires the registry, template renderer, and configuration for HTTP handlers.
type API struct {
	registry    *registry.Registry
	renderer    *render.Engine
	credentials *Credentials
	static      fs.FS
	bus         Publisher
	audit       AuditLog
	ready       func(ctx context.Context) error
	logger      zerolog.Logger
	config      Config

	metricsRegistry *prometheus.Registry
	metrics         *metrics
}

// New initialises the API layer with sane defaults applied to the provided configuration.
func New(deps Deps, cfg Config) (*API, error) {
	if deps.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("credentials are required")
	}

	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}
	if cfg.OperatorRateLimit == 0 {
		cfg.OperatorRateLimit = defaultOperatorRateLimit
	}

	reg := prometheus.NewRegistry()
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &API{
		registry:        deps.Registry,
		renderer:        deps.Renderer,
		credentials:     deps.Credentials,
		static:          deps.Static,
		bus:             deps.Bus,
		audit:           deps.Audit,
		ready:           deps.Ready,
		logger:          deps.Logger,
		config:          cfg,
		metricsRegistry: reg,
		metrics:         m,
	}, nil
}

// RecordEvictions publishes and counts computers evicted outside of a request,
// for instance by the periodic sweeper.
func (a *API) RecordEvictions(ctx context.Context, evicted []registry.Eviction) {
	a.metrics.evictions.Add(float64(len(evicted)))
	for _, ev := range evicted {
		a.logger.Info().
			Str("group", ev.Group).
			Str("computer", ev.Computer).
			Str("state", ev.State.String()).
			Time("last_heartbeat", ev.LastHeartbeat).
			Msg("evicted stale computer")
	}
	a.publishEvictions(ctx, evicted)
}

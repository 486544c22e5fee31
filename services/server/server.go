// Package server assembles the shutdownd process: registry, HTTP API,
// periodic sweeper and the optional event bus and audit store.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"shutdownd/infra/web"
	"shutdownd/pkg/bus"
	"shutdownd/pkg/db"
	"shutdownd/pkg/events"
	"shutdownd/pkg/render"
	"shutdownd/pkg/telemetry"
	"shutdownd/services/api"
	"shutdownd/services/audit"
	"shutdownd/services/registry"
	"shutdownd/services/server/internal/config"
)

// ServiceName identifies the server in traces and bus connections.
const ServiceName = "shutdownd"

// Server owns every long-lived component of the process.
type Server struct {
	cfg      config.Config
	logger   zerolog.Logger
	registry *registry.Registry
	api      *api.API
	handler  http.Handler

	bus      *bus.Bus
	pool     *pgxpool.Pool
	recorder *audit.Recorder
	cleanup  []func(context.Context) error
}

// New builds a Server from cfg. Bus and database connections are opened only
// when configured; the audit recorder needs both.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(registry.WithStaleThreshold(cfg.Threshold())),
	}

	ok := false
	defer func() {
		if !ok {
			s.close(context.Background())
		}
	}()

	shutdownTelemetry, tracing, err := telemetry.Init(ctx, ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return nil, err
	}
	s.cleanup = append(s.cleanup, shutdownTelemetry)

	creds, err := api.LoadHtpasswd(cfg.HtpasswdFile)
	if err != nil {
		return nil, err
	}

	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	deps := api.Deps{
		Registry:    s.registry,
		Renderer:    renderer,
		Credentials: creds,
		Static:      staticFS(cfg.StaticDir),
		Logger:      logger,
	}

	if cfg.NATSURL != "" {
		b, err := bus.Connect(cfg.NATSURL, ServiceName)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		s.bus = b
		if err := b.EnsureStream(events.StreamName, events.AllSubjects); err != nil {
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
		deps.Bus = b
	}

	if cfg.AuditEnabled() {
		pool, err := db.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}

		recorder, err := audit.NewRecorder(pool, s.bus, logger.With().Str("component", "audit").Logger())
		if err != nil {
			return nil, err
		}
		if err := recorder.Start(ctx); err != nil {
			return nil, fmt.Errorf("start audit recorder: %w", err)
		}
		s.recorder = recorder
		deps.Audit = recorder
		deps.Ready = func(ctx context.Context) error { return db.Ping(ctx, pool) }
	} else if cfg.DBDSN != "" {
		logger.Warn().Msg("DB_DSN is set without NATS_URL; audit trail disabled")
	}

	a, err := api.New(deps, api.Config{
		PublicAddress:     cfg.PublicAddress,
		AllowedOrigins:    cfg.AllowedOrigins,
		OperatorRateLimit: cfg.OperatorRateLimit,
	})
	if err != nil {
		return nil, err
	}
	s.api = a

	routes, err := a.Routes()
	if err != nil {
		return nil, err
	}
	s.handler = tracing(routes)

	ok = true
	return s, nil
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP and sweeps the registry until ctx is cancelled, then shuts
// everything down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Dur("stale_threshold", s.registry.Threshold()).Msg("starting shutdownd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		err := s.registry.RunSweeper(ctx, s.cfg.SweepInterval, func(evicted []registry.Eviction) {
			s.api.RecordEvictions(ctx, evicted)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("sweeper: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("shutdown server")
	}
	s.close(shutdownCtx)
	return runErr
}

func (s *Server) close(ctx context.Context) {
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Error().Err(err).Msg("close audit recorder")
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	for _, fn := range s.cleanup {
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Msg("shutdown telemetry")
		}
	}
}

func staticFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return web.Static()
}

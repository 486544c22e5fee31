// Package agent implements the heartbeat loop that runs on every computer of
// the fleet and powers it off when the server asks it to.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shutdownd/pkg/state"
)

// Service pongs the server and powers the machine off on request.
type Service struct {
	client *http.Client
	config Config
	power  Powerer
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewService returns a Service for cfg. A nil power uses the configured or
// platform default shutdown command.
func NewService(cfg Config, power Powerer, logger zerolog.Logger) *Service {
	if power == nil {
		power = NewCommandPowerer(cfg.ShutdownCommand)
	}
	return &Service{
		client: &http.Client{Timeout: 15 * time.Second},
		config: cfg,
		power:  power,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run executes the heartbeat loop until ctx is cancelled or the power-off
// command fails.
func (s *Service) Run(ctx context.Context) error {
	for {
		st, err := s.Pong(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("pong failed")
			if err := s.sleep(ctx, s.config.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if st == state.ShutdownRequested {
			s.logger.Info().
				Str("group", s.config.GroupName).
				Str("computer", s.config.ComputerName).
				Msg("shutdown requested")
			if err := s.power.PowerOff(ctx); err != nil {
				return fmt.Errorf("unable to shut down the computer: %w", err)
			}
		}

		if err := s.sleep(ctx, s.config.Interval); err != nil {
			return err
		}
	}
}

// Pong sends one heartbeat and returns the state reported by the server.
func (s *Service) Pong(ctx context.Context) (state.State, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := url.Values{}
	query.Set("group_name", s.config.GroupName)
	query.Set("computer_name", s.config.ComputerName)
	endpoint := s.config.APIPongURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, fmt.Errorf("unable to pong the API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, fmt.Errorf("pong unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var st state.State
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024)).Decode(&st); err != nil {
		return 0, fmt.Errorf("invalid response format from the API: %w", err)
	}
	return st, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

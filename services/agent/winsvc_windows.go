//go:build windows

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows/svc"
)

const serviceName = "ShutdownOnLanAgent"

// RunPlatform runs s under the Service Control Manager when started as a
// Windows service and in the foreground otherwise.
func RunPlatform(ctx context.Context, s *Service) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("detecting service environment: %w", err)
	}
	if !isService {
		return s.Run(ctx)
	}

	p := &program{svc: s, logger: s.logger, parent: ctx}
	if err := svc.Run(serviceName, p); err != nil {
		return err
	}
	return p.err
}

type program struct {
	svc    *Service
	logger zerolog.Logger
	parent context.Context
	err    error
}

func (p *program) Execute(_ []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(p.parent)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.svc.Run(ctx) }()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}

	for {
		select {
		case err := <-done:
			changes <- svc.Status{State: svc.StopPending}
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error().Err(err).Msg("agent stopped")
				p.err = err
				return false, 2
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				<-done
				return false, 0
			default:
			}
		}
	}
}

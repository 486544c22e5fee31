//go:build !windows

package agent

import "context"

// RunPlatform runs s in the foreground.
func RunPlatform(ctx context.Context, s *Service) error {
	return s.Run(ctx)
}

package registry

import (
	"context"
	"errors"
	"time"
)

// RunSweeper sweeps the registry every interval until ctx is cancelled.
// onEvict, if set, receives each non-empty batch of evictions.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration, onEvict func([]Eviction)) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			evicted, err := r.Sweep(ctx, r.now(), r.threshold)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if len(evicted) > 0 && onEvict != nil {
				onEvict(evicted)
			}
		}
	}
}

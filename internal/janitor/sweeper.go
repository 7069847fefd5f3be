// Package janitor removes expired single-use tokens and refresh tokens.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Purger deletes expired rows and reports how many went.
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	purgers  map[string]Purger
	interval time.Duration
}

func NewSweeper(interval time.Duration, purgers map[string]Purger) *Sweeper {
	return &Sweeper{purgers: purgers, interval: interval}
}

// SweepOnce runs every purger even when an earlier one fails and returns the
// joined errors along with per-table counts.
func (s *Sweeper) SweepOnce(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.purgers))
	var errs []error

	for name, p := range s.purgers {
		n, err := p.DeleteExpired(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to purge expired rows", "table", name, "error", err)
			errs = append(errs, err)
			continue
		}
		counts[name] = n
	}

	slog.InfoContext(ctx, "Token sweep finished", "deleted", counts)
	return counts, errors.Join(errs...)
}

// Run sweeps once at start and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.SweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		case <-ctx.Done():
			slog.Info("Token sweeper stopped")
			return
		}
	}
}

package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the expiry sweep on a schedule instead of per-request.
type Sweeper struct {
	svc      *Service
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSweeper constructs a Sweeper. Interval defaults to 10 minutes.
func NewSweeper(svc *Service, log *slog.Logger, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{svc: svc, log: log, interval: interval, now: time.Now}
}

// Run blocks until ctx is canceled, sweeping once per interval.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := sw.svc.Sweep(ctx, sw.now().UTC())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				sw.log.Error("auth.sweep.fail", "err", err)
				continue
			}
			if rep.Sessions > 0 || rep.Renewals > 0 || rep.Revocations > 0 {
				sw.log.Info("auth.sweep.done",
					"sessions", rep.Sessions,
					"renewals", rep.Renewals,
					"revocations", rep.Revocations,
				)
			}
		}
	}
}

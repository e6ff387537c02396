package token

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	log "github.com/avastel/gatekeeper/logger"
)

const (
	defaultSweepInterval  = 5 * time.Minute
	defaultSweepBatchSize = 500
)

// Janitor periodically deactivates expired tokens. Deactivation is a
// conditional transition in the store, so a sweep racing a validator
// on the same token stays a no-op for whichever side loses.
type Janitor struct {
	store    Store
	logger   log.Logger
	metrics  *Metrics
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewJanitor(store Store, logger log.Logger, metrics *Metrics, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{
		store:    store,
		logger:   logger.WithSubsystem("janitor"),
		metrics:  metrics,
		interval: interval,
		batch:    defaultSweepBatchSize,
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("janitor started", log.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.SweepExpired(ctx); err != nil {
				j.logger.Error("expired token sweep failed", log.Err(err))
			}
		}
	}
}

// SweepExpired deactivates every active token whose expiry has passed,
// in batches. Per-token failures are collected so one bad row does not
// abort the sweep, and the count of deactivated tokens is returned
// alongside any aggregate error.
func (j *Janitor) SweepExpired(ctx context.Context) (int, error) {
	now := j.now()
	total := 0
	var merr *multierror.Error

	for {
		expired, err := j.store.ListExpired(ctx, now, j.batch)
		if err != nil {
			merr = multierror.Append(merr, err)
			break
		}
		if len(expired) == 0 {
			break
		}

		deactivated := 0
		for _, t := range expired {
			if err := j.store.Deactivate(ctx, t.ID, ReasonExpired, now); err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			deactivated++
		}
		total += deactivated

		// A pass that made no progress would re-list the same rows
		// forever, so stop and surface the collected errors.
		if deactivated == 0 || len(expired) < j.batch {
			break
		}
	}

	j.metrics.AddJanitorSweep(int64(total))
	if total > 0 {
		j.logger.Info("expired tokens deactivated", log.Int("count", total))
	}

	return total, merr.ErrorOrNil()
}

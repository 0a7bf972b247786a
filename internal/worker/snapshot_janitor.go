package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultJanitorInterval is how often expired snapshots are swept.
const DefaultJanitorInterval = time.Hour

// SnapshotPurger deletes snapshots saved before a cutoff.
// *repository.ProgressSQLRepository implements it.
type SnapshotPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SnapshotJanitor removes snapshots past the age ceiling from stores that do
// not expire keys on their own.
type SnapshotJanitor struct {
	purger   SnapshotPurger
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewSnapshotJanitor(purger SnapshotPurger, maxAge, interval time.Duration, log zerolog.Logger) *SnapshotJanitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &SnapshotJanitor{
		purger:   purger,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "snapshot_janitor").Logger(),
	}
}

// Start sweeps once immediately and then on every interval until ctx ends.
func (j *SnapshotJanitor) Start(ctx context.Context) {
	j.log.Info().Dur("interval", j.interval).Msg("SnapshotJanitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.Sweep(ctx)
		select {
		case <-ctx.Done():
			j.log.Info().Msg("SnapshotJanitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes every snapshot older than the age ceiling.
func (j *SnapshotJanitor) Sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			j.log.Error().Err(err).Msg("Snapshot sweep failed")
		}
		return
	}
	if n > 0 {
		j.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("Expired snapshots purged")
	}
}

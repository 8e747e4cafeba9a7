package relay

import (
	"context"
	"time"
)

// BackupScheduler periodically flushes a coarse summary of every active
// session through the bridge, as a loss-mitigation net independent of
// the event-driven recording paths, and evicts sessions which have gone
// idle. It never triggers billing-relevant stats calls.
type BackupScheduler struct {
	store    *SessionStore
	bridge   Bridge
	logger   Logger
	interval time.Duration
}

func NewBackupScheduler(store *SessionStore, bridge Bridge, interval time.Duration, logger Logger) *BackupScheduler {
	return &BackupScheduler{
		store:    store,
		bridge:   bridge,
		interval: interval,
		logger:   logger,
	}
}

func (b *BackupScheduler) Run(ctx context.Context) {
	tick := time.NewTicker(b.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Debugf("Stopping backup scheduler")
			return
		case <-tick.C:
			b.flush(time.Now())
		}
	}
}

func (b *BackupScheduler) flush(now time.Time) {
	due := b.store.SessionsDueForBackup(now, b.interval)

	for _, summary := range due {
		summary := summary

		go func() {
			if err := b.bridge.RecordSessionSummary(summary); err != nil {
				metricPersistFailures.Inc()
				b.logger.WithError(err).Errorf("Could not record summary for session: '%s'", summary.SessionName)
			}
		}()
	}

	if removed := b.store.Sweep(now); removed > 0 {
		b.logger.Infof("Swept %d idle sessions, %d still live", removed, b.store.Len())
	}
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type auditPurger interface {
	PurgeDeleted(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditWorker is a periodic background job that purges audit entries past
// the retention window, but only for soft-deleted elections. Live election
// trails are never touched.
type AuditWorker struct {
	audit     auditPurger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewAuditWorker creates a worker that ticks every interval.
func NewAuditWorker(audit auditPurger, interval, retention time.Duration) *AuditWorker {
	return &AuditWorker{
		audit:     audit,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic purge loop. It runs one tick immediately, then
// every interval.
func (w *AuditWorker) Start(ctx context.Context) {
	log.Info().
		Str("interval", w.interval.String()).
		Str("retention", w.retention.String()).
		Msg("audit-worker: starting")

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			log.Info().Msg("audit-worker: stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("audit-worker: stopping (stop signal)")
			return
		}
	}
}

// Stop signals the worker to stop.
func (w *AuditWorker) Stop() {
	close(w.stopCh)
}

func (w *AuditWorker) tick(ctx context.Context) {
	start := time.Now()

	purged, err := w.audit.PurgeDeleted(ctx, w.retention)
	if err != nil {
		log.Error().Err(err).Msg("audit-worker: purge failed")
		return
	}

	if purged > 0 {
		log.Info().
			Int64("purged", purged).
			Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
			Msg("audit-worker: tick complete")
	}
}

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSyncInterval is used when no interval is configured.
const DefaultSyncInterval = 5 * time.Second

// SessionSyncer reconciles the live session with the shared store.
type SessionSyncer interface {
	Sync(ctx context.Context) (bool, error)
}

// SessionSyncWorker keeps the console in step with other processes that
// share the session store, such as consolectl signing in or out.
type SessionSyncWorker struct {
	syncer   SessionSyncer
	interval time.Duration
	log      zerolog.Logger
}

// NewSessionSyncWorker creates a new SessionSyncWorker.
func NewSessionSyncWorker(syncer SessionSyncer, interval time.Duration, log zerolog.Logger) *SessionSyncWorker {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SessionSyncWorker{
		syncer:   syncer,
		interval: interval,
		log:      log.With().Str("component", "session_sync_worker").Logger(),
	}
}

// Start runs the sync loop until ctx is cancelled. Call in a goroutine.
func (w *SessionSyncWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			failing = w.tick(ctx, failing)
		}
	}
}

// tick runs one sync. Store errors are logged once per outage.
func (w *SessionSyncWorker) tick(ctx context.Context, failing bool) bool {
	changed, err := w.syncer.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failing
		}
		if !failing {
			w.log.Warn().Err(err).Msg("Session store unavailable")
		}
		return true
	}
	if failing {
		w.log.Info().Msg("Session store reachable again")
	}
	if changed {
		w.log.Debug().Msg("Session changed in the store")
	}
	return false
}

package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "staffcal/internal/log"
	"staffcal/internal/metrics"
)

// RefresherConfig controls the refresh window and cadence.
type RefresherConfig struct {
	// Spec is a standard 5-field cron expression, e.g. "*/15 * * * *".
	Spec string
	// Location is the zone used for the cron schedule and day boundaries.
	Location *time.Location
	// Backfill and Horizon bound the window in days around today.
	Backfill int
	Horizon  int
	// Timeout bounds one refresh. Zero means one minute.
	Timeout time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

// Refresher pulls meetings from a Source into a Store on a cron schedule.
// A failed refresh keeps the previous snapshot; a partial one (some feeds
// failed) still replaces it.
type Refresher struct {
	cfg   RefresherConfig
	store *Store

	mu     sync.Mutex
	source Source
	cron   *cron.Cron

	// run serializes refreshes so a slow cron tick and a manual trigger
	// never overlap.
	run sync.Mutex
}

// NewRefresher validates cfg and returns a stopped refresher.
func NewRefresher(src Source, store *Store, cfg RefresherConfig) (*Refresher, error) {
	if src == nil || store == nil {
		return nil, errors.New("schedule: source and store are required")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Backfill < 0 {
		cfg.Backfill = 0
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, err
	}
	return &Refresher{cfg: cfg, store: store, source: src}, nil
}

// SetSource swaps the meeting source, e.g. after a config reload. The next
// refresh uses it.
func (r *Refresher) SetSource(src Source) {
	r.mu.Lock()
	r.source = src
	r.mu.Unlock()
}

// Window returns the [from, to] range the next refresh will request.
func (r *Refresher) Window() (time.Time, time.Time) {
	now := r.cfg.Now().In(r.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.cfg.Location)
	return today.AddDate(0, 0, -r.cfg.Backfill), today.AddDate(0, 0, r.cfg.Horizon+1)
}

// Refresh runs one pull immediately and swaps the snapshot unless the
// source returned nothing but an error.
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	r.run.Lock()
	defer r.run.Unlock()

	r.mu.Lock()
	src := r.source
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	from, to := r.Window()
	started := time.Now()
	meetings, err := src.Search(ctx, from, to)

	if err != nil && len(meetings) == 0 {
		metrics.Refreshes.WithLabelValues("error").Inc()
		appLog.Error("refresh failed; keeping previous snapshot", err,
			"from", from.Format(time.DateOnly),
			"to", to.Format(time.DateOnly),
		)
		snap, _ := r.store.Current()
		return snap, err
	}

	snap := r.store.Replace(from, to, meetings)
	metrics.SnapshotMeetings.Set(float64(len(meetings)))

	outcome := "ok"
	if err != nil {
		outcome = "partial"
		appLog.Error("refresh partially failed", err, "meetings", len(meetings))
	}
	metrics.Refreshes.WithLabelValues(outcome).Inc()
	appLog.Info("refresh completed",
		"version", snap.Version,
		"meetings", len(meetings),
		"outcome", outcome,
		"took", time.Since(started).String(),
	)
	return snap, err
}

// Start schedules Refresh on the cron spec. It does not run an initial
// refresh; callers that want one call Refresh first.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("schedule: refresher already started")
	}

	c := cron.New(cron.WithLocation(r.cfg.Location))
	if _, err := c.AddFunc(r.cfg.Spec, func() {
		if _, err := r.Refresh(ctx); err != nil {
			appLog.Debug("scheduled refresh returned error", "err", err.Error())
		}
	}); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	appLog.Info("refresher started", "spec", r.cfg.Spec, "timezone", r.cfg.Location.String())
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	appLog.Info("refresher stopped")
}

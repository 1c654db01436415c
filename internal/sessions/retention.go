package sessions

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionSweeper periodically deletes sessions whose last activity is
// older than TTL, per spec.md §4.7's retention requirement. Scheduled
// via github.com/robfig/cron/v3, grounded on internal/cron/schedule.go's
// use of the same library elsewhere in the teacher's task scheduler
// (internal/tasks/scheduler.go), generalized here from a user-defined
// job schedule to a fixed interval sweep.
type RetentionSweeper struct {
	Store Store
	TTL   time.Duration
	Log   *slog.Logger

	cron *cron.Cron
}

// NewRetentionSweeper builds a sweeper; call Start to schedule it.
func NewRetentionSweeper(store Store, ttl time.Duration, log *slog.Logger) *RetentionSweeper {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionSweeper{
		Store: store,
		TTL:   ttl,
		Log:   log.With("component", "sessions.retention"),
	}
}

// Start schedules the sweep on the given cron spec (e.g. "@every 5m")
// and begins running it in the background.
func (r *RetentionSweeper) Start(spec string) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(spec, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (r *RetentionSweeper) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

func (r *RetentionSweeper) sweep() {
	cutoff := time.Now().Add(-r.TTL)
	sessions, err := r.Store.List(ListOptions{})
	if err != nil {
		r.Log.Warn("retention sweep: list failed", "error", err)
		return
	}
	deleted := 0
	for _, s := range sessions {
		if s.UpdatedAt.Before(cutoff) {
			if err := r.Store.Delete(s.ID); err != nil {
				r.Log.Warn("retention sweep: delete failed", "session", s.ID, "error", err)
				continue
			}
			deleted++
		}
	}
	if deleted > 0 {
		r.Log.Info("retention sweep complete", "deleted", deleted)
	}
}

package toolmgr

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"reembed/internal/logging"
)

// Refresher is the part of Manager the scheduler drives.
type Refresher interface {
	RefreshIfNewer(ctx context.Context) (RefreshResult, error)
}

// Scheduler throttles background refreshes. Acquisitions call MaybeRefresh
// on every attempt; at most one refresh runs at a time and none starts
// until the interval has elapsed since the last check began.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	base      context.Context
	logger    *slog.Logger
	now       func() time.Time

	lastChecked atomic.Int64
	running     sync.Mutex
	wg          sync.WaitGroup
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRefreshTimeout bounds each background refresh. Zero means no bound
// beyond the base context.
func WithRefreshTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.timeout = timeout }
}

// NewScheduler returns a Scheduler whose refreshes run under base, so they
// outlive the acquisition that triggered them. The last check is taken to
// be now, since startup has just installed the tool.
func NewScheduler(base context.Context, refresher Refresher, interval time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if base == nil {
		base = context.Background()
	}
	s := &Scheduler{
		refresher: refresher,
		interval:  interval,
		base:      base,
		logger:    logging.NewComponentLogger(logger, "toolmgr"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastChecked.Store(s.now().UnixNano())
	return s
}

// LastChecked reports when the most recent check began.
func (s *Scheduler) LastChecked() time.Time {
	return time.Unix(0, s.lastChecked.Load())
}

// MaybeRefresh starts a background refresh when the interval has elapsed
// and no refresh is in flight. It never blocks and reports whether a
// refresh was started.
func (s *Scheduler) MaybeRefresh() bool {
	now := s.now()
	if now.Sub(s.LastChecked()) < s.interval {
		return false
	}
	if !s.running.TryLock() {
		return false
	}
	if now.Sub(s.LastChecked()) < s.interval {
		s.running.Unlock()
		return false
	}
	s.lastChecked.Store(now.UnixNano())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.refresh()
	}()
	return true
}

func (s *Scheduler) refresh() {
	ctx := s.base
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result, err := s.refresher.RefreshIfNewer(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "background tool refresh failed", "tool_refresh_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "the current executable stays in use; the next acquisition after the interval retries"),
			logging.String(logging.FieldImpact, "extraction may run on an outdated build"),
		)
		return
	}
	s.logger.Debug("background tool refresh complete",
		logging.String("status", result.Status.String()),
		logging.String("tag", result.Current.Tag),
	)
}

// Wait blocks until any in-flight refresh returns.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"reembed/internal/logging"
)

// Options configure a Janitor.
type Options struct {
	ScratchDir string
	// MaxAge is how long a scratch file may live before it counts as leaked.
	MaxAge time.Duration
	LogDir string
	// LogRetention prunes rotated logs; zero keeps them forever.
	LogRetention time.Duration
	// Schedule is a standard cron spec or descriptor such as "@every 15m".
	Schedule string
}

// Report counts what one sweep removed.
type Report struct {
	Scratch int
	Logs    int
}

// Janitor removes scratch files that crashed or leaked acquisitions left
// behind and prunes old log files.
type Janitor struct {
	opts   Options
	logger *slog.Logger
	cron   *cron.Cron
}

// New validates the schedule.
func New(opts Options, logger *slog.Logger) (*Janitor, error) {
	if opts.ScratchDir == "" {
		return nil, errors.New("janitor: scratch directory required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 15m"
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", opts.Schedule, err)
	}
	return &Janitor{opts: opts, logger: logging.NewComponentLogger(logger, "janitor")}, nil
}

// WipeScratch empties the scratch directory. The daemon calls it once at
// start, before any acquisition can be in flight.
func (j *Janitor) WipeScratch() error {
	entries, err := os.ReadDir(j.opts.ScratchDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(j.opts.ScratchDir, 0o755)
		}
		return fmt.Errorf("read scratch directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(j.opts.ScratchDir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(entries) > 0 {
		j.logger.Info("scratch directory wiped", logging.Int("entries", len(entries)))
	}
	return errors.Join(errs...)
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() Report {
	report := Report{
		Scratch: logging.CleanupOldLogs(j.logger, j.opts.MaxAge, logging.RetentionTarget{Dir: j.opts.ScratchDir}),
	}
	if j.opts.LogDir != "" {
		report.Logs = logging.CleanupOldLogs(j.logger, j.opts.LogRetention, logging.RetentionTarget{
			Dir:     j.opts.LogDir,
			Pattern: "*.log*",
			Exclude: []string{filepath.Join(j.opts.LogDir, logging.LogFileName)},
		})
	}
	if report.Scratch > 0 || report.Logs > 0 {
		j.logger.Info("janitor sweep removed files",
			logging.Int("scratch", report.Scratch),
			logging.Int("logs", report.Logs),
			logging.String(logging.FieldEventType, "janitor_sweep"),
		)
	}
	return report
}

// Start schedules Sweep until ctx ends or Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := j.cron.AddFunc(j.opts.Schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("janitor: schedule sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Debug("janitor started", logging.String("schedule", j.opts.Schedule))
	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

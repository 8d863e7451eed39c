// Package reminders scans upcoming lessons on a schedule and dispatches
// notifications.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/pkg/logger"
)

// Notifier delivers one lesson reminder. Implementations are external
// (email, SMS); delivery failures are logged and retried on the next sweep.
type Notifier interface {
	NotifyLessonReminder(ctx context.Context, lesson booking.Lesson) error
}

// LogNotifier records reminders in the log. It stands in until a real
// delivery channel (email, SMS) is configured.
func LogNotifier(log *logger.Logger) Notifier {
	if log == nil {
		log = logger.NewDefault("reminders")
	}
	return notifierFunc(func(_ context.Context, lesson booking.Lesson) error {
		log.WithFields(map[string]interface{}{
			"lesson_id":  lesson.ID,
			"student_id": lesson.StudentID,
			"start":      lesson.Start,
		}).Info("lesson reminder due")
		return nil
	})
}

type notifierFunc func(ctx context.Context, lesson booking.Lesson) error

func (f notifierFunc) NotifyLessonReminder(ctx context.Context, lesson booking.Lesson) error {
	return f(ctx, lesson)
}

// Config holds the reminder runner settings.
type Config struct {
	// Schedule is a cron expression; the default sweeps hourly.
	Schedule string
	// Horizon is how far ahead a lesson must start to get a reminder.
	Horizon time.Duration
	// SweepTimeout bounds one full sweep.
	SweepTimeout time.Duration
}

// DefaultConfig returns the default reminder configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:     "0 * * * *",
		Horizon:      24 * time.Hour,
		SweepTimeout: time.Minute,
	}
}

// Runner periodically scans for upcoming lessons and notifies participants.
type Runner struct {
	store    storage.BookingStore
	notifier Notifier
	cfg      Config
	logger   *logger.Logger

	cron *cron.Cron
	now  func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

// New creates a reminder runner.
func New(store storage.BookingStore, notifier Notifier, cfg Config, log *logger.Logger) *Runner {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultConfig().Schedule
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultConfig().Horizon
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = DefaultConfig().SweepTimeout
	}
	if log == nil {
		log = logger.NewDefault("reminders")
	}
	return &Runner{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

// Start registers the sweep on the cron schedule and begins running it.
func (r *Runner) Start() error {
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SweepTimeout)
		defer cancel()
		if err := r.Sweep(ctx); err != nil {
			r.logger.WithError(err).Error("reminder sweep failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.logger.WithField("schedule", r.cfg.Schedule).Info("reminder runner started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("reminder runner stopped")
}

// Sweep notifies every booked lesson starting within the horizon that has not
// been notified yet. Safe to call concurrently with itself.
func (r *Runner) Sweep(ctx context.Context) error {
	from := r.now().UTC()
	to := from.Add(r.cfg.Horizon)

	lessons, err := r.store.ListLessonsBetween(ctx, from, to)
	if err != nil {
		return err
	}

	sent := 0
	for _, lesson := range lessons {
		if !r.claim(lesson.ID) {
			continue
		}
		if err := r.notifier.NotifyLessonReminder(ctx, lesson); err != nil {
			// Release the claim so the next sweep retries delivery.
			r.release(lesson.ID)
			r.logger.WithError(err).WithField("lesson_id", lesson.ID).Warn("reminder delivery failed")
			continue
		}
		sent++
	}
	r.pruneExpired(from)

	if sent > 0 {
		r.logger.WithField("sent", sent).Info("reminders dispatched")
	}
	return nil
}

func (r *Runner) claim(lessonID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.notified[lessonID]; done {
		return false
	}
	r.notified[lessonID] = r.now().UTC()
	return true
}

func (r *Runner) release(lessonID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notified, lessonID)
}

// pruneExpired drops claims older than the horizon so the map stays bounded.
func (r *Runner) pruneExpired(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, at := range r.notified {
		if now.Sub(at) > r.cfg.Horizon {
			delete(r.notified, id)
		}
	}
}

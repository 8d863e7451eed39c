package reminders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/storage/memory"
	"github.com/driveline/platform/pkg/logger"
)

type captureNotifier struct {
	mu      sync.Mutex
	lessons []booking.Lesson
	fail    bool
}

func (n *captureNotifier) NotifyLessonReminder(_ context.Context, lesson booking.Lesson) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp down")
	}
	n.lessons = append(n.lessons, lesson)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.lessons)
}

func newTestRunner(t *testing.T) (*Runner, *memory.Store, *captureNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &captureNotifier{}
	log := logger.NewDefault("reminders-test")
	log.SetOutput(io.Discard)
	r := New(store, notifier, DefaultConfig(), log)
	return r, store, notifier
}

func seedLesson(t *testing.T, store *memory.Store, start time.Time, status string) booking.Lesson {
	t.Helper()
	lesson, err := store.CreateLesson(context.Background(), booking.Lesson{
		StudentID:    "stu-1",
		InstructorID: "inst-1",
		Start:        start,
		End:          start.Add(time.Hour),
		Status:       status,
	})
	if err != nil {
		t.Fatalf("create lesson: %v", err)
	}
	return lesson
}

func TestSweepNotifiesUpcomingLessonsOnce(t *testing.T) {
	r, store, notifier := newTestRunner(t)
	now := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	seedLesson(t, store, now.Add(2*time.Hour), booking.StatusBooked)
	seedLesson(t, store, now.Add(23*time.Hour), booking.StatusBooked)
	seedLesson(t, store, now.Add(48*time.Hour), booking.StatusBooked) // beyond horizon
	seedLesson(t, store, now.Add(3*time.Hour), booking.StatusCancelled)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 reminders, got %d", notifier.count())
	}

	// A second sweep must not re-notify.
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("second sweep re-notified, total %d", notifier.count())
	}
}

func TestSweepRetriesFailedDeliveries(t *testing.T) {
	r, store, notifier := newTestRunner(t)
	now := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	seedLesson(t, store, now.Add(2*time.Hour), booking.StatusBooked)

	notifier.fail = true
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatalf("failed delivery recorded as sent")
	}

	notifier.fail = false
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected delivery on retry, got %d", notifier.count())
	}
}

func TestStartStop(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	store := memory.New()
	log := logger.NewDefault("reminders-test")
	log.SetOutput(io.Discard)
	r := New(store, &captureNotifier{}, Config{Schedule: "not a cron line"}, log)
	if err := r.Start(); err == nil {
		t.Fatal("invalid schedule must fail")
	}
}

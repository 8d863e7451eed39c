package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/domain/content"
	"github.com/driveline/platform/internal/app/domain/referral"
	"github.com/driveline/platform/internal/app/storage"
)

func TestContentInsertAndVersionedUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	item := content.Item{
		Page:      "home",
		Key:       "headline",
		Type:      content.TypeText,
		Value:     json.RawMessage(`"Welcome"`),
		UpdatedBy: "editor-1",
	}

	created, err := s.InsertContentItem(ctx, item)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("first write must have version 1, got %d", created.Version)
	}

	if _, err := s.InsertContentItem(ctx, item); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("duplicate insert must conflict, got %v", err)
	}

	created.Value = json.RawMessage(`"Updated"`)
	updated, err := s.UpdateContentItemVersioned(ctx, created, 1)
	if err != nil {
		t.Fatalf("versioned update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version must increment to 2, got %d", updated.Version)
	}

	// Stale guard must fail and leave the stored item untouched.
	if _, err := s.UpdateContentItemVersioned(ctx, created, 1); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("stale update must conflict, got %v", err)
	}
	stored, err := s.GetContentItem(ctx, "home", "headline")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 || string(stored.Value) != `"Updated"` {
		t.Fatalf("conflicting write mutated the item: %#v", stored)
	}
}

func TestContentConcurrentCASAllowsExactlyOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.InsertContentItem(ctx, content.Item{Page: "p", Key: "k", Type: content.TypeText, Value: json.RawMessage(`"v"`)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const writers = 16
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateContentItemVersioned(ctx, content.Item{Page: "p", Key: "k", Type: content.TypeText, Value: json.RawMessage(`"w"`)}, 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, storage.ErrVersionConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("exactly one writer must win the version guard, got %d", wins)
	}
}

func TestContentListByPage(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, key := range []string{"b", "a"} {
		if _, err := s.InsertContentItem(ctx, content.Item{Page: "home", Key: key, Type: content.TypeText, Value: json.RawMessage(`"x"`)}); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}
	if _, err := s.InsertContentItem(ctx, content.Item{Page: "pricing", Key: "a", Type: content.TypeText, Value: json.RawMessage(`"y"`)}); err != nil {
		t.Fatalf("insert pricing: %v", err)
	}

	items, err := s.ListContentItems(ctx, "home")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Key != "a" || items[1].Key != "b" {
		t.Fatalf("unexpected listing: %#v", items)
	}
}

func TestLessonQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	mk := func(instructor string, start time.Time, status string) booking.Lesson {
		lesson, err := s.CreateLesson(ctx, booking.Lesson{
			StudentID:    "stu",
			InstructorID: instructor,
			Start:        start,
			End:          start.Add(time.Hour),
			Status:       status,
		})
		if err != nil {
			t.Fatalf("create lesson: %v", err)
		}
		return lesson
	}

	mk("inst-1", base, booking.StatusBooked)
	mk("inst-1", base.Add(2*time.Hour), booking.StatusBooked)
	cancelled := mk("inst-1", base.Add(4*time.Hour), booking.StatusCancelled)
	mk("inst-2", base, booking.StatusBooked)

	day, err := s.ListLessons(ctx, "inst-1", base.Add(-time.Hour), base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("list lessons: %v", err)
	}
	if len(day) != 3 {
		t.Fatalf("expected 3 inst-1 lessons in range, got %d", len(day))
	}

	upcoming, err := s.ListLessonsBetween(ctx, base.Add(-time.Hour), base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	for _, lesson := range upcoming {
		if lesson.ID == cancelled.ID {
			t.Fatalf("cancelled lesson must not appear in reminder scan")
		}
	}
	if len(upcoming) != 3 {
		t.Fatalf("expected 3 booked lessons, got %d", len(upcoming))
	}
}

func TestRedemptionUniquePerReferee(t *testing.T) {
	s := New()
	ctx := context.Background()

	code, err := s.CreateReferralCode(ctx, referral.Code{Code: "DRIVE5", OwnerID: "owner"})
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := s.CreateRedemption(ctx, referral.Redemption{CodeID: code.ID, RefereeID: "new-student", CreditMinutes: 30}); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	_, err = s.CreateRedemption(ctx, referral.Redemption{CodeID: code.ID, RefereeID: "new-student", CreditMinutes: 30})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("second redemption by same referee must fail, got %v", err)
	}
}

func TestWorkingHoursRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetWorkingHours(ctx, "inst-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	hours := booking.WorkingHours{
		InstructorID: "inst-1",
		Days: map[time.Weekday]booking.DayWindow{
			time.Monday: {Start: "09:00", End: "17:00"},
		},
	}
	if _, err := s.SetWorkingHours(ctx, hours); err != nil {
		t.Fatalf("set hours: %v", err)
	}

	got, err := s.GetWorkingHours(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get hours: %v", err)
	}
	if got.Days[time.Monday].End != "17:00" {
		t.Fatalf("unexpected hours: %#v", got)
	}

	// Mutating the returned map must not leak into the store.
	got.Days[time.Monday] = booking.DayWindow{Start: "00:00", End: "01:00"}
	again, _ := s.GetWorkingHours(ctx, "inst-1")
	if again.Days[time.Monday].End != "17:00" {
		t.Fatalf("store aliased returned map")
	}
}

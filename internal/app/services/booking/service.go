// Package booking implements instructor schedules, availability lookups and
// lesson booking.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/driveline/platform/internal/app/domain/booking"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/internal/cache"
	"github.com/driveline/platform/pkg/logger"
)

// Defaults for the scheduling service.
const (
	DefaultAvailabilityTTL = time.Minute
	DefaultSlotLength      = time.Hour
)

// Config holds the booking service settings.
type Config struct {
	AvailabilityTTL time.Duration
	SlotLength      time.Duration
}

// DefaultConfig returns the default booking configuration.
func DefaultConfig() Config {
	return Config{
		AvailabilityTTL: DefaultAvailabilityTTL,
		SlotLength:      DefaultSlotLength,
	}
}

// Service exposes schedule management and lesson booking.
type Service struct {
	store  storage.BookingStore
	cache  cache.Cache
	cfg    Config
	logger *logger.Logger

	now func() time.Time
}

// New creates the booking service.
func New(store storage.BookingStore, c cache.Cache, cfg Config, log *logger.Logger) *Service {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if cfg.SlotLength <= 0 {
		cfg.SlotLength = DefaultSlotLength
	}
	if log == nil {
		log = logger.NewDefault("booking")
	}
	return &Service{store: store, cache: c, cfg: cfg, logger: log, now: time.Now}
}

// SetWorkingHours validates and persists an instructor's weekly schedule,
// then drops every cached availability window derived from the old one.
func (s *Service) SetWorkingHours(ctx context.Context, hours booking.WorkingHours) (booking.WorkingHours, error) {
	if err := hours.Validate(); err != nil {
		return booking.WorkingHours{}, apperr.Validation("%v", err)
	}

	saved, err := s.store.SetWorkingHours(ctx, hours)
	if err != nil {
		return booking.WorkingHours{}, err
	}

	// Invalidate after the write commits: the hours key plus every derived
	// availability day.
	if err := s.cache.Del(ctx, cache.WorkingHoursKey(hours.InstructorID)); err != nil {
		s.logger.WithError(err).Warn("working hours cache invalidation failed")
	}
	if err := s.cache.DelPattern(ctx, cache.AvailabilityPattern(hours.InstructorID)); err != nil {
		s.logger.WithError(err).Warn("availability cache invalidation failed")
	}

	s.logger.WithField("instructor_id", hours.InstructorID).Info("working hours updated")
	return saved, nil
}

// WorkingHours returns an instructor's schedule, reading through the cache.
func (s *Service) WorkingHours(ctx context.Context, instructorID string) (booking.WorkingHours, error) {
	key := cache.WorkingHoursKey(instructorID)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var hours booking.WorkingHours
		if err := json.Unmarshal(raw, &hours); err == nil {
			return hours, nil
		}
	}

	hours, err := s.store.GetWorkingHours(ctx, instructorID)
	if err != nil {
		return booking.WorkingHours{}, err
	}
	if raw, err := json.Marshal(hours); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cfg.AvailabilityTTL); err != nil {
			s.logger.WithError(err).Warn("working hours cache write failed")
		}
	}
	return hours, nil
}

// Availability returns the open slots for one instructor day. The computed
// result is cached briefly; bookings and schedule changes invalidate it.
func (s *Service) Availability(ctx context.Context, instructorID string, date time.Time) ([]booking.Slot, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	key := cache.AvailabilityKey(instructorID, day.Format("2006-01-02"))

	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var slots []booking.Slot
		if err := json.Unmarshal(raw, &slots); err == nil {
			return slots, nil
		}
	}

	hours, err := s.store.GetWorkingHours(ctx, instructorID)
	if errors.Is(err, storage.ErrNotFound) {
		return []booking.Slot{}, nil
	}
	if err != nil {
		return nil, err
	}

	window, ok := hours.Days[day.Weekday()]
	if !ok {
		return []booking.Slot{}, nil
	}
	startMin, err := booking.ParseClock(window.Start)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	endMin, err := booking.ParseClock(window.End)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	dayStart := day.Add(time.Duration(startMin) * time.Minute)
	dayEnd := day.Add(time.Duration(endMin) * time.Minute)

	lessons, err := s.store.ListLessons(ctx, instructorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	slots := openSlots(dayStart, dayEnd, s.cfg.SlotLength, lessons)

	if raw, err := json.Marshal(slots); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cfg.AvailabilityTTL); err != nil {
			s.logger.WithError(err).Warn("availability cache write failed")
		}
	}
	return slots, nil
}

// openSlots walks the teaching window in fixed-length steps and keeps every
// step no booked lesson intersects.
func openSlots(start, end time.Time, length time.Duration, lessons []booking.Lesson) []booking.Slot {
	booked := lessons[:0:0]
	for _, l := range lessons {
		if l.Status == booking.StatusBooked {
			booked = append(booked, l)
		}
	}
	sort.Slice(booked, func(i, j int) bool { return booked[i].Start.Before(booked[j].Start) })

	slots := []booking.Slot{}
	for cursor := start; !cursor.Add(length).After(end); cursor = cursor.Add(length) {
		slotEnd := cursor.Add(length)
		free := true
		for _, l := range booked {
			if l.Overlaps(cursor, slotEnd) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, booking.Slot{Start: cursor, End: slotEnd})
		}
	}
	return slots
}

// BookRequest is one attempted lesson booking.
type BookRequest struct {
	StudentID    string    `json:"student_id"`
	InstructorID string    `json:"instructor_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Book schedules a lesson. Out-of-hours requests fail validation; requests
// that intersect an existing booked lesson fail with a conflict.
func (s *Service) Book(ctx context.Context, req BookRequest) (booking.Lesson, error) {
	if req.StudentID == "" || req.InstructorID == "" {
		return booking.Lesson{}, apperr.Validation("student and instructor are required")
	}
	if !req.End.After(req.Start) {
		return booking.Lesson{}, apperr.Validation("lesson must end after it starts")
	}

	if err := s.checkWithinHours(ctx, req.InstructorID, req.Start, req.End); err != nil {
		return booking.Lesson{}, err
	}

	existing, err := s.store.ListLessons(ctx, req.InstructorID, req.Start, req.End)
	if err != nil {
		return booking.Lesson{}, err
	}
	for _, l := range existing {
		if l.Status == booking.StatusBooked && l.Overlaps(req.Start, req.End) {
			return booking.Lesson{}, apperr.Conflict("slot is already booked")
		}
	}

	lesson, err := s.store.CreateLesson(ctx, booking.Lesson{
		StudentID:    req.StudentID,
		InstructorID: req.InstructorID,
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
		Status:       booking.StatusBooked,
	})
	if err != nil {
		return booking.Lesson{}, err
	}

	s.invalidateDay(ctx, req.InstructorID, req.Start)
	s.logger.WithFields(map[string]interface{}{
		"lesson_id":     lesson.ID,
		"instructor_id": lesson.InstructorID,
		"start":         lesson.Start,
	}).Info("lesson booked")
	return lesson, nil
}

// Cancel marks a lesson cancelled and reopens its slot.
func (s *Service) Cancel(ctx context.Context, lessonID, callerID string) (booking.Lesson, error) {
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return booking.Lesson{}, err
	}
	if callerID != "" && callerID != lesson.StudentID && callerID != lesson.InstructorID {
		return booking.Lesson{}, apperr.Forbidden("only a lesson participant may cancel it")
	}
	if lesson.Status == booking.StatusCancelled {
		return lesson, nil
	}

	lesson.Status = booking.StatusCancelled
	updated, err := s.store.UpdateLesson(ctx, lesson)
	if err != nil {
		return booking.Lesson{}, err
	}

	s.invalidateDay(ctx, lesson.InstructorID, lesson.Start)
	s.logger.WithField("lesson_id", lessonID).Info("lesson cancelled")
	return updated, nil
}

func (s *Service) checkWithinHours(ctx context.Context, instructorID string, start, end time.Time) error {
	hours, err := s.store.GetWorkingHours(ctx, instructorID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Validation("instructor has no working hours configured")
	}
	if err != nil {
		return err
	}

	day := start.UTC().Truncate(24 * time.Hour)
	if !end.UTC().Truncate(24*time.Hour).Equal(day) && !end.UTC().Equal(day.Add(24*time.Hour)) {
		return apperr.Validation("lesson must not span multiple days")
	}
	window, ok := hours.Days[day.Weekday()]
	if !ok {
		return apperr.Validation("instructor does not teach on %s", day.Weekday())
	}
	startMin, err := booking.ParseClock(window.Start)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	endMin, err := booking.ParseClock(window.End)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	if start.UTC().Before(day.Add(time.Duration(startMin)*time.Minute)) ||
		end.UTC().After(day.Add(time.Duration(endMin)*time.Minute)) {
		return apperr.Validation("lesson is outside the instructor's working hours")
	}
	return nil
}

func (s *Service) invalidateDay(ctx context.Context, instructorID string, at time.Time) {
	key := cache.AvailabilityKey(instructorID, at.UTC().Format("2006-01-02"))
	if err := s.cache.Del(ctx, key); err != nil {
		s.logger.WithError(err).Warn("availability cache invalidation failed")
	}
}

// Package booking defines instructor schedules, lessons and availability
// slots.
package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lesson statuses.
const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

// DayWindow is one teaching window within a day, clock times as "HH:MM".
type DayWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkingHours is an instructor's weekly teaching schedule. Days without an
// entry are non-teaching days.
type WorkingHours struct {
	InstructorID string                    `json:"instructor_id" db:"instructor_id"`
	Days         map[time.Weekday]DayWindow `json:"days" db:"days"`
	UpdatedAt    time.Time                 `json:"updated_at" db:"updated_at"`
}

// Lesson is one scheduled driving lesson.
type Lesson struct {
	ID           string    `json:"id" db:"id"`
	StudentID    string    `json:"student_id" db:"student_id"`
	InstructorID string    `json:"instructor_id" db:"instructor_id"`
	Start        time.Time `json:"start" db:"start_at"`
	End          time.Time `json:"end" db:"end_at"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Slot is one open bookable interval on an instructor's day.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the lesson intersects [start, end).
func (l Lesson) Overlaps(start, end time.Time) bool {
	return l.Start.Before(end) && start.Before(l.End)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour*60 + minute, nil
}

// Validate checks every configured day window parses and ends after it
// starts.
func (wh WorkingHours) Validate() error {
	if wh.InstructorID == "" {
		return fmt.Errorf("instructor id is required")
	}
	for day, window := range wh.Days {
		start, err := ParseClock(window.Start)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		end, err := ParseClock(window.End)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		if end <= start {
			return fmt.Errorf("%s: window ends before it starts", day)
		}
	}
	return nil
}

package booking

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"9am", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseClock(%q) err = %v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestWorkingHoursValidate(t *testing.T) {
	hours := WorkingHours{
		InstructorID: "inst-1",
		Days: map[time.Weekday]DayWindow{
			time.Monday: {Start: "09:00", End: "17:00"},
		},
	}
	if err := hours.Validate(); err != nil {
		t.Fatalf("valid hours rejected: %v", err)
	}

	hours.Days[time.Monday] = DayWindow{Start: "17:00", End: "09:00"}
	if err := hours.Validate(); err == nil {
		t.Fatal("inverted window must be rejected")
	}

	hours.Days[time.Monday] = DayWindow{Start: "nine", End: "17:00"}
	if err := hours.Validate(); err == nil {
		t.Fatal("unparseable clock must be rejected")
	}
}

func TestLessonOverlaps(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	lesson := Lesson{Start: base, End: base.Add(time.Hour)}

	if !lesson.Overlaps(base.Add(30*time.Minute), base.Add(90*time.Minute)) {
		t.Fatal("partial overlap not detected")
	}
	if lesson.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour)) {
		t.Fatal("adjacent interval must not overlap")
	}
	if lesson.Overlaps(base.Add(-time.Hour), base) {
		t.Fatal("preceding interval must not overlap")
	}
}

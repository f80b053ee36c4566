package schedule

import (
	"errors"
	"testing"
	"time"
)

func mustLoc(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestNextRunDaily(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		at   string
		want time.Time
	}{
		{name: "before slot", now: time.Date(2025, 5, 5, 8, 59, 0, 0, loc), at: "09:00", want: time.Date(2025, 5, 5, 9, 0, 0, 0, loc)},
		{name: "exact slot", now: time.Date(2025, 5, 5, 9, 0, 0, 0, loc), at: "09:00", want: time.Date(2025, 5, 6, 9, 0, 0, 0, loc)},
		{name: "after slot", now: time.Date(2025, 5, 5, 9, 0, 1, 0, loc), at: "09:00", want: time.Date(2025, 5, 6, 9, 0, 0, 0, loc)},
		{name: "month rollover", now: time.Date(2025, 1, 31, 23, 30, 0, 0, loc), at: "07:15", want: time.Date(2025, 2, 1, 7, 15, 0, 0, loc)},
		{name: "single digit hour", now: time.Date(2025, 5, 5, 6, 0, 0, 0, loc), at: "7:05", want: time.Date(2025, 5, 5, 7, 5, 0, 0, loc)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(Daily, tt.at, tt.now)
			if err != nil {
				t.Fatalf("NextRun error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRunDailyProperty(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for minute := 0; minute < 24*60; minute += 7 {
		now := base.Add(time.Duration(minute) * time.Minute)
		got, err := NextRun(Daily, "13:30", now)
		if err != nil {
			t.Fatalf("NextRun error: %v", err)
		}
		today := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
		want := today
		if ClockHHMM(now) >= "13:30" {
			want = today.AddDate(0, 0, 1)
		}
		if !got.Equal(want) {
			t.Fatalf("now=%s: NextRun = %v, want %v", ClockHHMM(now), got, want)
		}
	}
}

func TestNextRunWeekly(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		// 2025-05-05 is a Monday.
		{name: "monday before slot", now: time.Date(2025, 5, 5, 8, 0, 0, 0, loc), want: time.Date(2025, 5, 5, 9, 0, 0, 0, loc)},
		{name: "monday at slot", now: time.Date(2025, 5, 5, 9, 0, 0, 0, loc), want: time.Date(2025, 5, 12, 9, 0, 0, 0, loc)},
		{name: "wednesday", now: time.Date(2025, 5, 7, 12, 0, 0, 0, loc), want: time.Date(2025, 5, 12, 9, 0, 0, 0, loc)},
		{name: "sunday", now: time.Date(2025, 5, 11, 23, 59, 0, 0, loc), want: time.Date(2025, 5, 12, 9, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(Weekly, "09:00", tt.now)
			if err != nil {
				t.Fatalf("NextRun error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextRun = %v, want %v", got, tt.want)
			}
			if got.Weekday() != time.Monday {
				t.Fatalf("weekday = %v, want Monday", got.Weekday())
			}
		})
	}
}

func TestNextRunMonthly(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	got, err := NextRun(Monthly, "06:00", time.Date(2025, 1, 1, 5, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if want := time.Date(2025, 1, 1, 6, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("first of month before slot: got %v, want %v", got, want)
	}

	// Any day other than the 1st lands on the 1st of next month.
	for day := 2; day <= 31; day++ {
		now := time.Date(2025, 12, day, 12, 0, 0, 0, loc)
		got, err := NextRun(Monthly, "06:00", now)
		if err != nil {
			t.Fatalf("NextRun error: %v", err)
		}
		if want := time.Date(2026, 1, 1, 6, 0, 0, 0, loc); !got.Equal(want) {
			t.Fatalf("day %d: got %v, want %v", day, got, want)
		}
	}
}

func TestNextRunKeepsLocation(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t, "Europe/Berlin")
	// 2025-03-29 is the day before the CET->CEST switch.
	now := time.Date(2025, 3, 29, 10, 0, 0, 0, loc)
	got, err := NextRun(Daily, "09:00", now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if got.Location() != loc || got.Hour() != 9 || got.Day() != 30 {
		t.Fatalf("NextRun = %v, want 2025-03-30 09:00 Europe/Berlin", got)
	}
}

func TestNextRunInvalid(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)
	for _, raw := range []string{"", "9", "aa:bb", "24:00", "12:60", "12:5", "-1:30", "12:+5"} {
		_, err := NextRun(Daily, raw, now)
		var inv *InvalidScheduleError
		if !errors.As(err, &inv) {
			t.Fatalf("NextRun(%q) error = %v, want InvalidScheduleError", raw, err)
		}
	}
	if _, err := NextRun(Frequency("hourly"), "09:00", now); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		freq Frequency
		want string
	}{
		{Daily, "30 9 * * *"},
		{Weekly, "30 9 * * 1"},
		{Monthly, "30 9 1 * *"},
	}
	for _, tt := range tests {
		got, err := CronSpec(tt.freq, "09:30")
		if err != nil {
			t.Fatalf("CronSpec(%s) error: %v", tt.freq, err)
		}
		if got != tt.want {
			t.Fatalf("CronSpec(%s) = %q, want %q", tt.freq, got, tt.want)
		}
	}
}

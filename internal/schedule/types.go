// Package schedule holds the recurring newsletter schedule model and the
// pure time arithmetic that decides when a schedule fires next.
package schedule

import (
	"fmt"
	"time"
)

// Frequency is the cadence class of a schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// DefaultMaxArticles is used when a schedule is created without a limit.
const DefaultMaxArticles = 5

// WeeklyDay is the fixed weekday for weekly schedules.
const WeeklyDay = time.Monday

// Valid reports whether f is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Schedule is a user-defined recurring job description.
type Schedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Frequency   Frequency  `json:"frequency"`
	Time        string     `json:"time"` // HH:MM, 24h, scheduler timezone
	SourceURL   string     `json:"sourceUrl"`
	MaxArticles int        `json:"maxArticles"`
	AutoApprove bool       `json:"autoApprove"`
	Enabled     bool       `json:"enabled"`
	LastRun     *time.Time `json:"lastRun"`
	NextRun     time.Time  `json:"nextRun"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name        *string    `json:"name,omitempty"`
	Frequency   *Frequency `json:"frequency,omitempty"`
	Time        *string    `json:"time,omitempty"`
	SourceURL   *string    `json:"sourceUrl,omitempty"`
	MaxArticles *int       `json:"maxArticles,omitempty"`
	AutoApprove *bool      `json:"autoApprove,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
}

// Empty reports whether the patch carries no changes.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Frequency == nil && p.Time == nil && p.SourceURL == nil &&
		p.MaxArticles == nil && p.AutoApprove == nil && p.Enabled == nil
}

// Apply returns a copy of s with the patch applied, and whether the
// frequency or time-of-day changed (which invalidates NextRun).
func (p Patch) Apply(s Schedule) (Schedule, bool) {
	out := s
	timingChanged := false
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Frequency != nil {
		timingChanged = timingChanged || *p.Frequency != s.Frequency
		out.Frequency = *p.Frequency
	}
	if p.Time != nil {
		timingChanged = timingChanged || *p.Time != s.Time
		out.Time = *p.Time
	}
	if p.SourceURL != nil {
		out.SourceURL = *p.SourceURL
	}
	if p.MaxArticles != nil {
		out.MaxArticles = *p.MaxArticles
	}
	if p.AutoApprove != nil {
		out.AutoApprove = *p.AutoApprove
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	return out, timingChanged
}

// CronSpec converts the schedule cadence into a 5-field cron expression
// (minute hour dom month dow).
func CronSpec(freq Frequency, timeOfDay string) (string, error) {
	h, m, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return "", err
	}
	switch freq {
	case Daily:
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case Weekly:
		return fmt.Sprintf("%d %d * * %d", m, h, int(WeeklyDay)), nil
	case Monthly:
		return fmt.Sprintf("%d %d 1 * *", m, h), nil
	default:
		return "", &InvalidScheduleError{Field: "frequency", Value: string(freq), Reason: "must be daily, weekly or monthly"}
	}
}

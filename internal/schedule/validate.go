package schedule

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MaxArticlesLimit caps how many articles one run may store.
const MaxArticlesLimit = 100

// ValidationError wraps field-level validation failures.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a validation or malformed-time error.
func IsValidation(err error) bool {
	var v *ValidationError
	var inv *InvalidScheduleError
	return errors.As(err, &v) || errors.As(err, &inv)
}

// Normalize trims text fields and fills defaults.
func Normalize(s Schedule) Schedule {
	s.Name = strings.TrimSpace(s.Name)
	s.Time = strings.TrimSpace(s.Time)
	if tod, err := CanonicalTimeOfDay(s.Time); err == nil {
		s.Time = tod
	}
	s.SourceURL = strings.TrimSpace(s.SourceURL)
	s.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(s.Frequency))))
	if s.MaxArticles == 0 {
		s.MaxArticles = DefaultMaxArticles
	}
	return s
}

// Validate checks the user-editable fields of a schedule.
func Validate(s Schedule) error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&s.Frequency, validation.Required, validation.In(Daily, Weekly, Monthly)),
		validation.Field(&s.Time, validation.Required, validation.By(timeOfDayRule)),
		validation.Field(&s.SourceURL, validation.Required, is.URL),
		validation.Field(&s.MaxArticles, validation.Min(1), validation.Max(MaxArticlesLimit)),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func timeOfDayRule(value interface{}) error {
	s, _ := value.(string)
	if _, _, err := ParseTimeOfDay(s); err != nil {
		return errors.New("must be HH:MM (24h)")
	}
	return nil
}

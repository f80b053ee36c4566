package automation

import (
	"errors"

	"newsbot/internal/newsletter"
)

var ErrNoSource = errors.New("no news source configured")

// FetchError means the feed could not be downloaded or parsed. The working
// article set is left as it was.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return "fetch " + e.URL + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

type (
	GenerationError = newsletter.GenerationError
	DispatchError   = newsletter.DispatchError
	PublishError    = newsletter.PublishError
)

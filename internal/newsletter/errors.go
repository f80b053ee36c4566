package newsletter

import "errors"

var (
	// ErrNothingToAssemble means there were no selected articles or no
	// generation key. Nothing was written.
	ErrNothingToAssemble = errors.New("nothing to assemble")
	ErrInvalidToken      = errors.New("invalid approval token")
	ErrInvalidState      = errors.New("newsletter is not in a state that allows this")
)

// GenerationError wraps a failed model call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// DispatchError wraps a failed approval email. The newsletter it belongs to
// is kept.
type DispatchError struct {
	NewsletterID string
	Err          error
}

func (e *DispatchError) Error() string { return "approval email failed: " + e.Err.Error() }
func (e *DispatchError) Unwrap() error { return e.Err }

// PublishError wraps a failed call to the publishing platform.
type PublishError struct {
	NewsletterID string
	Err          error
}

func (e *PublishError) Error() string { return "publish failed: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }

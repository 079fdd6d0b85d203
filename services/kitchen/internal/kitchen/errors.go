package kitchen

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalid           = errors.New("invalid input")
	ErrOrderClosed       = errors.New("order is closed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStorage           = errors.New("storage failure")
)

// isDomainError reports whether err is a caller error that a retry cannot fix.
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrOrderClosed) ||
		errors.Is(err, ErrInvalidTransition)
}

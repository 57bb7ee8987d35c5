package git

import "errors"

var (
	// ErrNotFound reports that the provider has no such
	// object (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrValidation reports malformed input or an
	// operation rejected by the provider (HTTP 422).
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited reports a primary or secondary rate
	// limit. The whole job is expected to be re-run.
	ErrRateLimited = errors.New("rate limited")
)

// IsNotFound reports whether err is, or wraps,
// ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

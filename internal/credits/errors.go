package credits

import (
	"errors"
	"fmt"

	"github.com/pathway-hq/credits/internal/pricing"
)

var (
	// ErrInsufficientCredits matches any *InsufficientCreditsError via errors.Is.
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	// ErrUserNotFound is returned when the user row does not exist.
	ErrUserNotFound = errors.New("credits: user not found")
	// ErrInvalidAmount is returned for non-positive refund or purchase amounts.
	ErrInvalidAmount = errors.New("credits: amount must be positive")
	// ErrPersistenceConflict marks a transient concurrency failure; the unit was rolled back and may be retried.
	ErrPersistenceConflict = errors.New("credits: persistence conflict")
	// ErrUnknownActionKind is re-exported from pricing for callers of the ledger.
	ErrUnknownActionKind = pricing.ErrUnknownActionKind
)

// InsufficientCreditsError carries the amounts needed to render an upgrade prompt.
type InsufficientCreditsError struct {
	Required int64
	Current  int64 // -1 when the database rejected the write before the balance could be read.
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("credits: insufficient credits: required %d, current %d", e.Required, e.Current)
}

// Is lets errors.Is(err, ErrInsufficientCredits) match.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// AsInsufficientCredits extracts the typed error, if present.
func AsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var target *InsufficientCreditsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsRetryable reports whether the whole operation can safely be repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict)
}

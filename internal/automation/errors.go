package automation

import (
	"errors"
	"fmt"

	"hvacautomation/internal/ha"
)

var (
	// ErrMissingParameter is returned before any read or write when a required option is absent.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrValueParse is returned when an entity state cannot be read as a number.
	ErrValueParse = errors.New("value parse error")

	// ErrEntityNotFound is returned when a referenced entity has no state.
	ErrEntityNotFound = ha.ErrEntityNotFound

	// ErrAlreadyRunning is returned when a rule is triggered while a previous run is in progress.
	ErrAlreadyRunning = errors.New("rule already running")
)

// MissingParameter returns ErrMissingParameter naming the option
func MissingParameter(option string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameter, option)
}

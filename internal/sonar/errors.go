package sonar

import (
	"errors"
	"fmt"
)

// Errors returned by the ranging pipeline.
var (
	ErrInvalidParameters = errors.New("sonar: invalid parameters")
	ErrEmptyInput        = errors.New("sonar: empty input")
	ErrHardwareFault     = errors.New("sonar: hardware fault")
	ErrNoData            = errors.New("sonar: no data, collect data first")
)

// invalidf wraps ErrInvalidParameters with a formatted reason.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...))
}

// HardwareFaultError records which angle pair a transducer or positioner
// failed on. It matches both ErrHardwareFault and the underlying cause with
// errors.Is.
type HardwareFaultError struct {
	Index     int     // angle-pair index in traversal order
	Azimuth   float64 // radians
	Elevation float64 // radians
	Err       error
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("sonar: hardware fault at pair %d (h=%.4f v=%.4f): %v", e.Index, e.Azimuth, e.Elevation, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *HardwareFaultError) Unwrap() []error {
	return []error{ErrHardwareFault, e.Err}
}

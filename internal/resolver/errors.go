package resolver

import (
	"errors"
	"fmt"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

var (
	// ErrResolution marks a pass that failed as a whole; the previous sequence stays.
	ErrResolution = errors.New("resolution failed")
	// ErrPassInFlight is returned when a pass is requested while another one runs.
	ErrPassInFlight = errors.New("resolution pass already in flight")
)

// Error is a fatal pass failure together with the diagnostic it reports.
type Error struct {
	Diagnostic model.Diagnostic
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Diagnostic.General, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

func diagnose(general string, err error) model.Diagnostic {
	return model.Diagnostic{
		General:   general,
		Technical: err.Error(),
		Code:      backend.ErrorCode(err),
	}
}

func fatal(general string, err error) *Error {
	return &Error{Diagnostic: diagnose(general, err), Err: err}
}

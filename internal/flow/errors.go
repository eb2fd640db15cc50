package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/ClinicIntake/internal/otp"
)

var (
	// ErrBusy is returned while a gated network call is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrStepNotFound means the history position no longer resolves to a step.
	ErrStepNotFound = errors.New("step not found")
	// ErrNotConfigured means a gate has no collaborator to call.
	ErrNotConfigured = errors.New("collaborator not configured")
	// ErrNotOnVerifyStep is returned by ResendCode from any other step.
	ErrNotOnVerifyStep = errors.New("resend is only available on the verification step")

	// ErrCodeInvalid is the wrong-code outcome of verification.
	ErrCodeInvalid = otp.ErrCodeMismatch
	// ErrCodeExpired is the expired-or-missing outcome of verification.
	ErrCodeExpired = otp.ErrCodeNotFound
)

// ValidationError is a local check that failed on the current step.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DispatchError means the verification code could not be sent. The
// transition that triggered it did not happen.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "could not send verification code: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// SubmitError means the final submission was not accepted. Saved progress
// is kept so the user can retry.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return "submission failed: " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting unchanged answers may succeed.
func (e *SubmitError) Retryable() bool {
	var apiErr *otp.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

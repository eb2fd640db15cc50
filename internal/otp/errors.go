// Package otp implements the one-time passcode challenge that verifies a
// patient controls the phone number or email address they entered.
package otp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// User-facing messages carried in the API envelope. Clients match on them.
const (
	MessageNoDestination  = "Phone number or email is required"
	MessageDeliveryFailed = "Failed to send verification code"
	MessageCodeNotFound   = "Verification code expired or not found"
	MessageCodeMismatch   = "Invalid verification code"
	MessageCodeRequired   = "Verification code is required"
	MessageCodeMalformed  = "Verification code must be 6 digits"
	MessageTransport      = "Network error, please try again later"
)

var (
	// ErrNoDestination means neither a phone number nor an email was supplied.
	ErrNoDestination = models.ErrMissingDestination
	// ErrDeliveryFailed means every supplied channel failed.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrCodeNotFound means no live credential exists, because it expired,
	// was already used, or was never issued.
	ErrCodeNotFound = errors.New("verification code expired or not found")
	// ErrCodeMismatch means a credential exists but the submitted code differs.
	ErrCodeMismatch = errors.New("invalid verification code")
	// ErrTransport wraps network and protocol failures talking to the server.
	ErrTransport = errors.New("verification service unreachable")
)

// APIError is a non-2xx answer from the intake server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known server messages back onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest && e.Message == MessageCodeNotFound:
		return ErrCodeNotFound
	case e.StatusCode == http.StatusBadRequest && e.Message == MessageCodeMismatch:
		return ErrCodeMismatch
	case e.StatusCode == http.StatusBadRequest && e.Message == MessageNoDestination:
		return ErrNoDestination
	case e.StatusCode == http.StatusBadGateway:
		return ErrDeliveryFailed
	case e.StatusCode >= 500:
		return ErrTransport
	}
	return nil
}

// Retryable reports whether the same request may succeed later unchanged.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
